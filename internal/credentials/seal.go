package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

const sealVersion = 0x01

var errSealed = errors.New("credentials file is encrypted but no ENCRYPTION_KEY is configured")

// seal encrypts plain with AES-256-GCM under SHA-256(key).
// Layout: version(0x01) | nonce | ciphertext.
func seal(key, plain []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := gcm.Seal(nil, nonce, plain, nil)
	out := make([]byte, 1+len(nonce)+len(ct))
	out[0] = sealVersion
	copy(out[1:1+len(nonce)], nonce)
	copy(out[1+len(nonce):], ct)
	return out, nil
}

// open reverses seal.
func open(key, blob []byte) ([]byte, error) {
	if len(blob) < 2 {
		return nil, errors.New("invalid blob")
	}
	if blob[0] != sealVersion {
		return nil, errors.New("unsupported version")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < 1+gcm.NonceSize() {
		return nil, errors.New("short nonce")
	}
	nonce := blob[1 : 1+gcm.NonceSize()]
	return gcm.Open(nil, nonce, blob[1+gcm.NonceSize():], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	h := sha256.Sum256(key)
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func isSealed(b []byte) bool { return len(b) > 0 && b[0] == sealVersion }
