package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"

	"shopconnect/internal/shop"
)

// fileRecord is the on-disk value for one shop.
type fileRecord struct {
	AccessToken string    `json:"access_token"`
	Scope       string    `json:"scope,omitempty"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
}

// FileStore keeps the whole record set in one JSON file. Writers are
// serialized and every mutation replaces the file by rename, so a reader
// never sees a partial document.
type FileStore struct {
	mu   sync.RWMutex
	path string
	key  []byte
}

// NewFileStore opens (creating if needed) the record set at path. A non-empty
// key seals the file with AES-256-GCM; plaintext files are still readable and
// get sealed on the next write.
func NewFileStore(path string, key string) (*FileStore, error) {
	s := &FileStore{path: path}
	if key != "" {
		s.key = []byte(key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("credentials: create dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(map[string]fileRecord{}); err != nil {
			return nil, err
		}
	}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, h shop.Hostname) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, err := s.read()
	if err != nil {
		return Credential{}, err
	}
	r, ok := recs[string(h)]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return Credential{Shop: h, AccessToken: r.AccessToken, Scope: r.Scope, InstalledAt: r.InstalledAt}, nil
}

func (s *FileStore) Put(ctx context.Context, c Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return err
	}
	recs[string(c.Shop)] = fileRecord{AccessToken: c.AccessToken, Scope: c.Scope, InstalledAt: c.InstalledAt.UTC()}
	return s.write(recs)
}

func (s *FileStore) Remove(ctx context.Context, h shop.Hostname) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.read()
	if err != nil {
		return false, err
	}
	if _, ok := recs[string(h)]; !ok {
		return false, nil
	}
	delete(recs, string(h))
	return true, s.write(recs)
}

func (s *FileStore) List(ctx context.Context) ([]shop.Hostname, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]shop.Hostname, 0, len(recs))
	for k := range recs {
		out = append(out, shop.Hostname(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// read loads the record set. Both the current object form and the legacy
// {"shop": "token"} form are accepted.
func (s *FileStore) read() (map[string]fileRecord, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]fileRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: read: %w", err)
	}
	if isSealed(b) {
		if s.key == nil {
			return nil, errSealed
		}
		if b, err = open(s.key, b); err != nil {
			return nil, fmt.Errorf("credentials: decrypt: %w", err)
		}
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return map[string]fileRecord{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("credentials: decode %s: %w", s.path, err)
	}
	recs := make(map[string]fileRecord, len(raw))
	for k, v := range raw {
		var r fileRecord
		if len(v) > 0 && v[0] == '"' {
			if err := json.Unmarshal(v, &r.AccessToken); err != nil {
				return nil, fmt.Errorf("credentials: decode %s: %w", k, err)
			}
		} else if err := json.Unmarshal(v, &r); err != nil {
			return nil, fmt.Errorf("credentials: decode %s: %w", k, err)
		}
		recs[k] = r
	}
	return recs, nil
}

// write replaces the file atomically: temp file in the same directory, fsync, rename.
func (s *FileStore) write(recs map[string]fileRecord) error {
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if s.key != nil {
		if b, err = seal(s.key, b); err != nil {
			return fmt.Errorf("credentials: encrypt: %w", err)
		}
	}
	if err := atomicwriter.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("credentials: write %s: %w", s.path, err)
	}
	return nil
}
