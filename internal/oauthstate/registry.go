// Package oauthstate issues and consumes the single-use state values that bind
// an authorization redirect to the shop that started it.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"shopconnect/internal/shop"
)

// DefaultTTL bounds how long a merchant may take on the consent screen.
const DefaultTTL = 10 * time.Minute

// ErrNotFound is returned by Consume for unknown, expired or already consumed states.
var ErrNotFound = errors.New("oauth state not found or expired")

// Registry is shared by concurrent start and callback requests.
type Registry interface {
	// Issue records a fresh state for shop and returns it.
	Issue(ctx context.Context, h shop.Hostname) (string, error)
	// Consume atomically looks up and removes state. A second call returns ErrNotFound.
	Consume(ctx context.Context, state string) (shop.Hostname, error)
}

// newState returns 128 random bits as 32 hex characters.
func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
