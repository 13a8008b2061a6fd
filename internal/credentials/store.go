// Package credentials persists the access token obtained for each connected shop.
package credentials

import (
	"context"
	"errors"
	"time"

	"shopconnect/internal/shop"
)

// ErrNotFound is returned by Get for shops that are not connected.
var ErrNotFound = errors.New("credential not found")

// Credential is the durable result of a completed install.
type Credential struct {
	Shop        shop.Hostname
	AccessToken string
	Scope       string
	InstalledAt time.Time
}

// Store maps shop hostnames to credentials. Put overwrites; List is sorted.
// The install flow is the only writer besides Remove (disconnect).
type Store interface {
	Get(ctx context.Context, h shop.Hostname) (Credential, error)
	Put(ctx context.Context, c Credential) error
	Remove(ctx context.Context, h shop.Hostname) (bool, error)
	List(ctx context.Context) ([]shop.Hostname, error)
}
