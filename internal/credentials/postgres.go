package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"shopconnect/internal/shop"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed credential store.
// Call EnsureSchema first.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the credentials table. Safe to call repeatedly.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS shop_credentials (
  shop text PRIMARY KEY,
  access_token text NOT NULL,
  scope text NOT NULL DEFAULT '',
  installed_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

func (p *pgStore) Get(ctx context.Context, h shop.Hostname) (Credential, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT access_token, scope, installed_at FROM shop_credentials WHERE shop=$1`, string(h))
	c := Credential{Shop: h}
	if err := row.Scan(&c.AccessToken, &c.Scope, &c.InstalledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, err
	}
	return c, nil
}

// Put upserts; a reinstall replaces the token and keeps one row per shop.
func (p *pgStore) Put(ctx context.Context, c Credential) error {
	installed := c.InstalledAt
	if installed.IsZero() {
		installed = time.Now()
	}
	_, err := p.dbPool.Exec(ctx, `INSERT INTO shop_credentials(shop, access_token, scope, installed_at, updated_at)
	  VALUES ($1,$2,$3,$4,NOW())
	  ON CONFLICT (shop) DO UPDATE SET access_token=EXCLUDED.access_token, scope=EXCLUDED.scope,
	    installed_at=EXCLUDED.installed_at, updated_at=NOW()`,
		string(c.Shop), c.AccessToken, c.Scope, installed.UTC())
	return err
}

func (p *pgStore) Remove(ctx context.Context, h shop.Hostname) (bool, error) {
	var removed string
	err := p.dbPool.QueryRow(ctx, `DELETE FROM shop_credentials WHERE shop=$1 RETURNING shop`, string(h)).Scan(&removed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.log.Infow("credential removed", "shop", removed)
	return true, nil
}

func (p *pgStore) List(ctx context.Context) ([]shop.Hostname, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT shop FROM shop_credentials ORDER BY shop`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []shop.Hostname{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, shop.Hostname(s))
	}
	return out, rows.Err()
}
