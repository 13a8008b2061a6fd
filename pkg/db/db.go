// Package db opens the optional Postgres and Redis backends. Either URL may be
// empty, in which case the caller falls back to the file store or the
// in-memory state registry.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shopconnect/pkg/config"
)

const defaultPingTimeout = 5 * time.Second

type options struct {
	pingTimeout time.Duration
	schema      func(context.Context, *pgxpool.Pool) error
}

type Option func(*options)

// WithPingTimeout bounds each startup ping.
func WithPingTimeout(d time.Duration) Option {
	return func(o *options) { o.pingTimeout = d }
}

// WithSchema runs fn against the pool once the ping succeeds.
func WithSchema(fn func(context.Context, *pgxpool.Pool) error) Option {
	return func(o *options) { o.schema = fn }
}

func collect(opts []Option) options {
	o := options{pingTimeout: defaultPingTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Connect returns (nil, nil) when dsn is empty.
func Connect(ctx context.Context, dsn string, opts ...Option) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, nil
	}
	o := collect(opts)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg connect %s: %w", redactDSN(dsn), err)
	}
	pctx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping %s: %w", redactDSN(dsn), err)
	}
	if o.schema != nil {
		if err := o.schema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pg schema: %w", err)
		}
	}
	return pool, nil
}

// OpenRedis returns (nil, nil) when url is empty.
func OpenRedis(ctx context.Context, url string, opts ...Option) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	o := collect(opts)
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse: %w", err)
	}
	cli := redis.NewClient(ropts)
	pctx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := cli.Ping(pctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", ropts.Addr, err)
	}
	return cli, nil
}

func MustConnect(cfg config.Config, log *zap.SugaredLogger, opts ...Option) *pgxpool.Pool {
	pool, err := Connect(context.Background(), cfg.DatabaseURL, opts...)
	if err != nil {
		log.Fatalw("postgres", "err", err)
	}
	if pool == nil {
		log.Infow("postgres disabled", "credentials", "file", "path", cfg.StoresFile)
		return nil
	}
	log.Infow("postgres ready", "host", redactDSN(cfg.DatabaseURL), "credentials", "postgres")
	return pool
}

func MustRedis(cfg config.Config, log *zap.SugaredLogger, opts ...Option) *redis.Client {
	cli, err := OpenRedis(context.Background(), cfg.RedisURL, opts...)
	if err != nil {
		log.Fatalw("redis", "err", err)
	}
	if cli == nil {
		log.Infow("redis disabled", "oauth_state", "memory")
		return nil
	}
	log.Infow("redis ready", "addr", cli.Options().Addr, "oauth_state", "redis")
	return cli
}

func redactDSN(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i > 0 {
		scheme := ""
		if j := strings.Index(dsn, "://"); j > 0 && j < i {
			scheme = dsn[:j+3]
		}
		return scheme + "***@" + dsn[i+1:]
	}
	return dsn
}
