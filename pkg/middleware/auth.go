// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"shopconnect/pkg/config"
)

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu    sync.RWMutex
	sets  map[string]cachedJWKS
	fetch func(ctx context.Context, url string) (jwk.Set, error)
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	fetch := c.fetch
	if fetch == nil {
		fetch = func(ctx context.Context, url string) (jwk.Set, error) { return jwk.Fetch(ctx, url) }
	}
	set, err := fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

type subjectKey struct{}

// AdminAuth guards the shop management API with a bearer JWT validated
// against AdminJWKSURL. Without a JWKS URL it is a pass-through.
func AdminAuth(cfg config.Config, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return adminAuth(cfg, log, &jwksCache{})
}

func adminAuth(cfg config.Config, log *zap.SugaredLogger, cache *jwksCache) func(http.Handler) http.Handler {
	if cfg.AdminJWKSURL == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	issuer := strings.TrimRight(cfg.AdminIssuer, "/")
	const jwksTTL = 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			set, err := cache.get(r.Context(), cfg.AdminJWKSURL, jwksTTL)
			if err != nil {
				log.Errorw("jwks fetch", "url", cfg.AdminJWKSURL, "err", err)
				http.Error(w, "jwks fetch failed", http.StatusInternalServerError)
				return
			}
			opts := []jwt.ParseOption{jwt.WithKeySet(set), jwt.WithValidate(true), jwt.WithAcceptableSkew(30 * time.Second)}
			if issuer != "" {
				opts = append(opts, jwt.WithIssuer(issuer))
			}
			if cfg.AdminAudience != "" {
				opts = append(opts, jwt.WithAudience(cfg.AdminAudience))
			}
			jt, err := jwt.Parse([]byte(raw), opts...)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey{}, jt.Subject())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorSub returns the subject of the admin token, or "".
func ActorSub(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
