package install

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopconnect/internal/credentials"
	"shopconnect/internal/oauthstate"
	"shopconnect/internal/shop"
	"shopconnect/internal/shopifyauth"
	"shopconnect/internal/signature"
	"shopconnect/pkg/config"
	"shopconnect/pkg/logger"
)

const (
	clientID = "client-123"
	secret   = "shpss_test_secret"
	acme     = shop.Hostname("acme.myshopify.com")
)

type fakeExchanger struct {
	calls atomic.Int32
	token string
	err   error
}

func (f *fakeExchanger) Exchange(_ context.Context, h shop.Hostname, code string) (shopifyauth.Token, error) {
	f.calls.Add(1)
	if f.err != nil {
		return shopifyauth.Token{}, f.err
	}
	return shopifyauth.Token{AccessToken: f.token + ":" + code, Scope: "read_orders"}, nil
}

type failingStore struct{ credentials.Store }

func (failingStore) Put(context.Context, credentials.Credential) error { return errors.New("disk full") }

type fixture struct {
	svc     *Service
	states  *oauthstate.Memory
	store   credentials.Store
	ex      *fakeExchanger
	metrics *Metrics
}

func testConfig() config.Config {
	return config.Config{
		ShopifyClientID:     clientID,
		ShopifyClientSecret: secret,
		ShopifyScopes:       "read_orders",
		AppURL:              "https://app.example",
		RedirectURI:         "https://app.example/auth/shopify/callback/",
		ConnectedPath:       "/connect?connected=1",
	}
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	f := &fixture{
		states:  oauthstate.NewMemory(time.Minute),
		store:   credentials.NewMemoryStore(),
		ex:      &fakeExchanger{token: "shpat"},
		metrics: m,
	}
	f.svc = NewService(cfg, f.states, f.ex, f.store, logger.Nop(), m)
	return f
}

// signedCallback returns the decoded and raw forms of a platform callback.
func signedCallback(h shop.Hostname, state, code string) (url.Values, string) {
	p := url.Values{}
	p.Set("shop", string(h))
	p.Set("state", state)
	if code != "" {
		p.Set("code", code)
	}
	p.Set("timestamp", "1700000000")
	p.Set("hmac", signature.SignParams(p, secret))
	return p, p.Encode()
}

func stateFrom(t *testing.T, consentURL string) string {
	t.Helper()
	u, err := url.Parse(consentURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestStart_BuildsConsentURL(t *testing.T) {
	f := newFixture(t, testConfig())

	u, err := f.svc.Start(context.Background(), "acme")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "acme.myshopify.com", parsed.Host)
	assert.Equal(t, "/admin/oauth/authorize", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, clientID, q.Get("client_id"))
	assert.Equal(t, "read_orders", q.Get("scope"))
	assert.Equal(t, "https://app.example/auth/shopify/callback", q.Get("redirect_uri"))

	h, err := f.states.Consume(context.Background(), q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, acme, h)
}

func TestStart_Errors(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := f.svc.Start(context.Background(), "bad shop!")
	assert.ErrorIs(t, err, shop.ErrInvalidShop)
	assert.Equal(t, 0, f.states.Len())

	unconfigured := newFixture(t, config.Config{})
	_, err = unconfigured.svc.Start(context.Background(), "acme")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestCallback_StoresCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	u, err := f.svc.Start(ctx, "acme")
	require.NoError(t, err)

	params, raw := signedCallback(acme, stateFrom(t, u), "XYZ")
	h, err := f.svc.Callback(ctx, raw, params)
	require.NoError(t, err)
	assert.Equal(t, acme, h)

	c, err := f.store.Get(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, "shpat:XYZ", c.AccessToken)
	assert.Equal(t, "read_orders", c.Scope)
	assert.False(t, c.InstalledAt.IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.outcomes.WithLabelValues(string(StageStored), "ok")))
}

func TestCallback_TamperedParameterLeavesStateUnconsumed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	u, err := f.svc.Start(ctx, "acme")
	require.NoError(t, err)
	state := stateFrom(t, u)

	params, _ := signedCallback(acme, state, "XYZ")
	params.Set("code", "XYZ2")
	_, err = f.svc.Callback(ctx, params.Encode(), params)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, f.ex.calls.Load())

	h, err := f.states.Consume(ctx, state)
	require.NoError(t, err, "signature failure must not consume the state")
	assert.Equal(t, acme, h)
}

func TestCallback_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown state", func(t *testing.T) {
		f := newFixture(t, testConfig())
		params, raw := signedCallback(acme, "deadbeef", "XYZ")
		_, err := f.svc.Callback(ctx, raw, params)
		assert.ErrorIs(t, err, ErrUnknownState)
	})

	t.Run("replayed state", func(t *testing.T) {
		f := newFixture(t, testConfig())
		u, _ := f.svc.Start(ctx, "acme")
		params, raw := signedCallback(acme, stateFrom(t, u), "XYZ")
		_, err := f.svc.Callback(ctx, raw, params)
		require.NoError(t, err)
		_, err = f.svc.Callback(ctx, raw, params)
		assert.ErrorIs(t, err, ErrUnknownState)
		assert.EqualValues(t, 1, f.ex.calls.Load())
	})

	t.Run("shop mismatch consumes state", func(t *testing.T) {
		f := newFixture(t, testConfig())
		u, _ := f.svc.Start(ctx, "acme")
		state := stateFrom(t, u)
		params, raw := signedCallback("other.myshopify.com", state, "XYZ")
		_, err := f.svc.Callback(ctx, raw, params)
		assert.ErrorIs(t, err, ErrShopMismatch)
		_, err = f.states.Consume(ctx, state)
		assert.ErrorIs(t, err, oauthstate.ErrNotFound)
	})

	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t, testConfig())
		u, _ := f.svc.Start(ctx, "acme")
		params, raw := signedCallback(acme, stateFrom(t, u), "")
		_, err := f.svc.Callback(ctx, raw, params)
		assert.ErrorIs(t, err, ErrMissingCode)
	})

	t.Run("exchange failure", func(t *testing.T) {
		f := newFixture(t, testConfig())
		upstream := &shopifyauth.ExchangeError{Shop: acme, Status: 400, Body: `{"error":"invalid_request"}`}
		f.ex.err = upstream
		u, _ := f.svc.Start(ctx, "acme")
		params, raw := signedCallback(acme, stateFrom(t, u), "XYZ")
		_, err := f.svc.Callback(ctx, raw, params)
		assert.ErrorIs(t, err, ErrTokenExchange)
		var xe *shopifyauth.ExchangeError
		assert.ErrorAs(t, err, &xe)
		_, err = f.store.Get(ctx, acme)
		assert.ErrorIs(t, err, credentials.ErrNotFound)
	})

	t.Run("persistence failure", func(t *testing.T) {
		f := newFixture(t, testConfig())
		f.svc.store = failingStore{f.store}
		u, _ := f.svc.Start(ctx, "acme")
		params, raw := signedCallback(acme, stateFrom(t, u), "XYZ")
		_, err := f.svc.Callback(ctx, raw, params)
		assert.ErrorIs(t, err, ErrPersistence)
	})

	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, config.Config{})
		params, raw := signedCallback(acme, "x", "XYZ")
		_, err := f.svc.Callback(ctx, raw, params)
		assert.ErrorIs(t, err, ErrConfigurationMissing)
	})
}

func TestCallback_ConcurrentSameState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	u, err := f.svc.Start(ctx, "acme")
	require.NoError(t, err)
	params, raw := signedCallback(acme, stateFrom(t, u), "XYZ")

	const n = 8
	var wg sync.WaitGroup
	var ok, unknown atomic.Int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Callback(ctx, raw, params)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrUnknownState):
				unknown.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, unknown.Load())
	assert.EqualValues(t, 1, f.ex.calls.Load())
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	require.NoError(t, f.store.Put(ctx, credentials.Credential{Shop: acme, AccessToken: "t"}))

	h, err := f.svc.Disconnect(ctx, "https://ACME.myshopify.com/admin")
	require.NoError(t, err)
	assert.Equal(t, acme, h)

	_, err = f.svc.Disconnect(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = f.svc.Disconnect(ctx, "")
	assert.ErrorIs(t, err, shop.ErrInvalidShop)
}

func TestDebug(t *testing.T) {
	f := newFixture(t, testConfig())
	info := f.svc.Debug(false)
	assert.Equal(t, "https://app.example/auth/shopify/callback", info.RedirectURI)
	assert.Equal(t, clientID, info.ClientID)

	ex := f.svc.Debug(true)
	assert.Equal(t, info.RedirectURI, ex.RedirectURI)
	u, err := url.Parse(ex.AuthorizeURL)
	require.NoError(t, err)
	assert.Equal(t, info.RedirectURI, u.Query().Get("redirect_uri"))
	assert.Contains(t, ex.AuthorizeURL, "https://your-store.myshopify.com/admin/oauth/authorize?")
	assert.Contains(t, ex.AuthorizeURL, "state=debug")
	assert.Equal(t, 0, f.states.Len())

	assert.Equal(t, "(not set)", newFixture(t, config.Config{}).svc.Debug(false).ClientID)
}
