package install

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopconnect/internal/credentials"
	"shopconnect/internal/oauthstate"
	"shopconnect/internal/shopifyauth"
	"shopconnect/pkg/config"
	"shopconnect/pkg/logger"
)

// platform fakes the shop's token endpoint.
func platform(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/oauth/access_token" || r.ParseForm() != nil {
			http.NotFound(w, r)
			return
		}
		if r.PostForm.Get("client_secret") != secret || r.PostForm.Get("code") != "XYZ" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_request"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"shpat_live","scope":"read_orders"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRouter(t *testing.T) (http.Handler, credentials.Store) {
	t.Helper()
	ex := shopifyauth.NewClient(clientID, secret, 2*time.Second)
	ex.BaseURL = platform(t).URL
	store := credentials.NewMemoryStore()
	svc := NewService(testConfig(), oauthstate.NewMemory(time.Minute), ex, store, logger.Nop(), nil)
	r := chi.NewRouter()
	RegisterRoutes(r, svc, logger.Nop(), nil)
	return r, store
}

func do(h http.Handler, method, target, body, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_InstallConnectDisconnect(t *testing.T) {
	h, store := newRouter(t)

	rec := do(h, http.MethodGet, "/auth/shopify?shop=acme", "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	state := stateFrom(t, rec.Header().Get("Location"))
	require.NotEmpty(t, state)

	_, raw := signedCallback(acme, state, "XYZ")
	rec = do(h, http.MethodGet, "/auth/shopify/callback?"+raw, "", "")
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/connect?connected=1", rec.Header().Get("Location"))

	c, err := store.Get(context.Background(), acme)
	require.NoError(t, err)
	assert.Equal(t, "shpat_live", c.AccessToken)

	rec = do(h, http.MethodGet, "/api/connected_shops", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"shops":["acme.myshopify.com"]}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "shpat_live")

	rec = do(h, http.MethodPost, "/api/disconnect", `{"shop":"acme"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"shop":"acme.myshopify.com"}`, rec.Body.String())

	rec = do(h, http.MethodPost, "/api/disconnect", "shop=acme", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHTTP_ErrorStatuses(t *testing.T) {
	h, _ := newRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/auth/shopify?shop=%20", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/auth/shopify/callback?shop=acme.myshopify.com&hmac=00", "", "").Code)

	rec := do(h, http.MethodGet, "/auth/shopify?shop=acme", "", "")
	_, raw := signedCallback(acme, stateFrom(t, rec.Header().Get("Location")), "BAD")
	rec = do(h, http.MethodGet, "/auth/shopify/callback?"+raw, "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), secret)
	assert.NotContains(t, rec.Body.String(), "invalid_request")

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/disconnect", "not json", "application/json").Code)
}

func TestHTTP_NotConfigured(t *testing.T) {
	svc := NewService(testConfigWithout(), oauthstate.NewMemory(time.Minute), nil, credentials.NewMemoryStore(), logger.Nop(), nil)
	r := chi.NewRouter()
	RegisterRoutes(r, svc, logger.Nop(), nil)

	rec := do(r, http.MethodGet, "/auth/shopify?shop=acme", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var p map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.EqualValues(t, 503, p["status"])

	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/auth/shopify/callback?shop=acme", "", "").Code)
}

func TestHTTP_GuardAppliesToManagementRoutes(t *testing.T) {
	svc := NewService(testConfig(), oauthstate.NewMemory(time.Minute), nil, credentials.NewMemoryStore(), logger.Nop(), nil)
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) })
	}
	r := chi.NewRouter()
	RegisterRoutes(r, svc, logger.Nop(), deny)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/connected_shops", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/disconnect", `{"shop":"acme"}`, "application/json").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusFound, do(r, http.MethodGet, "/auth/shopify?shop=acme", "", "").Code)
}

func TestHTTP_DebugEndpoints(t *testing.T) {
	h, _ := newRouter(t)
	rec := do(h, http.MethodGet, "/api/shopify_debug", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info DebugInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	u, err := url.Parse(info.AuthorizeURL)
	require.NoError(t, err)
	assert.Equal(t, "debug", u.Query().Get("state"))

	rec = do(h, http.MethodGet, "/api/shopify_redirect_uri", "", "")
	assert.NotContains(t, rec.Body.String(), secret)
}

func testConfigWithout() (c config.Config) {
	c = testConfig()
	c.ShopifyClientID, c.ShopifyClientSecret = "", ""
	return c
}

func TestOperationsCoverRoutes(t *testing.T) {
	r := chi.NewRouter()
	RegisterRoutes(r, NewService(testConfig(), oauthstate.NewMemory(time.Minute), nil, credentials.NewMemoryStore(), logger.Nop(), nil), logger.Nop(), nil)

	documented := map[string]bool{}
	for _, op := range Operations() {
		documented[op.Method+" "+op.Path] = true
	}
	require.NoError(t, chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		assert.True(t, documented[method+" "+route], "undocumented route %s %s", method, route)
		return nil
	}))
}
