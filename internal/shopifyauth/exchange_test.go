package shopifyauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient("client-123", "s3cret", 2*time.Second)
	c.BaseURL = srv.URL
	return c
}

func TestExchange_Success(t *testing.T) {
	c := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/oauth/access_token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client-123", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "XYZ", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"shpat_abc","scope":"read_orders"}`))
	})

	tok, err := c.Exchange(context.Background(), "acme.myshopify.com", "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "shpat_abc", tok.AccessToken)
	assert.Equal(t, "read_orders", tok.Scope)
}

func TestExchange_UpstreamErrorStatus(t *testing.T) {
	calls := 0
	c := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_request","error_description":"The authorization code was not found or was already used"}`))
	})

	_, err := c.Exchange(context.Background(), "acme.myshopify.com", "used")
	require.Error(t, err)
	var xe *ExchangeError
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, http.StatusBadRequest, xe.Status)
	assert.Contains(t, xe.Body, "already used")
	assert.NotContains(t, err.Error(), "s3cret")
	assert.Equal(t, 1, calls, "no retry")
}

func TestExchange_MalformedBody(t *testing.T) {
	c := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scope":"read_orders"}`))
	})

	_, err := c.Exchange(context.Background(), "acme.myshopify.com", "XYZ")
	var xe *ExchangeError
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, 0, xe.Status)
}

func TestExchange_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := NewClient("client-123", "s3cret", 50*time.Millisecond)
	c.BaseURL = srv.URL

	_, err := c.Exchange(context.Background(), "acme.myshopify.com", "XYZ")
	var xe *ExchangeError
	require.True(t, errors.As(err, &xe))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, strings.Repeat("a", 4)+"...", truncate(strings.Repeat("a", 10), 4))
}
