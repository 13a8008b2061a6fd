package install

import (
	"errors"
	"net/http"

	"shopconnect/internal/shop"
	"shopconnect/pkg/problems"
)

var (
	ErrConfigurationMissing = errors.New("shopify app not configured")
	ErrInvalidSignature     = errors.New("invalid hmac")
	ErrUnknownState         = errors.New("invalid or expired state")
	ErrShopMismatch         = errors.New("shop mismatch")
	ErrMissingCode          = errors.New("missing code")
	ErrTokenExchange        = errors.New("could not get token")
	ErrPersistence          = errors.New("could not store credential")
	ErrNotConnected         = errors.New("shop not connected")
)

type failure struct {
	err    error
	slug   string
	status int
	detail string
}

// failures is ordered; the first match wins.
var failures = []failure{
	{ErrConfigurationMissing, "shopify-not-configured", http.StatusServiceUnavailable,
		"Set SHOPIFY_CLIENT_ID, SHOPIFY_CLIENT_SECRET and SHOPIFY_APP_URL, then restart the server."},
	{shop.ErrInvalidShop, "invalid-shop", http.StatusBadRequest,
		"Use your-store.myshopify.com or your-store."},
	{ErrInvalidSignature, "invalid-signature", http.StatusBadRequest, ""},
	{ErrUnknownState, "invalid-state", http.StatusBadRequest, "Try connecting again."},
	{ErrShopMismatch, "shop-mismatch", http.StatusBadRequest, "Try connecting again."},
	{ErrMissingCode, "missing-code", http.StatusBadRequest, ""},
	{ErrTokenExchange, "token-exchange-failed", http.StatusBadGateway, "Start the connection again."},
	{ErrPersistence, "persistence-failed", http.StatusInternalServerError, ""},
	{ErrNotConnected, "not-connected", http.StatusNotFound, ""},
}

// Problem maps an install error to its HTTP representation. Details are
// fixed strings so upstream bodies and secrets never reach the client.
func Problem(err error) problems.Problem {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return problems.Problem{Type: problems.Type(f.slug), Title: f.err.Error(), Status: f.status, Detail: f.detail}
		}
	}
	return problems.Problem{Type: problems.Type("internal"), Title: "internal error", Status: http.StatusInternalServerError}
}
