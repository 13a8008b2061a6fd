package shopifyauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"shopconnect/internal/shop"
)

// DefaultExchangeTimeout bounds the server-to-server token call.
const DefaultExchangeTimeout = 10 * time.Second

const maxErrorBody = 512

// Token is what a successful exchange yields. Shopify offline tokens do not expire.
type Token struct {
	AccessToken string
	Scope       string
}

// Exchanger trades a one-time authorization code for a Token.
type Exchanger interface {
	Exchange(ctx context.Context, h shop.Hostname, code string) (Token, error)
}

// ExchangeError carries the upstream response for diagnostics. It never holds
// the client secret.
type ExchangeError struct {
	Shop   shop.Hostname
	Status int
	Body   string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token exchange for %s failed: upstream status %d", e.Shop, e.Status)
	}
	return fmt.Sprintf("token exchange for %s failed: %v", e.Shop, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Client posts client_id, client_secret and code to https://<shop>/admin/oauth/access_token.
// It never retries: codes are single use.
type Client struct {
	ClientID     string
	ClientSecret string
	BaseURL      string

	http *http.Client
}

// NewClient returns a Client whose requests time out after timeout (DefaultExchangeTimeout when <= 0).
func NewClient(clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

func (c *Client) Exchange(ctx context.Context, h shop.Hostname, code string) (Token, error) {
	cfg := oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  shopBase(c.BaseURL, h) + "/admin/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	hc := c.http
	if hc == nil {
		hc = &http.Client{Timeout: DefaultExchangeTimeout}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		xe := &ExchangeError{Shop: h, Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			if re.Response != nil {
				xe.Status = re.Response.StatusCode
			}
			xe.Body = truncate(string(re.Body), maxErrorBody)
		}
		return Token{}, xe
	}
	out := Token{AccessToken: tok.AccessToken}
	if s, ok := tok.Extra("scope").(string); ok {
		out.Scope = s
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
