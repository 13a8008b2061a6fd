// Package shopifyauth talks OAuth to a shop: it builds the consent redirect and
// trades the returned authorization code for an offline access token.
package shopifyauth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"

	"shopconnect/internal/oauthstate"
	"shopconnect/internal/shop"
)

// DefaultScope is requested when none is configured.
const DefaultScope = "read_orders"

// Builder composes authorization URLs. States is required.
type Builder struct {
	ClientID    string
	Scope       string
	RedirectURI string
	States      oauthstate.Registry
	// BaseURL replaces https://<shop> (tests only).
	BaseURL string
}

// Build issues one state for h and returns the consent URL embedding it.
// The redirect URI loses any trailing slash: Shopify requires an exact match.
func (b Builder) Build(ctx context.Context, h shop.Hostname) (string, string, error) {
	if b.States == nil {
		return "", "", errors.New("shopifyauth: no state registry")
	}
	state, err := b.States.Issue(ctx, h)
	if err != nil {
		return "", "", err
	}
	return b.URL(h, state), state, nil
}

// RedirectURL is the configured redirect URI without trailing slashes, as sent to Shopify.
func (b Builder) RedirectURL() string {
	return strings.TrimRight(b.RedirectURI, "/")
}

// URL renders the consent URL for an already issued state.
func (b Builder) URL(h shop.Hostname, state string) string {
	scope := b.Scope
	if scope == "" {
		scope = DefaultScope
	}
	cfg := oauth2.Config{
		ClientID:    b.ClientID,
		RedirectURL: b.RedirectURL(),
		Scopes:      []string{scope},
		Endpoint:    oauth2.Endpoint{AuthURL: shopBase(b.BaseURL, h) + "/admin/oauth/authorize"},
	}
	return cfg.AuthCodeURL(state)
}

func shopBase(override string, h shop.Hostname) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return "https://" + string(h)
}
