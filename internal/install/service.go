// Package install runs the Shopify app install: it sends the merchant to the
// consent screen and turns the signed callback into a stored credential.
package install

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"shopconnect/internal/credentials"
	"shopconnect/internal/oauthstate"
	"shopconnect/internal/shop"
	"shopconnect/internal/shopifyauth"
	"shopconnect/internal/signature"
	"shopconnect/pkg/config"
)

type Service struct {
	cfg       config.Config
	states    oauthstate.Registry
	exchanger shopifyauth.Exchanger
	store     credentials.Store
	builder   shopifyauth.Builder
	log       *zap.SugaredLogger
	metrics   *Metrics
	now       func() time.Time
}

// NewService wires the flow. metrics may be nil.
func NewService(cfg config.Config, states oauthstate.Registry, exchanger shopifyauth.Exchanger,
	store credentials.Store, log *zap.SugaredLogger, metrics *Metrics) *Service {
	return &Service{
		cfg:       cfg,
		states:    states,
		exchanger: exchanger,
		store:     store,
		builder: shopifyauth.Builder{
			ClientID:    cfg.ShopifyClientID,
			Scope:       cfg.ShopifyScopes,
			RedirectURI: cfg.RedirectURI,
			States:      states,
		},
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Start returns the consent URL for rawShop and registers its state.
func (s *Service) Start(ctx context.Context, rawShop string) (string, error) {
	if !s.cfg.Configured() {
		s.metrics.observe(StageIdle, "not_configured")
		return "", ErrConfigurationMissing
	}
	h, err := shop.Parse(rawShop)
	if err != nil {
		s.metrics.observe(StageIdle, "invalid_shop")
		return "", err
	}
	u, _, err := s.builder.Build(ctx, h)
	if err != nil {
		s.metrics.observe(StageIdle, "state_error")
		return "", fmt.Errorf("issue state: %w", err)
	}
	s.log.Infow("install started", "shop", h, "redirect_uri", s.builder.RedirectURL())
	s.metrics.observe(StageAwaitingCallback, "ok")
	return u, nil
}

// Callback completes the flow for a platform redirect. rawQuery is the
// undecoded query string; params its decoded form. The state is consumed
// before any step that can fail downstream, so a failed callback can never
// be replayed.
func (s *Service) Callback(ctx context.Context, rawQuery string, params url.Values) (shop.Hostname, error) {
	if !s.cfg.Configured() {
		s.metrics.observe(StageIdle, "not_configured")
		return "", ErrConfigurationMissing
	}
	if !signature.VerifyRequest(rawQuery, params, s.cfg.ShopifyClientSecret) {
		return "", s.reject("invalid_signature", ErrInvalidSignature, "shop", params.Get("shop"))
	}

	bound, err := s.states.Consume(ctx, params.Get("state"))
	if err != nil {
		if !errors.Is(err, oauthstate.ErrNotFound) {
			s.log.Errorw("state consume", "err", err)
		}
		return "", s.reject("unknown_state", ErrUnknownState, "shop", params.Get("shop"))
	}
	if reported := shop.Normalize(params.Get("shop")); reported != bound {
		return "", s.reject("shop_mismatch", ErrShopMismatch, "shop", bound, "reported", reported)
	}
	code := params.Get("code")
	if code == "" {
		return "", s.reject("missing_code", ErrMissingCode, "shop", bound)
	}
	s.metrics.observe(StageVerified, "ok")

	tok, err := s.exchanger.Exchange(ctx, bound, code)
	if err != nil {
		var xe *shopifyauth.ExchangeError
		if errors.As(err, &xe) {
			s.log.Warnw("token exchange failed", "shop", bound, "status", xe.Status, "body", xe.Body, "err", xe.Err)
		} else {
			s.log.Warnw("token exchange failed", "shop", bound, "err", err)
		}
		s.metrics.observe(StageFailed, "token_exchange")
		return "", fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	s.metrics.observe(StageExchanged, "ok")

	scope := tok.Scope
	if scope == "" {
		scope = s.builder.Scope
	}
	cred := credentials.Credential{Shop: bound, AccessToken: tok.AccessToken, Scope: scope, InstalledAt: s.now()}
	if err := s.store.Put(ctx, cred); err != nil {
		s.log.Errorw("store credential", "shop", bound, "err", err)
		s.metrics.observe(StageFailed, "persistence")
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.log.Infow("shop connected", "shop", bound, "scope", scope)
	s.metrics.observe(StageStored, "ok")
	return bound, nil
}

func (s *Service) reject(result string, err error, kv ...any) error {
	s.log.Warnw("callback rejected", append([]any{"reason", result}, kv...)...)
	s.metrics.observe(StageRejected, result)
	return err
}

// ConnectedShops lists shops holding a credential.
func (s *Service) ConnectedShops(ctx context.Context) ([]shop.Hostname, error) {
	shops, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return shops, nil
}

// Disconnect removes the credential for rawShop and returns its canonical hostname.
func (s *Service) Disconnect(ctx context.Context, rawShop string) (shop.Hostname, error) {
	h, err := shop.Parse(rawShop)
	if err != nil {
		return "", err
	}
	removed, err := s.store.Remove(ctx, h)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !removed {
		return "", ErrNotConnected
	}
	s.log.Infow("shop disconnected", "shop", h)
	return h, nil
}

// DebugInfo describes the OAuth configuration without the client secret.
type DebugInfo struct {
	RedirectURI  string `json:"redirect_uri"`
	AppURL       string `json:"app_url"`
	ClientID     string `json:"client_id,omitempty"`
	AuthorizeURL string `json:"authorize_url_example,omitempty"`
}

const debugShop = shop.Hostname("your-store.myshopify.com")

// Debug reports the redirect URI in use and, with example set, the consent
// URL a placeholder shop would receive. No state is registered.
func (s *Service) Debug(example bool) DebugInfo {
	info := DebugInfo{RedirectURI: s.builder.RedirectURL(), AppURL: s.cfg.AppURL}
	if example {
		info.AuthorizeURL = s.builder.URL(debugShop, "debug")
		return info
	}
	info.ClientID = s.cfg.ShopifyClientID
	if info.ClientID == "" {
		info.ClientID = "(not set)"
	}
	return info
}
