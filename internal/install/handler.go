package install

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shopconnect/internal/shop"
	"shopconnect/pkg/openapi"
	"shopconnect/pkg/problems"
)

// RegisterRoutes mounts the install flow and the shop management API.
// guard wraps the management routes; pass nil for none.
func RegisterRoutes(r chi.Router, svc *Service, log *zap.SugaredLogger, guard func(http.Handler) http.Handler) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "app": "shopconnect"})
	})

	r.Get("/auth/shopify", func(w http.ResponseWriter, req *http.Request) {
		u, err := svc.Start(req.Context(), req.URL.Query().Get("shop"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		http.Redirect(w, req, u, http.StatusFound)
	})

	r.Get("/auth/shopify/callback", func(w http.ResponseWriter, req *http.Request) {
		if _, err := svc.Callback(req.Context(), req.URL.RawQuery, req.URL.Query()); err != nil {
			writeError(w, log, err)
			return
		}
		http.Redirect(w, req, svc.cfg.ConnectedPath, http.StatusFound)
	})

	r.Get("/api/shopify_redirect_uri", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Debug(false))
	})
	r.Get("/api/shopify_debug", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Debug(true))
	})

	r.Group(func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Get("/api/connected_shops", func(w http.ResponseWriter, req *http.Request) {
			shops, err := svc.ConnectedShops(req.Context())
			if err != nil {
				writeError(w, log, err)
				return
			}
			if shops == nil {
				shops = []shop.Hostname{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"shops": shops})
		})
		r.Post("/api/disconnect", func(w http.ResponseWriter, req *http.Request) {
			raw, err := disconnectShop(req)
			if err != nil {
				problems.Write(w, problems.Problem{Type: problems.Type("bad-request"), Title: "bad request", Status: http.StatusBadRequest, Detail: err.Error()})
				return
			}
			h, err := svc.Disconnect(req.Context(), raw)
			if err != nil {
				writeError(w, log, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "shop": h})
		})
	})
}

// disconnectShop reads the shop from a JSON body or a form value.
func disconnectShop(req *http.Request) (string, error) {
	ct := req.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		return req.FormValue("shop"), nil
	}
	var body struct {
		Shop string `json:"shop"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(nil, req.Body, 1<<16)).Decode(&body); err != nil {
		if v := req.URL.Query().Get("shop"); v != "" {
			return v, nil
		}
		return "", errors.New("expected JSON body {\"shop\": \"...\"}")
	}
	return body.Shop, nil
}

func writeError(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	p := Problem(err)
	if p.Status >= http.StatusInternalServerError && p.Status != http.StatusServiceUnavailable {
		log.Errorw("install request failed", "status", p.Status, "err", err)
	}
	problems.Write(w, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Operations describes the routes mounted by RegisterRoutes.
func Operations() []openapi.Operation {
	tags := []string{"install"}
	return []openapi.Operation{
		{Method: "GET", Path: "/health", Summary: "Reachability check", Responses: map[string]string{"200": "ok"}},
		{Method: "GET", Path: "/auth/shopify", Summary: "Start the install and redirect to the consent screen", Tags: tags,
			Params:    []openapi.Param{{Name: "shop", Required: true}},
			Responses: map[string]string{"302": "consent redirect", "400": "invalid shop", "503": "app not configured"}},
		{Method: "GET", Path: "/auth/shopify/callback", Summary: "Platform callback", Tags: tags,
			Params: []openapi.Param{{Name: "shop", Required: true}, {Name: "code", Required: true}, {Name: "state", Required: true}, {Name: "hmac", Required: true}},
			Responses: map[string]string{"302": "connected", "400": "rejected", "500": "credential not stored",
				"502": "token exchange failed", "503": "app not configured"}},
		{Method: "GET", Path: "/api/shopify_redirect_uri", Summary: "Configured redirect URI", Tags: tags, Responses: map[string]string{"200": "ok"}},
		{Method: "GET", Path: "/api/shopify_debug", Summary: "Example consent URL", Tags: tags, Responses: map[string]string{"200": "ok"}},
		{Method: "GET", Path: "/api/connected_shops", Summary: "List connected shops", Tags: []string{"shops"}, Admin: true,
			Responses: map[string]string{"200": "shops"}},
		{Method: "POST", Path: "/api/disconnect", Summary: "Remove a shop's credential", Tags: []string{"shops"}, Admin: true,
			RequestBody: map[string]any{"type": "object", "required": []string{"shop"}, "properties": map[string]any{"shop": map[string]any{"type": "string"}}},
			Responses:   map[string]string{"200": "disconnected", "400": "invalid shop", "404": "not connected"}},
	}
}
