package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shopconnect/pkg/openapi"
	"shopconnect/pkg/problems"
)

type chatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
	Shop    string    `json:"shop"`
}

func RegisterRoutes(r chi.Router, svc *Service, log *zap.SugaredLogger) {
	r.Post("/api/chat", func(w http.ResponseWriter, req *http.Request) {
		var in chatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20)).Decode(&in); err != nil || in.Message == "" {
			problems.Write(w, problems.Problem{Type: problems.Type("bad-request"), Title: "bad request", Status: http.StatusBadRequest, Detail: "expected {\"message\": \"...\"}"})
			return
		}
		reply, err := svc.Reply(req.Context(), in.Message, in.History, in.Shop)
		if err != nil {
			detail := "Chat failed."
			if errors.Is(err, ErrNotConfigured) {
				detail = err.Error()
			} else {
				log.Errorw("chat reply", "err", err)
			}
			problems.Write(w, problems.Problem{Type: problems.Type("chat-failed"), Title: "chat failed", Status: http.StatusInternalServerError, Detail: detail})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	})
}

func Operations() []openapi.Operation {
	return []openapi.Operation{{
		Method: "POST", Path: "/api/chat", Summary: "Assistant reply grounded in store data", Tags: []string{"chat"},
		RequestBody: map[string]any{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"shop":    map[string]any{"type": "string"},
				"history": map[string]any{"type": "array", "items": map[string]any{
					"type":       "object",
					"properties": map[string]any{"role": map[string]any{"type": "string"}, "content": map[string]any{"type": "string"}},
				}},
			},
		},
		Responses: map[string]string{"200": "reply", "400": "bad request", "500": "chat failed or not configured"},
	}}
}
