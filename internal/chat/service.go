package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"shopconnect/internal/credentials"
	"shopconnect/internal/orderquery"
	"shopconnect/internal/shop"
)

const maxHistory = 20

const systemPrompt = "You are a friendly customer service assistant for an ecommerce store. " +
	"Answer helpfully and concisely. If the user asks about orders, refunds, or shipping and no order details are given below, " +
	"ask for their order number and the email used at checkout. Keep the tone warm and professional."

// StoreData supplies context strings for a connected shop.
type StoreData interface {
	FetchShopSummary(ctx context.Context, h shop.Hostname, token string) (string, bool)
	FetchOrder(ctx context.Context, h shop.Hostname, token, orderNumber, email string) (string, bool)
}

type Service struct {
	completer Completer
	store     credentials.Store
	data      StoreData
	log       *zap.SugaredLogger
}

// NewService builds the assistant. store and data may be nil, in which case
// replies carry no store context.
func NewService(completer Completer, store credentials.Store, data StoreData, log *zap.SugaredLogger) *Service {
	return &Service{completer: completer, store: store, data: data, log: log}
}

// Reply answers message given prior turns. rawShop selects the connected store
// whose data grounds the answer; it may be empty.
func (s *Service) Reply(ctx context.Context, message string, history []Message, rawShop string) (string, error) {
	if s.completer == nil {
		return "", ErrNotConfigured
	}
	msgs := []Message{{Role: "system", Content: systemPrompt}}
	msgs = append(msgs, s.storeContext(ctx, message, rawShop)...)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	for _, h := range history {
		if h.Role != "user" && h.Role != "assistant" {
			continue
		}
		msgs = append(msgs, h)
	}
	msgs = append(msgs, Message{Role: "user", Content: message})
	return s.completer.Complete(ctx, msgs)
}

func (s *Service) storeContext(ctx context.Context, message, rawShop string) []Message {
	if rawShop == "" || s.store == nil || s.data == nil {
		return nil
	}
	h, err := shop.Parse(rawShop)
	if err != nil {
		return nil
	}
	cred, err := s.store.Get(ctx, h)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			s.log.Warnw("chat credential lookup", "shop", h, "err", err)
		}
		return nil
	}
	var out []Message
	if summary, ok := s.data.FetchShopSummary(ctx, h, cred.AccessToken); ok {
		out = append(out, Message{Role: "system", Content: "Store context: " + summary})
	}
	if q, ok := orderquery.TryExtractOrderQuery(message); ok {
		if order, ok := s.data.FetchOrder(ctx, h, cred.AccessToken, q.OrderNumber, q.Email); ok {
			out = append(out, Message{Role: "system", Content: "Order context: " + order})
		}
	}
	return out
}
