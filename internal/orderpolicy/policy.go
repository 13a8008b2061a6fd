// Package orderpolicy decides whether an order may be shown to the person asking about it.
package orderpolicy

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// Module is evaluated at data.orders.disclose. A number-only match is not
// enough: the caller must also know the email on the order.
const Module = `package orders

default disclose = false

disclose {
	input.request.order_number != ""
	input.request.email != ""
	input.order.number == input.request.order_number
	lower(input.order.email) == lower(input.request.email)
}

disclose {
	input.request.order_number == ""
	input.request.email != ""
	lower(input.order.email) == lower(input.request.email)
}
`

// Request is what the customer supplied.
type Request struct {
	OrderNumber string
	Email       string
}

// Order is the subset of an order the decision looks at.
type Order struct {
	Number string
	Email  string
}

type Policy struct {
	query rego.PreparedEvalQuery
}

// New compiles Module.
func New(ctx context.Context) (*Policy, error) {
	q, err := rego.New(
		rego.Query("data.orders.disclose"),
		rego.Module("orders.rego", Module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderpolicy: compile: %w", err)
	}
	return &Policy{query: q}, nil
}

// Disclose reports whether o may be revealed for req. Evaluation errors deny.
func (p *Policy) Disclose(ctx context.Context, req Request, o Order) (bool, error) {
	input := map[string]any{
		"request": map[string]any{
			"order_number": normalizeNumber(req.OrderNumber),
			"email":        strings.TrimSpace(req.Email),
		},
		"order": map[string]any{
			"number": normalizeNumber(o.Number),
			"email":  strings.TrimSpace(o.Email),
		},
	}
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed, nil
}

// First returns the index of the first order in orders that Disclose allows.
func (p *Policy) First(ctx context.Context, req Request, orders []Order) (int, bool) {
	for i, o := range orders {
		if ok, err := p.Disclose(ctx, req, o); err == nil && ok {
			return i, true
		}
	}
	return -1, false
}

func normalizeNumber(s string) string {
	return strings.TrimLeft(strings.TrimSpace(s), "#")
}
