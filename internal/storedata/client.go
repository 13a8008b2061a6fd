// Package storedata reads shop, product and order data from the Shopify Admin
// REST API and renders it as short context strings for the chat assistant.
package storedata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"shopconnect/internal/orderpolicy"
	"shopconnect/internal/shop"
)

const (
	APIVersion     = "2024-01"
	defaultTimeout = 15 * time.Second
	maxProducts    = 20
)

var (
	shopExpr     = jmes.MustCompile(`shop.{name: name, domain: primary_domain.url, currency: currency}`)
	productsExpr = jmes.MustCompile(`products[].{title: title, prices: variants[?price].price, item: variants[0].inventory_item_id}`)
	levelsExpr   = jmes.MustCompile(`inventory_levels[].available`)
	ordersExpr   = jmes.MustCompile(`orders[].{number: to_string(order_number), name: name, email: email, total: total_price, currency: currency, fulfillment: fulfillment_status}`)
)

// listOptions is encoded into the query string by go-shopify.
type listOptions struct {
	Limit            int    `url:"limit,omitempty"`
	Status           string `url:"status,omitempty"`
	InventoryItemIDs string `url:"inventory_item_ids,omitempty"`
}

type Client struct {
	policy *orderpolicy.Policy
	http   *http.Client
	log    *zap.SugaredLogger
}

// NewClient returns a client whose order lookups are filtered by policy.
func NewClient(policy *orderpolicy.Policy, log *zap.SugaredLogger) *Client {
	return &Client{policy: policy, http: &http.Client{Timeout: defaultTimeout}, log: log}
}

// FetchShopSummary renders store name, domain, currency and up to 20 products
// with price and stock. ok is false when nothing could be read.
func (c *Client) FetchShopSummary(ctx context.Context, h shop.Hostname, token string) (string, bool) {
	var parts []string

	if doc, err := c.get(ctx, h, token, "shop.json", nil); err == nil {
		if v, err := shopExpr.Search(doc); err == nil {
			if m, ok := v.(map[string]any); ok {
				parts = append(parts, fmt.Sprintf("Store: %s. Primary domain: %s. Currency: %s.",
					str(m["name"], "N/A"), str(m["domain"], string(h)), str(m["currency"], "USD")))
			}
		}
	}

	if doc, err := c.get(ctx, h, token, "products.json", listOptions{Limit: 25}); err == nil {
		v, _ := productsExpr.Search(doc)
		products, _ := v.([]any)
		var lines []string
		for i, p := range products {
			if i == maxProducts {
				break
			}
			m, _ := p.(map[string]any)
			line := "- " + str(m["title"], "?")
			if prices, _ := m["prices"].([]any); len(prices) > 0 {
				line += " $" + str(prices[0], "")
			}
			if item := str(m["item"], ""); item != "" {
				if n, ok := c.available(ctx, h, token, item); ok {
					line += fmt.Sprintf(", %d in stock", n)
				}
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			parts = append(parts, "Products (name, price, stock): "+strings.Join(lines, "; "))
		}
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

func (c *Client) available(ctx context.Context, h shop.Hostname, token, item string) (int, bool) {
	doc, err := c.get(ctx, h, token, "inventory_levels.json", listOptions{InventoryItemIDs: item})
	if err != nil {
		return 0, false
	}
	v, err := levelsExpr.Search(doc)
	if err != nil {
		return 0, false
	}
	total := 0
	levels, _ := v.([]any)
	for _, l := range levels {
		if f, ok := l.(float64); ok {
			total += int(f)
		}
	}
	return total, true
}

// FetchOrder renders the first recent order the disclosure policy allows for
// orderNumber and email.
func (c *Client) FetchOrder(ctx context.Context, h shop.Hostname, token, orderNumber, email string) (string, bool) {
	if c.policy == nil {
		return "", false
	}
	doc, err := c.get(ctx, h, token, "orders.json", listOptions{Status: "any", Limit: 250})
	if err != nil {
		return "", false
	}
	v, err := ordersExpr.Search(doc)
	if err != nil {
		c.log.Warnw("orders projection", "shop", h, "err", err)
		return "", false
	}
	rows, _ := v.([]any)
	orders := make([]map[string]any, 0, len(rows))
	candidates := make([]orderpolicy.Order, 0, len(rows))
	for _, r := range rows {
		m, _ := r.(map[string]any)
		orders = append(orders, m)
		candidates = append(candidates, orderpolicy.Order{Number: str(m["number"], ""), Email: str(m["email"], "")})
	}
	i, ok := c.policy.First(ctx, orderpolicy.Request{OrderNumber: orderNumber, Email: email}, candidates)
	if !ok {
		return "", false
	}
	o := orders[i]
	return strings.Join([]string{
		fmt.Sprintf("Order #%s (%s)", str(o["number"], ""), str(o["name"], "")),
		"Email: " + str(o["email"], ""),
		fmt.Sprintf("Total: %s %s", str(o["total"], ""), str(o["currency"], "")),
		"Fulfillment: " + str(o["fulfillment"], "unfulfilled"),
	}, ". "), true
}

// get fetches one Admin API resource as a generic JSON document.
func (c *Client) get(ctx context.Context, h shop.Hostname, token, resource string, opts any) (any, error) {
	api, err := goshopify.NewClient(goshopify.App{}, string(h), token,
		goshopify.WithVersion(APIVersion),
		goshopify.WithHTTPClient(c.http),
	)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := api.Get(ctx, resource, &doc, opts); err != nil {
		c.log.Warnw("admin api", "shop", h, "resource", resource, "err", err)
		return nil, fmt.Errorf("storedata: %s: %w", resource, err)
	}
	return doc, nil
}

// str renders a JSON scalar, falling back to def for null and empty strings.
func str(v any, def string) string {
	switch t := v.(type) {
	case nil:
		return def
	case string:
		if t == "" {
			return def
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
