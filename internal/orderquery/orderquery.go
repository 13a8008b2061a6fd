// Package orderquery spots order lookups in free-form chat messages.
package orderquery

import (
	"regexp"
	"strings"
)

// Query is what could be read from a message. Either field may be empty.
type Query struct {
	OrderNumber string
	Email       string
}

var (
	orderNumberRe = regexp.MustCompile(`(?i)(?:#\s*|\border\s*(?:number|no\.?|num\.?)?\s*[:#]?\s*)(\d{3,10})\b`)
	emailRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// TryExtractOrderQuery returns ok when an order number or an email is present.
func TryExtractOrderQuery(text string) (Query, bool) {
	var q Query
	if m := orderNumberRe.FindStringSubmatch(text); m != nil {
		q.OrderNumber = m[1]
	}
	if m := emailRe.FindString(text); m != "" {
		q.Email = strings.TrimRight(m, ".")
	}
	return q, q.OrderNumber != "" || q.Email != ""
}
