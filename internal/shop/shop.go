// Package shop normalizes and validates Shopify store identifiers.
package shop

import (
	"errors"
	"regexp"
	"strings"
)

// Domain is the platform suffix every canonical hostname carries.
const Domain = ".myshopify.com"

// ErrInvalidShop is returned when an identifier does not normalize to a valid hostname.
var ErrInvalidShop = errors.New("invalid shop: use your-store.myshopify.com or your-store")

// Hostname is a canonical store hostname such as acme.myshopify.com.
type Hostname string

func (h Hostname) String() string { return string(h) }

var hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-]*\.myshopify\.com$`)

// Normalize turns user input ("Acme", "acme.myshopify.com", "https://acme.myshopify.com/admin")
// into acme.myshopify.com. Empty input yields "". Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) Hostname {
	s := asciiLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	// A scheme only counts when it precedes the first path separator.
	if i := strings.Index(s, "://"); i >= 0 && !strings.ContainsAny(s[:i], "/?#") {
		s = s[i+3:]
	} else if strings.HasPrefix(s, "//") {
		s = s[2:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, Domain))
	if s == "" {
		return ""
	}
	return Hostname(s + Domain)
}

// asciiLower folds A-Z only. Unicode case mapping can turn non-ASCII input
// into ASCII (U+212A KELVIN SIGN lowers to "k"), which would let it pass validation.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// Validate reports whether h has the canonical <label>.myshopify.com shape.
func Validate(h Hostname) bool {
	return hostnameRe.MatchString(string(h))
}

// Parse normalizes raw and rejects anything that does not validate.
func Parse(raw string) (Hostname, error) {
	h := Normalize(raw)
	if !Validate(h) {
		return "", ErrInvalidShop
	}
	return h, nil
}
