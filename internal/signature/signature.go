// Package signature verifies the HMAC-SHA256 signature Shopify attaches to
// redirects it sends back to the app.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Param is the query parameter carrying the hex signature.
const Param = "hmac"

// Message builds the signed string from decoded parameters: every key except
// Param, sorted, rendered key=value and joined with "&". Only the first value
// of a repeated key is used.
func Message(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != Param {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	return strings.Join(parts, "&")
}

// Sign returns the hex HMAC-SHA256 of msg under secret.
func Sign(msg, secret string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(msg))
	return hex.EncodeToString(m.Sum(nil))
}

// SignParams returns the signature Shopify would attach to params.
func SignParams(params url.Values, secret string) string {
	return Sign(Message(params), secret)
}

// Verify recomputes the signature over the decoded parameters.
func Verify(params url.Values, secret string) bool {
	got := params.Get(Param)
	if got == "" || secret == "" {
		return false
	}
	return equal(Sign(Message(params), secret), got)
}

// VerifyRawQuery recomputes the signature over the undecoded query string so
// percent-encoding is preserved byte for byte.
func VerifyRawQuery(rawQuery, secret string) bool {
	if rawQuery == "" || secret == "" {
		return false
	}
	var got string
	pairs := make([]string, 0, 8)
	for _, p := range strings.Split(rawQuery, "&") {
		if p == "" {
			continue
		}
		k, v, _ := strings.Cut(p, "=")
		if k == Param {
			if dv, err := url.QueryUnescape(v); err == nil {
				got = dv
			} else {
				got = v
			}
			continue
		}
		pairs = append(pairs, p)
	}
	if got == "" {
		return false
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		ki, _, _ := strings.Cut(pairs[i], "=")
		kj, _, _ := strings.Cut(pairs[j], "=")
		return ki < kj
	})
	return equal(Sign(strings.Join(pairs, "&"), secret), got)
}

// VerifyRequest accepts a callback when either the raw query or the decoded
// parameter map verifies. The raw form is tried first.
func VerifyRequest(rawQuery string, params url.Values, secret string) bool {
	if VerifyRawQuery(rawQuery, secret) {
		return true
	}
	return Verify(params, secret)
}

// equal compares hex digests in constant time; case of the received digest is ignored.
func equal(expected, received string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}
