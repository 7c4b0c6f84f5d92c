package nudgechat

import (
	"net/url"
	"regexp"
	"strings"
)

// An extractor pulls an order reference out of a payment link. Each strategy
// is independent and reports whether it matched; ExtractOrderRef tries them
// in a fixed priority order.
type extractor func(u *url.URL) (string, bool)

// extractFromQuery reads the named order_id query parameter.
func extractFromQuery(u *url.URL) (string, bool) {
	if v := u.Query().Get("order_id"); v != "" {
		return v, true
	}
	return "", false
}

// extractFromShortLink handles short links of the form
// .../l/<slug>-<REF>: the reference is whatever follows the last hyphen in
// the path segment after the /l/ marker.
func extractFromShortLink(u *url.URL) (string, bool) {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg != "l" || i+1 >= len(segments) {
			continue
		}
		slug := segments[i+1]
		if idx := strings.LastIndex(slug, "-"); idx >= 0 && idx+1 < len(slug) {
			return slug[idx+1:], true
		}
	}
	return "", false
}

// vendorOrderPath matches the vendor's hosted order path, e.g.
// /checkout/order/order_Abc123 or /orders/order_Abc123.
var vendorOrderPath = regexp.MustCompile(`/order[s]?/(order_[A-Za-z0-9]+)`)

func extractFromVendorPath(u *url.URL) (string, bool) {
	if m := vendorOrderPath.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	return "", false
}

// extractLastSegment is the best-effort fallback: the final non-empty path
// segment.
func extractLastSegment(u *url.URL) (string, bool) {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i], true
		}
	}
	return "", false
}

var orderRefChain = []extractor{
	extractFromQuery,
	extractFromShortLink,
	extractFromVendorPath,
	extractLastSegment,
}

// ExtractOrderRef resolves the order reference embedded in a payment link.
// Strategies are tried in priority order; ok is false only when every
// strategy comes up empty; checkout must never be opened with no order
// context.
func ExtractOrderRef(link string) (ref string, ok bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	for _, try := range orderRefChain {
		if ref, ok := try(u); ok {
			return ref, true
		}
	}
	return "", false
}
