package http11

import (
	"net/url"
	"strings"
)

// QueryItem is one entry of the ordered, duplicate-preserving query
// list (spec.md §3). It is populated from the raw query string, and
// later appended to by urlencoded-form and multipart-form-data parsing
// (spec.md §4.2).
type QueryItem struct {
	Name  string
	Value string
}

// ParseQueryItems parses a raw query string (without the leading '?')
// into an ordered list, preserving duplicate names (spec.md §8
// property 3: round-trip modulo ordering within duplicated names,
// which must itself be preserved).
func ParseQueryItems(raw string) []QueryItem {
	if raw == "" {
		return nil
	}
	pairs := strings.Split(raw, "&")
	items := make([]QueryItem, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		name := pair
		value := ""
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			name = pair[:idx]
			value = pair[idx+1:]
		}
		items = append(items, QueryItem{Name: decodeFormComponent(name), Value: decodeFormComponent(value)})
	}
	return items
}

// decodeFormComponent replaces '+' with space then percent-decodes,
// matching application/x-www-form-urlencoded semantics (spec.md §4.2).
func decodeFormComponent(s string) string {
	s = strings.ReplaceAll(s, "+", " ")
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

// EncodeQueryItems renders items back to a urlencoded query string
// (spec.md §8 property 3 round-trip).
func EncodeQueryItems(items []QueryItem) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(encodeFormComponent(it.Name))
		b.WriteByte('=')
		b.WriteString(encodeFormComponent(it.Value))
	}
	return b.String()
}

func encodeFormComponent(s string) string {
	escaped := url.QueryEscape(s)
	return strings.ReplaceAll(escaped, "%20", "+")
}

// Get returns the first value stored under name, and whether it exists.
func Get(items []QueryItem, name string) (string, bool) {
	for _, it := range items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return "", false
}

// GetAll returns every value stored under name, in insertion order.
func GetAll(items []QueryItem, name string) []string {
	var out []string
	for _, it := range items {
		if it.Name == name {
			out = append(out, it.Value)
		}
	}
	return out
}
