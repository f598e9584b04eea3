package pipeline

import (
	"strconv"
	"strings"
)

// cacheControlDirectives splits a Cache-Control header value into its
// lowercased, trimmed, comma-separated directives.
func cacheControlDirectives(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// effectiveTTL derives the admission TTL (seconds) from an origin response's
// Cache-Control header per spec: no-store/no-cache => 0; max-age=<n> => n
// (a malformed integer is treated as absent, falling through); otherwise
// the configured default.
func effectiveTTL(cacheControl string, defaultTTL int) int {
	for _, d := range cacheControlDirectives(cacheControl) {
		if d == "no-store" || d == "no-cache" {
			return 0
		}
	}
	for _, d := range cacheControlDirectives(cacheControl) {
		if !strings.HasPrefix(d, "max-age=") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(d, "max-age="))
		if err != nil {
			continue
		}
		return n
	}
	return defaultTTL
}
