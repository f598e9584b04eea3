package cache

import (
	"net/http"
	"strings"
)

// Key derives the deterministic cache key for req: the request target
// (path + query), normalized so an empty target becomes "/", followed by
// one "|<name>=<value>" segment per header named in a comma-separated Vary
// header, in the order listed, using that header's current value on req.
// Vary header names are trimmed of ASCII spaces/tabs and matched against
// request headers case-insensitively; the appended form preserves the name
// exactly as given in Vary.
func Key(req *http.Request) string {
	target := req.URL.Path
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}
	if target == "" {
		target = "/"
	}

	vary := req.Header.Get("Vary")
	if vary == "" {
		return target
	}

	var b strings.Builder
	b.WriteString(target)
	for _, name := range strings.Split(vary, ",") {
		name = strings.Trim(name, " \t")
		if name == "" {
			continue
		}
		if value := req.Header.Get(name); value != "" {
			b.WriteString("|")
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(value)
		}
	}
	return b.String()
}
