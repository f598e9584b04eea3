package pipeline

import (
	"net/http"
	"strconv"
	"strings"
)

// hopByHopHeaders is the set stripped from every origin response before it
// reaches either the client or the cache. Unlike a classic transparent
// proxy's hop-by-hop set, this one also strips Content-Length: it is always
// recomputed from the actual (possibly truncated-then-rejected, or
// filtered) body length rather than trusted from upstream.
var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailer":             {},
	"transfer-encoding":   {},
	"upgrade":             {},
	"content-length":      {},
}

// filterHopByHop returns a copy of src with every hop-by-hop header removed
// and Content-Length recomputed from bodyLen.
func filterHopByHop(src http.Header, bodyLen int) http.Header {
	out := make(http.Header, len(src)+1)
	for name, values := range src {
		if _, drop := hopByHopHeaders[strings.ToLower(name)]; drop {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	out.Set("Content-Length", strconv.Itoa(bodyLen))
	return out
}

// copyHeader appends every value from src into dst.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
