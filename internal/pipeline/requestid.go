package pipeline

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var requestCounter int64

// ensureRequestID sets X-Request-ID on req if missing and returns it.
func ensureRequestID(req *http.Request) string {
	id := strings.TrimSpace(req.Header.Get("X-Request-ID"))
	if id == "" {
		id = fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddInt64(&requestCounter, 1))
		req.Header.Set("X-Request-ID", id)
	}
	return id
}
