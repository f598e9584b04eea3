package upstream

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"cacheproxy/internal/applog"
	imetrics "cacheproxy/internal/metrics"
)

// loggingResponseWriter captures status code and bytes written.
type loggingResponseWriter struct {
	http.ResponseWriter
	status     int
	n          int
	preview    []byte
	maxPreview int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.maxPreview > 0 && len(w.preview) < w.maxPreview {
		rem := w.maxPreview - len(w.preview)
		if rem > 0 {
			cp := len(b)
			if cp > rem {
				cp = rem
			}
			w.preview = append(w.preview, b[:cp]...)
		}
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

// rcCombiner lets us restore a body while still closing the original.
type rcCombiner struct {
	io.Reader
	closer io.Closer
}

func (r rcCombiner) Close() error { return r.closer.Close() }

// withRequestLogging logs request/response details for every request,
// shipping the same lines through applog.Emit so they share the Loki
// sink and level toggles used by the proxy.
func withRequestLogging(next http.Handler) http.Handler {
	const maxBodyPreview = 8 << 10 // 8KB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isMetricsScrape(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		imetrics.UpstreamInflightInc()
		defer imetrics.UpstreamInflightDec()

		var remote, fwdChain string
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			fwdChain = xf
			remote = strings.TrimSpace(strings.Split(xf, ",")[0])
		} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remote = host
		} else {
			remote = r.RemoteAddr
		}

		var preview []byte
		if r.Body != nil {
			limited := io.LimitReader(r.Body, maxBodyPreview+1)
			buf, _ := io.ReadAll(limited)
			truncated := len(buf) > maxBodyPreview
			rest := r.Body
			var reader io.Reader
			if truncated {
				preview = buf[:maxBodyPreview]
				reader = io.MultiReader(bytes.NewReader(preview), rest)
			} else {
				preview = buf
				reader = bytes.NewReader(preview)
				rest = io.NopCloser(bytes.NewReader(nil))
			}
			r.Body = rcCombiner{Reader: reader, closer: rest}
		}

		labels := map[string]string{
			"method":     r.Method,
			"host":       applog.MustHostname(),
			"request_id": r.Header.Get("X-Request-ID"),
			"fwd":        fwdChain,
		}

		bodyNote := ""
		if len(preview) > 0 {
			bodyNote = fmt.Sprintf(", req_body_preview=%q", string(preview))
		}
		reqLine := fmt.Sprintf(
			"REQ remote=%s fwd=%q method=%s url=%s proto=%s%s",
			remote, fwdChain, r.Method, r.URL.RequestURI(), r.Proto, bodyNote,
		)
		applog.Emit("info", "upstream", labels, reqLine)

		lrw := &loggingResponseWriter{ResponseWriter: w, maxPreview: maxBodyPreview}
		next.ServeHTTP(lrw, r)

		dur := time.Since(start)
		status := lrw.status
		if status == 0 {
			status = http.StatusOK
		}

		respBodyNote := ""
		if len(lrw.preview) > 0 {
			respBodyNote = fmt.Sprintf(", resp_body_preview=%q", string(lrw.preview))
		}
		respLine := fmt.Sprintf(
			"RESP status=%d bytes=%d dur=%s cache-control=%q etag=%q x-cache=%q%s",
			status, lrw.n, dur.String(),
			lrw.Header().Get("Cache-Control"), lrw.Header().Get("ETag"), lrw.Header().Get("X-Cache"),
			respBodyNote,
		)
		respLabels := map[string]string{
			"method":     r.Method,
			"status":     strconv.Itoa(status),
			"upstream":   lrw.Header().Get("X-Upstream"),
			"host":       applog.MustHostname(),
			"request_id": r.Header.Get("X-Request-ID"),
		}
		applog.Emit("info", "upstream", respLabels, respLine)

		imetrics.ObserveUpstreamResponse(r.Method, status, dur)
	})
}

// withRequestID assigns a unique ID to each request before it reaches the
// logging middleware.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isMetricsScrape(r) {
			next.ServeHTTP(w, r)
			return
		}
		reqID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddInt64(&requestCounter, 1))
		r.Header.Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

var requestCounter int64

// isMetricsScrape identifies Prometheus /metrics scrapes to reduce log noise.
func isMetricsScrape(r *http.Request) bool {
	if r.URL != nil && r.URL.Path == "/metrics" {
		return true
	}
	if strings.Contains(r.Header.Get("User-Agent"), "Prometheus") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "openmetrics")
}
