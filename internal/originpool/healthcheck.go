package originpool

import (
	"net/http"
	"net/url"
	"time"
)

// healthProbeClient is a shared client for on-demand health probes, with a
// short timeout so a dead origin never stalls balancer selection.
var healthProbeClient = &http.Client{Timeout: 500 * time.Millisecond}

// isTargetHealthy probes origin's /healthz and considers 2xx/3xx healthy.
func isTargetHealthy(origin *url.URL) bool {
	scheme := origin.Scheme
	if scheme == "" {
		scheme = "https"
	}
	healthURL := &url.URL{Scheme: scheme, Host: origin.Host, Path: "/healthz"}

	req, err := http.NewRequest(http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}
	req.Close = true

	resp, err := healthProbeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
