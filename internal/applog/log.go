// Package applog provides the structured request logging used by a proxy
// instance, plus optional fire-and-forget shipping of the same lines to
// Loki. Local printing is skipped under `go test` so test output stays
// readable.
package applog

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	lokiURL    string
	lokiOnce   sync.Once
	lokiClient = &http.Client{Timeout: 200 * time.Millisecond}

	infoEnabled  = true
	debugEnabled = false
	errorEnabled = true
)

// initLoki lazily reads configs/config.yaml (or .yml) for the Loki push
// endpoint and per-level toggles. Absent the file, Loki shipping stays off
// and the default levels above apply.
func initLoki() {
	lokiURL = ""

	configPath := ""
	for _, candidate := range []string{"configs/config.yaml", "configs/config.yml"} {
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
			break
		}
	}
	if configPath == "" {
		return
	}

	var cfg struct {
		Metrics *struct {
			LokiURL string `yaml:"loki_url"`
		} `yaml:"metrics"`
		Logging *struct {
			InfoEnabled  *bool `yaml:"info_enabled"`
			DebugEnabled *bool `yaml:"debug_enabled"`
			ErrorEnabled *bool `yaml:"error_enabled"`
		} `yaml:"logging"`
	}
	raw, err := os.ReadFile(configPath)
	if err != nil || yaml.Unmarshal(raw, &cfg) != nil {
		return
	}
	if cfg.Metrics != nil && strings.TrimSpace(cfg.Metrics.LokiURL) != "" {
		lokiURL = strings.TrimSpace(cfg.Metrics.LokiURL)
	}
	if cfg.Logging != nil {
		if cfg.Logging.InfoEnabled != nil {
			infoEnabled = *cfg.Logging.InfoEnabled
		}
		if cfg.Logging.DebugEnabled != nil {
			debugEnabled = *cfg.Logging.DebugEnabled
		}
		if cfg.Logging.ErrorEnabled != nil {
			errorEnabled = *cfg.Logging.ErrorEnabled
		}
	}

	if lokiURL != "" && !strings.Contains(lokiURL, "/loki/api/v1/push") {
		lokiURL = strings.TrimRight(lokiURL, "/") + "/loki/api/v1/push"
	}
}

func levelEnabled(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return debugEnabled
	case "error":
		return errorEnabled
	default:
		return infoEnabled
	}
}

func logEnabled() bool {
	if flag.Lookup("test.v") != nil || flag.Lookup("test.run") != nil {
		return false
	}
	return true
}

// Emit prints line locally (outside tests, level permitting) and ships it
// to Loki under the same level.
func Emit(level, app string, labels map[string]string, line string) {
	lvl := strings.ToLower(level)
	if logEnabled() && levelEnabled(lvl) {
		log.Print(line)
	}
	pushLoki(lvl, app, labels, line)
}

func pushLoki(level, app string, labels map[string]string, line string) {
	lokiOnce.Do(initLoki)
	if lokiURL == "" || !levelEnabled(level) {
		return
	}

	streamLabels := map[string]string{"app": app, "level": level}
	for k, v := range labels {
		if strings.TrimSpace(k) != "" {
			streamLabels[k] = v
		}
	}

	ts := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}{
		Streams: []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		}{
			{Stream: streamLabels, Values: [][2]string{{ts, line}}},
		},
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, lokiURL, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	_, _ = lokiClient.Do(req) // fire-and-forget
}

// MustHostname returns the current hostname, or "unknown" on error.
func MustHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// Outcome is a pipeline disposition label used both for X-Cache and for log
// correlation: HIT, "HIT (revalidated)", MISS, a compliant miss, or BYPASS
// for control endpoints.
type Outcome string

const (
	OutcomeHit             Outcome = "HIT"
	OutcomeHitRevalidated  Outcome = "HIT (revalidated)"
	OutcomeMiss            Outcome = "MISS"
	OutcomeCompliantMiss   Outcome = "COMPLIANT_MISS"
	OutcomeBypass          Outcome = "BYPASS"
)

func baseLabels(req *http.Request, status int, outcome Outcome) map[string]string {
	return map[string]string{
		"method":     req.Method,
		"status":     strconv.Itoa(status),
		"cache":      string(outcome),
		"host":       MustHostname(),
		"request_id": req.Header.Get("X-Request-ID"),
		"url":        req.URL.RequestURI(),
	}
}

// LogRequest emits one info/debug pair as a request enters the pipeline,
// before the outcome is known.
func LogRequest(req *http.Request) {
	labels := baseLabels(req, 0, OutcomeMiss)
	labels["status"] = "pending"

	info := fmt.Sprintf("REQ method=%s url=%s req_id=%s", req.Method, req.URL.RequestURI(), req.Header.Get("X-Request-ID"))
	Emit("info", "proxy", labels, info)

	debugLine := fmt.Sprintf(
		"REQ remote=%s method=%s url=%s proto=%s headers=%v",
		req.RemoteAddr, req.Method, req.URL.RequestURI(), req.Proto, req.Header,
	)
	Emit("debug", "proxy", labels, debugLine)
}

// LogOutcome emits the info/debug pair for a completed pipeline disposition.
func LogOutcome(req *http.Request, status int, outcome Outcome, bytesWritten int, dur time.Duration) {
	labels := baseLabels(req, status, outcome)

	info := fmt.Sprintf("RESP status=%d bytes=%d dur=%s cache=%s req_id=%s",
		status, bytesWritten, dur.String(), outcome, req.Header.Get("X-Request-ID"))
	Emit("info", "proxy", labels, info)

	debugLine := fmt.Sprintf(
		"RESP status=%d bytes=%d dur=%s cache=%s etag=%q req_id=%s",
		status, bytesWritten, dur.String(), outcome, req.Header.Get("If-None-Match"), req.Header.Get("X-Request-ID"),
	)
	Emit("debug", "proxy", labels, debugLine)
}

// LogError emits an error-level line for a pipeline failure disposition.
func LogError(req *http.Request, status int, reason string, err error) {
	labels := baseLabels(req, status, OutcomeMiss)
	line := fmt.Sprintf("ERROR status=%d method=%s url=%s reason=%s err=%v req_id=%s",
		status, req.Method, req.URL.RequestURI(), reason, err, req.Header.Get("X-Request-ID"))
	Emit("error", "proxy", labels, line)
}
