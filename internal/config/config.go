// Package config loads cache_config.json: a JSON object mapping an
// arbitrary label to a per-proxy configuration. Each top-level entry
// describes one independent proxy instance.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// RouteConfig is one entry of a ProxyConfig's optional route table.
type RouteConfig struct {
	Prefix string `json:"prefix"`
	Origin string `json:"origin"`
}

// ProxyConfig is a single labeled entry from cache_config.json.
type ProxyConfig struct {
	Port      int           `json:"port"`
	OriginURL string        `json:"origin-url"`
	CacheSize int           `json:"cache-size"`
	TTL       int           `json:"ttl"`
	Routes    []RouteConfig `json:"routes"`
}

const defaultConfigFile = "cache_config.json"

// Load reads .env (if present, via godotenv — a missing file is not fatal),
// then reads the JSON file named by CACHE_CONFIG_FILE (default
// cache_config.json) from the current working directory into a label ->
// ProxyConfig map. Every entry is validated: a missing port, origin-url,
// cache-size, or ttl is a fatal configuration error.
func Load() (map[string]ProxyConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env file (%v), using system environment variables", err)
	}

	path := strings.TrimSpace(os.Getenv("CACHE_CONFIG_FILE"))
	if path == "" {
		path = defaultConfigFile
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw2 map[string]json.RawMessage
	if err := json.Unmarshal(raw, &raw2); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	out := make(map[string]ProxyConfig, len(raw2))
	for label, msg := range raw2 {
		var cfg ProxyConfig
		if err := json.Unmarshal(msg, &cfg); err != nil {
			return nil, fmt.Errorf("config: entry %q: %w", label, err)
		}
		if err := validate(label, cfg); err != nil {
			return nil, err
		}
		cfg.OriginURL = stripScheme(cfg.OriginURL)
		for i := range cfg.Routes {
			cfg.Routes[i].Origin = stripScheme(cfg.Routes[i].Origin)
		}
		out[label] = cfg
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("config: %s contains no entries", path)
	}
	return out, nil
}

// validate rejects a zero value for any required field. This also rejects
// an explicit 0 (e.g. "ttl": 0), not just an absent field — spec.md §6
// treats both as "missing" since none of these fields has a meaningful
// zero value.
func validate(label string, cfg ProxyConfig) error {
	if cfg.Port == 0 {
		return fmt.Errorf("config: entry %q: missing port", label)
	}
	if strings.TrimSpace(cfg.OriginURL) == "" {
		return fmt.Errorf("config: entry %q: missing origin-url", label)
	}
	if cfg.CacheSize == 0 {
		return fmt.Errorf("config: entry %q: missing cache-size", label)
	}
	if cfg.TTL == 0 {
		return fmt.Errorf("config: entry %q: missing ttl", label)
	}
	return nil
}

// stripScheme removes a leading http:// or https:// from a host string.
func stripScheme(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return s
}
