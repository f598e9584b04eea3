/*
Example upstream HTTP server used for local development and demos.

Typical usage:
- Start the server and access it via: http://localhost:8000
- Configuration is read only from YAML (configs/config-upstream.yaml or configs/config-upstream.yml).

Example YAML (listen must be a YAML sequence, even for one address):
upstream:

		listen: [":9000", ":9001", ":9002"]

Note: This is a simple example app, not a production-ready server.
*/
package main

import (
	"log"
	"os"
	"strings"
	"sync"

	"cacheproxy/internal/upstream"

	"gopkg.in/yaml.v3"
)

// StringList holds the YAML "listen" value. It decodes only from a YAML sequence; a plain
// string (single or comma-separated) fails to decode, and the whole file is then ignored.
// main trims each address and, when several are listed, skips empty ones.
type StringList []string

func main() {
	// Resolve listen addresses strictly from YAML.
	listenAddrs := loadListenAddressesFromYAML()
	tlsCfg := loadTLSConfigFromYAML()

	// Start one server per address (useful if you demo multiple ports).
	if len(listenAddrs) > 1 {
		var serversWG sync.WaitGroup
		for _, addr := range listenAddrs {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			serversWG.Add(1)
			go func(addr string) {
				defer serversWG.Done()
				log.Printf("starting upstream server on %s", addr)
				if err := upstream.Start(addr, tlsCfg); err != nil {
					log.Printf("upstream server %s exited: %v", addr, err)
				}
			}(addr)
		}
		serversWG.Wait()
		return
	}

	// Single-address case: start the example server on the first address
	addr := strings.TrimSpace(listenAddrs[0])
	log.Printf("starting upstream server on %s", addr)
	if err := upstream.Start(addr, tlsCfg); err != nil {
		log.Fatal(err)
	}
}


// upstreamYAML mirrors only the part of the config we need for this example server.
type upstreamYAML struct {
	Upstream *struct {
		Listen StringList `yaml:"listen"`
		TLS    *struct {
			Enabled  bool   `yaml:"enabled"`
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"upstream"`
}

// loadTLSConfigFromYAML returns upstream.tls from configs/config-upstream.{yaml,yml},
// or a disabled config (plain HTTP) if absent.
func loadTLSConfigFromYAML() upstream.TLSConfig {
	for _, c := range []string{"configs/config-upstream.yaml", "configs/config-upstream.yml"} {
		b, err := os.ReadFile(c)
		if err != nil {
			continue
		}
		var cfg upstreamYAML
		if yaml.Unmarshal(b, &cfg) != nil || cfg.Upstream == nil || cfg.Upstream.TLS == nil {
			continue
		}
		return upstream.TLSConfig{
			Enabled:  cfg.Upstream.TLS.Enabled,
			CertFile: cfg.Upstream.TLS.CertFile,
			KeyFile:  cfg.Upstream.TLS.KeyFile,
		}
	}
	return upstream.TLSConfig{}
}

// loadListenAddressesFromYAML returns the upstream listen addresses using only YAML configuration.
// Falls back to [":8000"] if no config is found or the YAML has no listen values.
func loadListenAddressesFromYAML() []string {
	// Default address when no YAML is present or listen list is empty.
	defaultAddresses := []string{":8000"}

	// Candidates in configs/ folder beside the binary during local demos.
	candidates := []string{
		"configs/config-upstream.yaml", "configs/config-upstream.yml",
	}

	// Pick the first candidate that exists.
	var configPath string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			configPath = c
			break
		}
	}

	// If we found a config file, parse it and use upstream.listen if present.
	if configPath != "" {
		if b, err := os.ReadFile(configPath); err == nil {
			var cfg upstreamYAML
			if err := yaml.Unmarshal(b, &cfg); err == nil {
				if cfg.Upstream != nil && len(cfg.Upstream.Listen) > 0 {
					return cfg.Upstream.Listen
				}
			}
		}
	}

	// No YAML found or no valid listen entries; return default.
	return defaultAddresses
}



