// Package config loads the YAML configuration file and publishes immutable
// snapshots that the rest of the gateway reads without locking.
package config

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

// Config is the root configuration document, loaded from a single YAML
// file. A *Config is never mutated after Load returns; hot-reload builds a
// new one and swaps the published snapshot atomically.
type Config struct {
	// Host is the interface the HTTP server binds; default 127.0.0.1.
	Host string `yaml:"host"`
	// Port is the HTTP server's listen port; default 8018.
	Port int `yaml:"port"`
	// ProxyURL, if set, is an upstream HTTP(S) proxy used for all outbound
	// provider calls.
	ProxyURL string `yaml:"proxy_url"`

	// Providers maps a ProviderId to its per-provider settings.
	Providers map[credential.ProviderId]*ProviderConfig `yaml:"providers"`

	Amp       AmpConfig       `yaml:"amp"`
	Streaming StreamingConfig `yaml:"streaming"`
	TLS       TLSConfig       `yaml:"tls"`
}

// ProviderConfig holds the knobs spec.md §6 lists per provider entry.
type ProviderConfig struct {
	// Enabled defaults to true; a disabled provider's models are excluded
	// from /v1/models and rejected by dispatch.
	Enabled *bool `yaml:"enabled"`
	// APIKey, when set, is a virtual never-persisted credential that takes
	// precedence over any stored OAuth credential for this provider.
	APIKey string `yaml:"api_key"`
	// Backend reroutes this dialect's traffic through a different
	// provider's executor (e.g. serving Claude-dialect requests via Codex).
	Backend credential.ProviderId `yaml:"backend"`
	// Fallback names a provider to retry against when this one is
	// unavailable.
	Fallback credential.ProviderId `yaml:"fallback"`
	// ModelAliases maps a caller-supplied model name to a canonical
	// upstream model name.
	ModelAliases map[string]string `yaml:"model_aliases"`
	// ModelExclusions removes names from /v1/models and from dispatch even
	// though the upstream would otherwise accept them.
	ModelExclusions []string `yaml:"model_exclusions"`
	// PayloadRules are applied to the translated request body just before
	// the executor sends it.
	PayloadRules PayloadRules `yaml:"payload_rules"`
	// MultiAccount enables round-robin account selection instead of always
	// using the Active account.
	MultiAccount bool `yaml:"multi_account"`
}

// IsEnabled reports whether the provider is enabled, defaulting to true
// when unset.
func (p *ProviderConfig) IsEnabled() bool {
	if p == nil || p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// PayloadRules describes JSON-path-based mutation applied to an outbound
// request body: strip removes paths, set assigns literal values.
type PayloadRules struct {
	Strip []string       `yaml:"strip"`
	Set   map[string]any `yaml:"set"`
}

// AmpConfig configures the /amp/* surface.
type AmpConfig struct {
	UpstreamKey   string `yaml:"upstream_key"`
	HideFreeTier  bool   `yaml:"hide_free_tier"`
}

// StreamingConfig configures SSE idle behavior.
type StreamingConfig struct {
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

// TLSConfig names the TLS client-hello fingerprint the HTTP client should
// impersonate, if any.
type TLSConfig struct {
	Impersonate string `yaml:"impersonate"`
}

const (
	defaultHost               = "127.0.0.1"
	defaultPort               = 8018
	defaultStreamIdleTimeoutS = 180
)

// Load reads and parses the YAML file at path, applying defaults for any
// field the document omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	log.Debugf("config: loaded %s (%d provider entries)", path, len(cfg.Providers))
	return cfg, nil
}

// Default returns a fully defaulted, empty Config, for first-run startup
// before any settings file has been written.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Streaming.IdleTimeoutSeconds == 0 {
		cfg.Streaming.IdleTimeoutSeconds = defaultStreamIdleTimeoutS
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[credential.ProviderId]*ProviderConfig)
	}
}

// Provider returns the configuration for p, or a zero-value (enabled,
// no overrides) ProviderConfig if none was declared.
func (c *Config) Provider(p credential.ProviderId) *ProviderConfig {
	if pc, ok := c.Providers[p]; ok {
		return pc
	}
	return &ProviderConfig{}
}
