// Package config loads client configuration from defaults, .env files,
// environment variables and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"asasense/internal/logger"
)

// Configuration keys.
const (
	KeyAPIBaseURL    = "api_base_url"
	KeyAgentName     = "agent_name"
	KeyMode          = "mode"
	KeyTimeout       = "timeout"
	KeyShowRaw       = "show_raw"
	KeyImageDir      = "image_dir"
	KeyProxyListen   = "proxy.listen"
	KeyProxyPrefix   = "proxy.prefix"
	KeyProxyTarget   = "proxy.target"
	KeyProxyFallback = "proxy.fallback"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ASASENSE"

// Run modes accepted by the agent backend.
const (
	ModeSync   = "sync"
	ModeStream = "stream"
)

// Config is the resolved client configuration.
type Config struct {
	APIBaseURL string
	AgentName  string
	Mode       string
	Timeout    time.Duration
	ShowRaw    bool
	ImageDir   string
	Proxy      ProxyConfig
}

// ProxyConfig configures the development proxy.
type ProxyConfig struct {
	Listen   string
	Prefix   string
	Target   string
	Fallback string
}

// New returns a viper instance with defaults and environment bindings applied.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyAPIBaseURL, "http://localhost:8000")
	v.SetDefault(KeyAgentName, "finance_agent")
	v.SetDefault(KeyMode, ModeSync)
	v.SetDefault(KeyTimeout, 60*time.Second)
	v.SetDefault(KeyShowRaw, false)
	v.SetDefault(KeyImageDir, "")
	v.SetDefault(KeyProxyListen, ":5173")
	v.SetDefault(KeyProxyPrefix, "/asasense")
	v.SetDefault(KeyProxyTarget, "http://0.0.0.0:8001")
	v.SetDefault(KeyProxyFallback, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// The web client read its base URL from VITE_API_BASE_URL.
	_ = v.BindEnv(KeyAPIBaseURL, EnvPrefix+"_API_BASE_URL", "VITE_API_BASE_URL")

	return v
}

// LoadDotEnv loads .env files into the process environment. Files earlier in
// the list win, and variables already set in the environment are never
// overridden. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		logger.Debug("Loaded .env file", "path", path)
	}
	return nil
}

// DefaultDotEnvPaths returns the working-directory .env followed by the
// user config directory .env.
func DefaultDotEnvPaths() []string {
	paths := []string{".env"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "asasense", ".env"))
	}
	return paths
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIBaseURL)), "/"),
		AgentName:  strings.TrimSpace(v.GetString(KeyAgentName)),
		Mode:       strings.ToLower(strings.TrimSpace(v.GetString(KeyMode))),
		Timeout:    v.GetDuration(KeyTimeout),
		ShowRaw:    v.GetBool(KeyShowRaw),
		ImageDir:   v.GetString(KeyImageDir),
		Proxy: ProxyConfig{
			Listen:   v.GetString(KeyProxyListen),
			Prefix:   v.GetString(KeyProxyPrefix),
			Target:   v.GetString(KeyProxyTarget),
			Fallback: v.GetString(KeyProxyFallback),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be used to reach a backend.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", KeyAPIBaseURL, c.APIBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", KeyAPIBaseURL, c.APIBaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", KeyAPIBaseURL, c.APIBaseURL)
	}

	if c.AgentName == "" {
		return fmt.Errorf("%s must not be empty", KeyAgentName)
	}

	switch c.Mode {
	case ModeSync, ModeStream:
	default:
		return fmt.Errorf("invalid %s %q: expected %s or %s", KeyMode, c.Mode, ModeSync, ModeStream)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("%s must not be negative", KeyTimeout)
	}
	return nil
}
