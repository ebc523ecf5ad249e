package htmlfwd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for Config fields left empty.
const (
	DefaultRemotePath       = "/ws"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultQueueSize        = 256
)

// Config holds the configuration for a Client.
type Config struct {
	// MinBackoff is the first retry delay and the value backoff resets to.
	// Fallback: HTMLFWD_MIN_BACKOFF environment variable. Default 10s.
	MinBackoff time.Duration `yaml:"min_backoff"`

	// MaxBackoff caps the retry delay.
	// Fallback: HTMLFWD_MAX_BACKOFF environment variable. Default 600s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// KeepAliveMargin is added to the announced heartbeat interval before
	// the watchdog declares a connection dead.
	// Fallback: HTMLFWD_KEEPALIVE_MARGIN environment variable. Default 10s.
	KeepAliveMargin time.Duration `yaml:"keepalive_margin"`

	// RemotePath is the WebSocket path on each endpoint host.
	// Fallback: HTMLFWD_REMOTE_PATH environment variable. Default "/ws".
	RemotePath string `yaml:"remote_path"`

	// HandshakeTimeout bounds each WebSocket opening handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// Endpoints is the initial endpoint set, used when no store is
	// configured or the store holds nothing.
	Endpoints []EndpointSpec `yaml:"endpoints"`
}

// LoadConfig reads a YAML config file. Durations are written as Go
// duration strings ("10s", "10m").
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig fills empty fields from environment variables and
// defaults, then validates.
func resolveConfig(cfg Config) (Config, error) {
	var err error
	if cfg.MinBackoff, err = durationEnv(cfg.MinBackoff, "HTMLFWD_MIN_BACKOFF", DefaultMinBackoff); err != nil {
		return cfg, err
	}
	if cfg.MaxBackoff, err = durationEnv(cfg.MaxBackoff, "HTMLFWD_MAX_BACKOFF", DefaultMaxBackoff); err != nil {
		return cfg, err
	}
	if cfg.KeepAliveMargin, err = durationEnv(cfg.KeepAliveMargin, "HTMLFWD_KEEPALIVE_MARGIN", DefaultKeepAliveMargin); err != nil {
		return cfg, err
	}
	if cfg.RemotePath == "" {
		cfg.RemotePath = os.Getenv("HTMLFWD_REMOTE_PATH")
	}
	if cfg.RemotePath == "" {
		cfg.RemotePath = DefaultRemotePath
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if cfg.MinBackoff <= 0 {
		return cfg, fmt.Errorf("MinBackoff must be positive, got %v", cfg.MinBackoff)
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		return cfg, fmt.Errorf("MaxBackoff (%v) must not be below MinBackoff (%v)", cfg.MaxBackoff, cfg.MinBackoff)
	}
	if cfg.KeepAliveMargin < 0 {
		return cfg, fmt.Errorf("KeepAliveMargin must not be negative, got %v", cfg.KeepAliveMargin)
	}
	if cfg.KeepAliveMargin > MaxKeepAliveInterval {
		return cfg, fmt.Errorf("KeepAliveMargin must not exceed %v, got %v", MaxKeepAliveInterval, cfg.KeepAliveMargin)
	}
	if cfg.HandshakeTimeout < 0 {
		return cfg, fmt.Errorf("HandshakeTimeout must not be negative, got %v", cfg.HandshakeTimeout)
	}
	return cfg, nil
}

func durationEnv(v time.Duration, key string, def time.Duration) (time.Duration, error) {
	if v != 0 {
		return v, nil
	}
	if s := os.Getenv(key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}
