package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/titanous/json5"
)

// envRefPattern matches ${env:NAME} substitution tokens inside string
// values of the raw config document.
var envRefPattern = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)

// Default returns a Config with the values the spec calls out explicitly.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:     19876,
			Hostname: "127.0.0.1",
		},
		Channels: ChannelsConfig{},
		Security: SecurityConfig{
			DefaultDMPolicy:    "pairing",
			PairingCodeTTLMs:   3_600_000,
			PairingCodeLength:  8,
			RateLimitPerMinute: 30,
			RateLimitPerHour:   300,
		},
		OpenCode: OpenCodeConfig{
			Port:      4096,
			Hostname:  "127.0.0.1",
			AutoSpawn: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Heartbeat: HeartbeatConfig{
			TickHealthyMs:  300_000,
			TickDegradedMs: 60_000,
			TickCriticalMs: 15_000,
			SelfHeal: SelfHealConfig{
				MaxAttempts:  3,
				BackoffTicks: 2,
			},
		},
	}
}

// StateDir resolves $IRIS_STATE_DIR, defaulting to ~/.iris.
func StateDir() string {
	if v := os.Getenv("IRIS_STATE_DIR"); v != "" {
		return ExpandHome(v)
	}
	return ExpandHome("~/.iris")
}

// ConfigPath resolves $IRIS_CONFIG_PATH, defaulting to
// <stateDir>/iris.config.json.
func ConfigPath() string {
	if v := os.Getenv("IRIS_CONFIG_PATH"); v != "" {
		return ExpandHome(v)
	}
	return filepath.Join(StateDir(), "iris.config.json")
}

// Load reads iris.config.json (JSON5, with ${env:NAME} substitution) from
// path. A missing file is not an error: it yields Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded, err := expandEnvRefs(data)
	if err != nil {
		return nil, fmt.Errorf("expand config env refs: %w", err)
	}

	if err := json5.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// expandEnvRefs replaces every ${env:NAME} token with the value of the
// NAME environment variable, returning an error naming the first unset
// variable it encounters.
func expandEnvRefs(data []byte) ([]byte, error) {
	var firstMissing string
	out := envRefPattern.ReplaceAllFunc(data, func(tok []byte) []byte {
		name := envRefPattern.FindSubmatch(tok)[1]
		v, ok := os.LookupEnv(string(name))
		if !ok && firstMissing == "" {
			firstMissing = string(name)
		}
		return []byte(v)
	})
	if firstMissing != "" {
		return nil, fmt.Errorf("environment variable %s is not set", firstMissing)
	}
	return out, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Hash returns a short SHA-256 hash of the config, printed by
// `config validate` and logged by the watcher on each reload.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
