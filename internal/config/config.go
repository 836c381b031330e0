// Package config provides configuration loading and defaults for the nut-mcp server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// CommandFilter holds allowlist and denylist glob patterns over NUT
// instant command names.
type CommandFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// SafetyConfig lists command patterns that need an explicit confirmation
// token before they run.
type SafetyConfig struct {
	Confirm []string `yaml:"confirm"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	LogPath    string `yaml:"log_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// ServerConfig holds network and authentication settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// GraphQLConfig holds connection details for the UPS bridge API.
type GraphQLConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// MQTTConfig controls the MQTT action bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	// AllowConfirmCommands lets MQTT clients run commands matching
	// safety.confirm, which otherwise need an MCP confirmation token.
	AllowConfirmCommands bool `yaml:"allow_confirm_commands"`
}

// EntryConfig configures one UPS, the equivalent of a config entry.
type EntryConfig struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	UPSID    string        `yaml:"ups_id"`
	Commands CommandFilter `yaml:"commands"`
}

// Config is the top-level configuration structure for the nut-mcp server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Safety  SafetyConfig  `yaml:"safety"`
	Audit   AuditConfig   `yaml:"audit"`
	GraphQL GraphQLConfig `yaml:"graphql"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Entries []EntryConfig `yaml:"entries"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Sections absent from the file keep their DefaultConfig values. The result
// is validated; on error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the entries: ids must be present and unique and every
// entry must name a UPS.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Entries))
	for i, e := range c.Entries {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("entries[%d]: id is required", i))
			continue
		}
		if _, dup := seen[e.ID]; dup {
			errs = append(errs, fmt.Errorf("entries[%d]: duplicate id %q", i, e.ID))
		}
		seen[e.ID] = struct{}{}
		if e.UPSID == "" {
			errs = append(errs, fmt.Errorf("entries[%d]: ups_id is required", i))
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt: broker is required when enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Safety: SafetyConfig{
			Confirm: []string{"load.off", "shutdown.*"},
		},
		Audit: AuditConfig{
			Enabled:    true,
			LogPath:    "/config/audit.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		GraphQL: GraphQLConfig{
			URL:     "http://localhost/graphql",
			Timeout: 30,
		},
		MQTT: MQTTConfig{
			ClientID:    "nut-mcp",
			TopicPrefix: "nut",
		},
	}
}

// envOverrides lists the environment variables that take precedence over
// the file.
type envOverrides struct {
	AuthToken     string `env:"NUT_MCP_AUTH_TOKEN"`
	GraphQLURL    string `env:"NUT_MCP_GRAPHQL_URL"`
	GraphQLAPIKey string `env:"NUT_MCP_GRAPHQL_API_KEY"`
	MQTTBroker    string `env:"NUT_MCP_MQTT_BROKER"`
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - NUT_MCP_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - NUT_MCP_GRAPHQL_URL overrides cfg.GraphQL.URL
//   - NUT_MCP_GRAPHQL_API_KEY overrides cfg.GraphQL.APIKey
//   - NUT_MCP_MQTT_BROKER overrides cfg.MQTT.Broker and enables the bridge
func ApplyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.AuthToken != "" {
		cfg.Server.AuthToken = o.AuthToken
	}
	if o.GraphQLURL != "" {
		cfg.GraphQL.URL = o.GraphQLURL
	}
	if o.GraphQLAPIKey != "" {
		cfg.GraphQL.APIKey = o.GraphQLAPIKey
	}
	if o.MQTTBroker != "" {
		cfg.MQTT.Broker = o.MQTTBroker
		cfg.MQTT.Enabled = true
	}
	return nil
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated)
// and any error encountered during generation.
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
