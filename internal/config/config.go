// Package config provides YAML-based configuration loading, validation, and
// defaults for the ServiceNow MCP server.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the server.
type Config struct {
	ServiceNow    ServiceNowConfig    `yaml:"servicenow"`
	Server        ServerConfig        `yaml:"server"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
	LogLevel      string              `yaml:"log_level"`
}

// ServiceNowConfig holds ServiceNow instance connection settings.
type ServiceNowConfig struct {
	InstanceURL     string     `yaml:"instance_url"`
	TableAPIPath    string     `yaml:"table_api_path"`
	Auth            AuthConfig `yaml:"auth"`
	Timeout         Duration   `yaml:"timeout"`
	MaxRetries      int        `yaml:"max_retries"`
	RetryMaxBackoff Duration   `yaml:"retry_max_backoff"`
	RateLimitRPS    float64    `yaml:"rate_limit_rps"`
	DebugMode       bool       `yaml:"debug_mode"`
}

// AuthConfig determines which authentication method is used.
type AuthConfig struct {
	Type  string      `yaml:"type"` // "basic" or "oauth"
	Basic BasicConfig `yaml:"basic"`
	OAuth OAuthConfig `yaml:"oauth"`
}

// BasicConfig holds HTTP Basic Auth credentials.
type BasicConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OAuthConfig holds OAuth password-grant credentials.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	TokenPath    string `yaml:"token_path"`
}

// Supported MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// ServerConfig controls how tools are exposed.
type ServerConfig struct {
	Transport string `yaml:"transport"` // "stdio" or "sse"
	Addr      string `yaml:"addr"`      // listen address for sse
}

// AuditConfig controls the optional Kafka audit event stream. When
// disabled, mutating tools skip event emission entirely.
type AuditConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	SchemaRegistryURL string   `yaml:"schema_registry_url"`
	ClientID          string   `yaml:"client_id"`
	BufferSize        int      `yaml:"buffer_size"`
}

// ObservabilityConfig controls the metrics/health HTTP server.
type ObservabilityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "500ms" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads a YAML config file, expands environment variables, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand ${VAR} and $VAR references in the YAML.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// ServiceNow defaults
	sn := &cfg.ServiceNow
	if sn.TableAPIPath == "" {
		sn.TableAPIPath = "/api/now/table"
	}
	if sn.Auth.Type == "" {
		sn.Auth.Type = "basic"
	}
	if sn.Auth.OAuth.TokenPath == "" {
		sn.Auth.OAuth.TokenPath = "/oauth_token.do"
	}
	if sn.Timeout.Duration == 0 {
		sn.Timeout.Duration = 30 * time.Second
	}
	// MaxRetries stays 0 by default: interactive tool calls map to a
	// single HTTP attempt and surface failures immediately.
	if sn.RetryMaxBackoff.Duration == 0 {
		sn.RetryMaxBackoff.Duration = 5 * time.Minute
	}

	// Server defaults
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8081"
	}

	// Audit defaults
	if cfg.Audit.Enabled {
		if cfg.Audit.Topic == "" {
			cfg.Audit.Topic = "snow-mcp.audit"
		}
		if cfg.Audit.ClientID == "" {
			cfg.Audit.ClientID = "snow-mcp"
		}
		if cfg.Audit.BufferSize <= 0 {
			cfg.Audit.BufferSize = 256
		}
	}

	// Observability defaults
	if cfg.Observability.Addr == "" {
		cfg.Observability.Addr = ":8080"
	}
}

// validate checks that all required fields are present and valid.
func validate(cfg *Config) error {
	var errs []error

	// ServiceNow
	if cfg.ServiceNow.InstanceURL == "" {
		errs = append(errs, errors.New("servicenow.instance_url is required"))
	} else if u, err := url.Parse(cfg.ServiceNow.InstanceURL); err != nil || u.Scheme == "" {
		errs = append(errs, fmt.Errorf("servicenow.instance_url is not a valid URL: %s", cfg.ServiceNow.InstanceURL))
	}

	switch cfg.ServiceNow.Auth.Type {
	case "basic":
		b := cfg.ServiceNow.Auth.Basic
		if b.Username == "" {
			errs = append(errs, errors.New("servicenow.auth.basic.username is required for basic auth"))
		}
		if b.Password == "" {
			errs = append(errs, errors.New("servicenow.auth.basic.password is required for basic auth"))
		}
	case "oauth":
		o := cfg.ServiceNow.Auth.OAuth
		if o.ClientID == "" {
			errs = append(errs, errors.New("servicenow.auth.oauth.client_id is required for oauth auth"))
		}
		if o.ClientSecret == "" {
			errs = append(errs, errors.New("servicenow.auth.oauth.client_secret is required for oauth auth"))
		}
		if o.Username == "" {
			errs = append(errs, errors.New("servicenow.auth.oauth.username is required for oauth auth"))
		}
		if o.Password == "" {
			errs = append(errs, errors.New("servicenow.auth.oauth.password is required for oauth auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("servicenow.auth.type must be 'basic' or 'oauth', got %q", cfg.ServiceNow.Auth.Type))
	}

	if cfg.ServiceNow.MaxRetries < -1 {
		errs = append(errs, fmt.Errorf("servicenow.max_retries must be >= -1, got %d", cfg.ServiceNow.MaxRetries))
	}

	// Server
	switch cfg.Server.Transport {
	case TransportStdio, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("server.transport must be 'stdio' or 'sse', got %q", cfg.Server.Transport))
	}

	// Audit
	if cfg.Audit.Enabled {
		if len(cfg.Audit.Brokers) == 0 {
			errs = append(errs, errors.New("audit.brokers must contain at least one broker when audit is enabled"))
		}
		if cfg.Audit.SchemaRegistryURL == "" {
			errs = append(errs, errors.New("audit.schema_registry_url is required when audit is enabled"))
		}
	}

	return errors.Join(errs...)
}
