// Package config loads and validates the API generator configuration.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// Config is the full user configuration.
type Config struct {
	APIVersion     string                    `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	APIPrefix      string                    `json:"api_prefix,omitempty" yaml:"api_prefix,omitempty"`
	ServerConfig   ServerConfig              `json:"server_config" yaml:"server_config"`
	DatabaseConfig DatabaseConfig            `json:"database_config" yaml:"database_config"`
	Datasources    map[string]DatabaseConfig `json:"datasources,omitempty" yaml:"datasources,omitempty"`
	Entities       []schema.Entity           `json:"entities" yaml:"entities"`
	GlobalAuth     *AuthConfig               `json:"global_auth,omitempty" yaml:"global_auth,omitempty"`
	CorsConfig     *CorsConfig               `json:"cors_config,omitempty" yaml:"cors_config,omitempty"`
	Documentation  *DocumentationConfig      `json:"documentation,omitempty" yaml:"documentation,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host                  string           `json:"host" yaml:"host"`
	Port                  int              `json:"port" yaml:"port"`
	RequestTimeoutSeconds int              `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty"`
	MaxPayloadSizeMB      int              `json:"max_payload_size_mb,omitempty" yaml:"max_payload_size_mb,omitempty"`
	RateLimiting          *RateLimitConfig `json:"rate_limiting,omitempty" yaml:"rate_limiting,omitempty"`
	LoggingLevel          string           `json:"logging_level,omitempty" yaml:"logging_level,omitempty"`
	LogFile               string           `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	HealthIntervalSeconds int              `json:"health_interval_seconds,omitempty" yaml:"health_interval_seconds,omitempty"`
}

// RateLimitConfig bounds the request rate accepted by the server.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int `json:"burst" yaml:"burst"`
}

// AuthConfig is carried for clients of the configuration; it is not enforced.
type AuthConfig struct {
	AuthType     string        `json:"auth_type" yaml:"auth_type"`
	JWTConfig    *JWTConfig    `json:"jwt_config,omitempty" yaml:"jwt_config,omitempty"`
	APIKeyConfig *APIKeyConfig `json:"api_key_config,omitempty" yaml:"api_key_config,omitempty"`
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret              string  `json:"secret" yaml:"secret"`
	ExpirationHours     int     `json:"expiration_hours" yaml:"expiration_hours"`
	Issuer              *string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	RefreshTokenEnabled bool    `json:"refresh_token_enabled" yaml:"refresh_token_enabled"`
}

// APIKeyConfig holds API key settings.
type APIKeyConfig struct {
	HeaderName string  `json:"header_name" yaml:"header_name"`
	Prefix     *string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// CorsConfig is carried for clients of the configuration.
type CorsConfig struct {
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAgeSeconds    *int     `json:"max_age_seconds,omitempty" yaml:"max_age_seconds,omitempty"`
}

// DocumentationConfig controls the route listing endpoint.
type DocumentationConfig struct {
	Enabled      bool    `json:"generate_openapi" yaml:"generate_openapi"`
	Title        string  `json:"title" yaml:"title"`
	Description  *string `json:"description,omitempty" yaml:"description,omitempty"`
	Version      string  `json:"version" yaml:"version"`
	ContactEmail *string `json:"contact_email,omitempty" yaml:"contact_email,omitempty"`
	License      *string `json:"license,omitempty" yaml:"license,omitempty"`
}

const (
	defaultHost           = "127.0.0.1"
	defaultPort           = 8000
	defaultRequestTimeout = 30
	defaultHealthInterval = 30
)

// Default returns a configuration with server defaults and an in-memory backend.
func Default() *Config {
	cfg := &Config{DatabaseConfig: DatabaseConfig{DBType: Memory}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ServerConfig.Host == "" {
		c.ServerConfig.Host = defaultHost
	}
	if c.ServerConfig.Port == 0 {
		c.ServerConfig.Port = defaultPort
	}
	if c.ServerConfig.RequestTimeoutSeconds <= 0 {
		c.ServerConfig.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if c.ServerConfig.HealthIntervalSeconds <= 0 {
		c.ServerConfig.HealthIntervalSeconds = defaultHealthInterval
	}
	if c.ServerConfig.LoggingLevel == "" {
		c.ServerConfig.LoggingLevel = "info"
	}
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RequestTimeout returns the outer per-request timeout.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// HealthInterval returns the datasource health check interval.
func (s ServerConfig) HealthInterval() time.Duration {
	return time.Duration(s.HealthIntervalSeconds) * time.Second
}

// MaxPayloadBytes returns the request body limit, or 0 when unlimited.
func (s ServerConfig) MaxPayloadBytes() int64 {
	return int64(s.MaxPayloadSizeMB) << 20
}

// DatasourceFor returns the backend configuration named by the entity, or
// the default database configuration.
func (c *Config) DatasourceFor(e *schema.Entity) (string, DatabaseConfig, error) {
	if e.Datasource == "" {
		return "", c.DatabaseConfig, nil
	}
	db, ok := c.Datasources[e.Datasource]
	if !ok {
		return e.Datasource, DatabaseConfig{}, fmt.Errorf("entity %s references unknown datasource %s", e.Name, e.Datasource)
	}
	return e.Datasource, db, nil
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := schema.ValidateEntities(c.Entities); err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	if err := c.DatabaseConfig.Validate(); err != nil {
		return &Error{Kind: KindValidation, Err: fmt.Errorf("database_config: %w", err)}
	}
	for name, db := range c.Datasources {
		if err := db.Validate(); err != nil {
			return &Error{Kind: KindValidation, Err: fmt.Errorf("datasources.%s: %w", name, err)}
		}
	}
	for i := range c.Entities {
		if _, _, err := c.DatasourceFor(&c.Entities[i]); err != nil {
			return &Error{Kind: KindValidation, Err: err}
		}
	}
	if c.ServerConfig.Port < 0 || c.ServerConfig.Port > 65535 {
		return &Error{Kind: KindValidation, Err: fmt.Errorf("invalid port %d", c.ServerConfig.Port)}
	}
	return nil
}
