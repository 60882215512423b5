package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file encoding.
type Format int

const (
	JSON Format = iota
	YAML
)

// FormatOf picks the format from a file extension. Unknown extensions are JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

// Load reads, parses and defaults a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindFileNotFound, Path: path, Err: err}
		}
		return nil, &Error{Kind: KindFileRead, Path: path, Err: err}
	}

	cfg, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, &Error{Kind: KindDeserialize, Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes a configuration document and applies defaults.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case YAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.DatabaseConfig.DBType == "" {
		cfg.DatabaseConfig.DBType = Memory
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes the configuration in the format implied by the path.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch FormatOf(path) {
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(c); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadEnvFiles loads .env files into the process environment. A missing
// default ".env" is not an error.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// Environment variables that override the configuration.
const (
	EnvDBType   = "PEBBLE_API_DB_TYPE"
	EnvDBHost   = "PEBBLE_API_DB_HOST"
	EnvDBPort   = "PEBBLE_API_DB_PORT"
	EnvDBUser   = "PEBBLE_API_DB_USER"
	EnvDBPass   = "PEBBLE_API_DB_PASSWORD"
	EnvDBName   = "PEBBLE_API_DB_NAME"
	EnvDBURL    = "PEBBLE_API_DB_URL"
	EnvHost     = "PEBBLE_API_HOST"
	EnvPort     = "PEBBLE_API_PORT"
	EnvLogLevel = "PEBBLE_API_LOG_LEVEL"
)

// ApplyEnv overrides configuration values from the environment.
func (c *Config) ApplyEnv() error {
	db := &c.DatabaseConfig
	if v := os.Getenv(EnvDBType); v != "" {
		if err := db.DBType.UnmarshalText([]byte(v)); err != nil {
			return &Error{Kind: KindValidation, Err: fmt.Errorf("%s: %w", EnvDBType, err)}
		}
	}
	setString(&db.Host, EnvDBHost)
	setString(&db.Username, EnvDBUser)
	setString(&db.Password, EnvDBPass)
	setString(&db.DatabaseName, EnvDBName)
	setString(&db.ConnectionString, EnvDBURL)
	if err := setInt(&db.Port, EnvDBPort); err != nil {
		return err
	}

	setString(&c.ServerConfig.Host, EnvHost)
	setString(&c.ServerConfig.LoggingLevel, EnvLogLevel)
	return setInt(&c.ServerConfig.Port, EnvPort)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return &Error{Kind: KindValidation, Err: fmt.Errorf("%s: %w", key, err)}
	}
	*dst = n
	return nil
}
