package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DatabaseType names a storage backend.
type DatabaseType string

const (
	PostgreSQL DatabaseType = "PostgreSQL"
	MySQL      DatabaseType = "MySQL"
	SQLite     DatabaseType = "SQLite"
	MongoDB    DatabaseType = "MongoDB"
	Memory     DatabaseType = "Memory"
)

// UnmarshalText implements encoding.TextUnmarshaler. MariaDB is accepted as MySQL.
func (t *DatabaseType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "postgresql", "postgres":
		*t = PostgreSQL
	case "mysql", "mariadb":
		*t = MySQL
	case "sqlite", "sqlite3":
		*t = SQLite
	case "mongodb", "mongo":
		*t = MongoDB
	case "memory", "":
		*t = Memory
	default:
		return fmt.Errorf("unsupported database type %q", text)
	}
	return nil
}

// DefaultPort returns the conventional port of the backend.
func (t DatabaseType) DefaultPort() int {
	switch t {
	case PostgreSQL:
		return 5432
	case MySQL:
		return 3306
	case MongoDB:
		return 27017
	}
	return 0
}

// Relational reports whether the backend is served by the SQL datasource.
func (t DatabaseType) Relational() bool {
	return t == PostgreSQL || t == MySQL || t == SQLite
}

// DatabaseConfig describes one backend connection.
type DatabaseConfig struct {
	DBType           DatabaseType `json:"db_type" yaml:"db_type"`
	Host             string       `json:"host,omitempty" yaml:"host,omitempty"`
	Port             int          `json:"port,omitempty" yaml:"port,omitempty"`
	DatabaseName     string       `json:"database_name,omitempty" yaml:"database_name,omitempty"`
	Username         string       `json:"username,omitempty" yaml:"username,omitempty"`
	Password         string       `json:"password,omitempty" yaml:"password,omitempty"`
	ConnectionString string       `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
	MaxConnections   int          `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	TimeoutSeconds   int          `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	SSLEnabled       bool         `json:"ssl_enabled" yaml:"ssl_enabled"`
}

// Timeout returns the per-query timeout, or 0 for the datasource default.
func (d DatabaseConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

func (d DatabaseConfig) port() int {
	if d.Port > 0 {
		return d.Port
	}
	return d.DBType.DefaultPort()
}

// Validate checks that the backend can be addressed.
func (d DatabaseConfig) Validate() error {
	switch d.DBType {
	case Memory:
		return nil
	case SQLite:
		if d.ConnectionString == "" && d.DatabaseName == "" {
			return errors.New("sqlite requires connection_string or database_name")
		}
		return nil
	case PostgreSQL, MySQL, MongoDB:
		if d.ConnectionString == "" && d.Host == "" {
			return fmt.Errorf("%s requires connection_string or host", d.DBType)
		}
		return nil
	}
	return fmt.Errorf("unsupported database type %q", d.DBType)
}

// DSN returns the driver connection string of the backend.
func (d DatabaseConfig) DSN() (string, error) {
	switch d.DBType {
	case PostgreSQL:
		if d.ConnectionString != "" {
			return d.ConnectionString, nil
		}
		sslMode := "disable"
		if d.SSLEnabled {
			sslMode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.Username, d.Password),
			Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.port())),
			Path:     "/" + d.DatabaseName,
			RawQuery: "sslmode=" + sslMode,
		}
		return u.String(), nil
	case MySQL:
		return d.mysqlDSN()
	case SQLite:
		path := d.ConnectionString
		if path == "" {
			path = d.DatabaseName
		}
		return strings.TrimPrefix(path, "sqlite://"), nil
	case MongoDB:
		if d.ConnectionString != "" {
			return d.ConnectionString, nil
		}
		u := url.URL{
			Scheme: "mongodb",
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.port())),
			Path:   "/" + d.DatabaseName,
		}
		if d.Username != "" {
			u.User = url.UserPassword(d.Username, d.Password)
		}
		return u.String(), nil
	case Memory:
		return "", nil
	}
	return "", fmt.Errorf("unsupported database type %q", d.DBType)
}

func (d DatabaseConfig) mysqlDSN() (string, error) {
	cfg := mysql.NewConfig()
	switch {
	case strings.HasPrefix(d.ConnectionString, "mysql://"), strings.HasPrefix(d.ConnectionString, "mariadb://"):
		u, err := url.Parse(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("invalid connection string: %w", err)
		}
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = net.JoinHostPort(u.Hostname(), strconv.Itoa(MySQL.DefaultPort()))
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
	case d.ConnectionString != "":
		return d.ConnectionString, nil
	default:
		cfg.User = d.Username
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.port()))
		cfg.DBName = d.DatabaseName
		if d.SSLEnabled {
			cfg.TLSConfig = "true"
		}
	}
	return cfg.FormatDSN(), nil
}

// Redacted returns the connection string with the password hidden.
func (d DatabaseConfig) Redacted() string {
	dsn, err := d.DSN()
	if err != nil {
		return string(d.DBType)
	}
	return RedactDSN(dsn)
}

const redactedPassword = "xxxxx"

// RedactDSN hides the password of a URL or MySQL style connection string.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil && u.Scheme != "" {
		return u.Redacted()
	}
	if cfg, err := mysql.ParseDSN(dsn); err == nil && cfg.Passwd != "" {
		cfg.Passwd = redactedPassword
		return cfg.FormatDSN()
	}
	return dsn
}

// RedactSecret removes the password of dsn from msg.
func RedactSecret(msg, dsn string) string {
	if dsn == "" {
		return msg
	}
	msg = strings.ReplaceAll(msg, dsn, RedactDSN(dsn))
	if pw := dsnPassword(dsn); pw != "" {
		msg = strings.ReplaceAll(msg, pw, redactedPassword)
	}
	return msg
}

func dsnPassword(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil && u.Scheme != "" {
		pw, _ := u.User.Password()
		return pw
	}
	if cfg, err := mysql.ParseDSN(dsn); err == nil {
		return cfg.Passwd
	}
	return ""
}
