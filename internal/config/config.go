// Package config loads melodyhub settings from a .env file, an optional TOML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Security  SecurityConfig  `toml:"security"`
	CORS      CORSConfig      `toml:"cors"`
	Logging   LoggingConfig   `toml:"logging"`
	Storage   StorageConfig   `toml:"storage"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string `toml:"driver"` // pgx or sqlite3
	URL      string `toml:"url"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds token, cookie and abuse settings.
type SecurityConfig struct {
	JWTSecret      string   `toml:"jwt_secret"`
	TokenTTL       Duration `toml:"token_ttl"`
	CookieSecure   bool     `toml:"cookie_secure"`
	DisableAuth    bool     `toml:"disable_auth"`
	LoginRateLimit int      `toml:"login_rate_limit"` // requests per minute per client
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StorageConfig points at the S3-compatible object store.
type StorageConfig struct {
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	PublicURL    string `toml:"public_url"`
	AvatarBucket string `toml:"avatar_bucket"`
}

// BootstrapConfig names the administrator created on first start.
type BootstrapConfig struct {
	AdminEmail    string `toml:"admin_email"`
	AdminPassword string `toml:"admin_password"`
}

// Duration decodes TOML strings such as "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  "pgx",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8000},
		Security: SecurityConfig{TokenTTL: Duration{24 * time.Hour}, LoginRateLimit: 10},
		CORS: CORSConfig{AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{
			Endpoint:     "http://localhost:9000",
			Region:       "us-east-1",
			AvatarBucket: "user-avatars",
		},
	}
}

// Load reads .env (if present), then the TOML file at path (if path is not
// empty), then environment variables, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	if err = setInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}

	setString(&c.Server.Host, "HOST")
	if err = setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}

	setString(&c.Security.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if c.Security.TokenTTL.Duration, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
	}
	if err = setBool(&c.Security.CookieSecure, "COOKIE_SECURE"); err != nil {
		return err
	}
	if err = setBool(&c.Security.DisableAuth, "DISABLE_AUTH"); err != nil {
		return err
	}
	if err = setInt(&c.Security.LoginRateLimit, "LOGIN_RATE_LIMIT"); err != nil {
		return err
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		c.CORS.AllowedOrigins = origins
	}

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	setString(&c.Storage.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.Region, "S3_REGION")
	setString(&c.Storage.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Storage.SecretKey, "S3_SECRET_KEY")
	setString(&c.Storage.PublicURL, "S3_PUBLIC_URL")
	setString(&c.Storage.AvatarBucket, "AVATAR_BUCKET")

	setString(&c.Bootstrap.AdminEmail, "ADMIN_EMAIL")
	setString(&c.Bootstrap.AdminPassword, "ADMIN_PASSWORD")
	return nil
}

// DSN returns the connection string, building a postgres URL from the
// individual DB_* settings when no URL was given.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" || d.Driver == "sqlite3" {
		return d.URL
	}
	if d.User == "" || d.Name == "" {
		return ""
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case "pgx", "sqlite3":
	default:
		problems = append(problems, "DATABASE_DRIVER must be one of: pgx, sqlite3")
	}
	if c.Database.DSN() == "" {
		problems = append(problems, "DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}

	if c.Security.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	} else if len(c.Security.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 characters")
	}
	if c.Security.TokenTTL.Duration <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}
	if c.Security.LoginRateLimit < 0 {
		problems = append(problems, "LOGIN_RATE_LIMIT must not be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		problems = append(problems, "LOG_FORMAT must be one of: json, text")
	}

	if c.Storage.AvatarBucket == "" {
		problems = append(problems, "AVATAR_BUCKET is required")
	}
	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		problems = append(problems, "ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}
