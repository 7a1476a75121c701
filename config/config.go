package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Authz    AuthzConfig
	Internal InternalAuthConfig
	Invites  InvitesConfig
	LogLevel string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port             string
	ReadTimeout      int
	WriteTimeout     int
	MaxJSONBodyBytes int64
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/xynes_accounts?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// compensation queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthzConfig locates the authorization service.
type AuthzConfig struct {
	BaseURL string
	Timeout time.Duration
}

// InternalAuthConfig holds the service-to-service credentials.
type InternalAuthConfig struct {
	ServiceToken string
	SigningKey   string
	AllowLegacy  bool
}

// InvitesConfig tunes workspace invites.
type InvitesConfig struct {
	ExpiresInDays int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "4203"),
			ReadTimeout:      getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:     getEnvInt("WRITE_TIMEOUT_SEC", 30),
			MaxJSONBodyBytes: int64(getEnvInt("MAX_JSON_BODY_BYTES", 1048576)),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "xynes_accounts"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Authz: AuthzConfig{
			BaseURL: getEnv("AUTHZ_SERVICE_URL", ""),
			Timeout: time.Duration(getEnvInt("AUTHZ_CLIENT_TIMEOUT_MS", 5000)) * time.Millisecond,
		},
		Internal: InternalAuthConfig{
			ServiceToken: getEnv("INTERNAL_SERVICE_TOKEN", ""),
			SigningKey:   getEnv("INTERNAL_JWT_SIGNING_KEY", ""),
			AllowLegacy:  getEnvBool("ALLOW_LEGACY_INTERNAL_TOKEN", false),
		},
		Invites: InvitesConfig{
			ExpiresInDays: getEnvInt("INVITE_EXPIRES_IN_DAYS", 7),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports whether inbound internal calls can be authenticated at all.
func (c InternalAuthConfig) Validate() error {
	if c.SigningKey == "" && !(c.AllowLegacy && c.ServiceToken != "") {
		return fmt.Errorf("INTERNAL_JWT_SIGNING_KEY is required unless ALLOW_LEGACY_INTERNAL_TOKEN is set with INTERNAL_SERVICE_TOKEN")
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.MaxJSONBodyBytes <= 0 {
		return fmt.Errorf("MAX_JSON_BODY_BYTES must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
