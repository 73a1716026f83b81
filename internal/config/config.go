package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	Env string

	// Database（空ならインメモリの設定ストアを使う）
	DatabaseURL string

	// Discord OAuth
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Discord API
	DiscordTimeout     time.Duration
	DiscordMaxResponse int64

	// Rate Limit（req/min）
	RateLimitGeneral  int
	RateLimitSettings int

	// Audit
	AuditRetentionDays   int
	AuditCleanupInterval time.Duration

	// Server
	ServerPort      string
	BaseURL         string
	DefaultRedirect string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// IsDevelopment は開発環境かを返す。
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// UsesDatabase はPostgreSQLの設定ストアを使うかを返す。
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DiscordClientID = os.Getenv("DISCORD_CLIENT_ID")
	if cfg.DiscordClientID == "" {
		missing = append(missing, "DISCORD_CLIENT_ID")
	}

	cfg.DiscordClientSecret = os.Getenv("DISCORD_CLIENT_SECRET")
	if cfg.DiscordClientSecret == "" {
		missing = append(missing, "DISCORD_CLIENT_SECRET")
	}

	cfg.DiscordRedirectURI = os.Getenv("DISCORD_REDIRECT_URI")
	if cfg.DiscordRedirectURI == "" {
		missing = append(missing, "DISCORD_REDIRECT_URI")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Env = loadEnv()
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.DiscordTimeout = getEnvDuration("DISCORD_TIMEOUT", 10*time.Second)
	cfg.DiscordMaxResponse = getEnvInt64("DISCORD_MAX_RESPONSE", 1048576)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSettings = getEnvInt("RATE_LIMIT_SETTINGS", 20)
	cfg.AuditRetentionDays = getEnvInt("AUDIT_RETENTION_DAYS", 30)
	cfg.AuditCleanupInterval = getEnvDuration("AUDIT_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.DefaultRedirect = getEnvString("DEFAULT_REDIRECT", "/dashboard")
	// 開発環境ではhttpのlocalhostで動かすためSecureを外す
	cfg.CookieSecure = !cfg.IsDevelopment()
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if invalid := nonPositive(cfg); len(invalid) > 0 {
		return nil, fmt.Errorf("environment variables must be positive: %v", invalid)
	}

	if !strings.HasPrefix(cfg.DefaultRedirect, "/") || strings.HasPrefix(cfg.DefaultRedirect, "//") {
		return nil, fmt.Errorf("DEFAULT_REDIRECT must be a same-origin path: %q", cfg.DefaultRedirect)
	}

	return cfg, nil
}

// nonPositive は0以下を許さない数値設定のうち、違反している環境変数名を返す。
func nonPositive(cfg *Config) []string {
	checks := []struct {
		key string
		ok  bool
	}{
		{"DISCORD_TIMEOUT", cfg.DiscordTimeout > 0},
		{"DISCORD_MAX_RESPONSE", cfg.DiscordMaxResponse > 0},
		{"RATE_LIMIT_GENERAL", cfg.RateLimitGeneral > 0},
		{"RATE_LIMIT_SETTINGS", cfg.RateLimitSettings > 0},
		{"AUDIT_RETENTION_DAYS", cfg.AuditRetentionDays > 0},
		{"AUDIT_CLEANUP_INTERVAL", cfg.AuditCleanupInterval > 0},
	}
	var invalid []string
	for _, c := range checks {
		if !c.ok {
			invalid = append(invalid, c.key)
		}
	}
	return invalid
}

// loadEnv はNODE_ENV（なければAPP_ENV）を読む。未設定はproduction。
func loadEnv() string {
	env := os.Getenv("NODE_ENV")
	if env == "" {
		env = os.Getenv("APP_ENV")
	}
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return EnvProduction
	}
	return env
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
