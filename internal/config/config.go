package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Clover   CloverConfig   `toml:"clover"`
	Auth     AuthConfig     `toml:"auth"`
	Minio    MinioConfig    `toml:"minio"`
	Jobs     JobsConfig     `toml:"jobs"`
	Orders   OrdersConfig   `toml:"orders"`
}

type ServerConfig struct {
	Port        int    `toml:"port"`
	AdminSecret string `toml:"admin_secret"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RedisConfig contains the cache connection settings
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CloverConfig contains OAuth credentials and API hosts for the POS
type CloverConfig struct {
	ClientID           string `toml:"client_id"`
	ClientSecret       string `toml:"client_secret"`
	OAuthBase          string `toml:"oauth_base"`
	APIBase            string `toml:"api_base"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
}

// AuthConfig selects how caller bearer tokens are verified. Both empty disables user resolution.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	JWKSURL   string `toml:"jwks_url"`
}

type MinioConfig struct {
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ReceiptsBucket string `toml:"receipts_bucket"`
}

// JobsConfig contains the token refresh sweep settings
type JobsConfig struct {
	RefreshWindowMs        int64 `toml:"refresh_window_ms"`
	RefreshPageSize        int   `toml:"refresh_page_size"`
	RefreshIntervalMinutes int   `toml:"refresh_interval_minutes"`
}

type OrdersConfig struct {
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Clover: CloverConfig{
			OAuthBase:          "https://sandbox.dev.clover.com",
			APIBase:            "https://apisandbox.dev.clover.com",
			HTTPTimeoutSeconds: 20,
		},
		Minio: MinioConfig{ReceiptsBucket: "order-receipts"},
		Jobs: JobsConfig{
			RefreshWindowMs:        int64(6 * time.Hour / time.Millisecond),
			RefreshPageSize:        500,
			RefreshIntervalMinutes: 30,
		},
		Orders: OrdersConfig{RateLimitPerMinute: 30},
	}
}

// Load reads the optional TOML file at path and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	applyEnv(cfg, os.Getenv)
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.AdminSecret, "ADMIN_SECRET")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Clover.ClientID, "CLOVER_CLIENT_ID")
	setString(&cfg.Clover.ClientSecret, "CLOVER_CLIENT_SECRET")
	setString(&cfg.Clover.OAuthBase, "CLOVER_OAUTH_BASE")
	setString(&cfg.Clover.APIBase, "CLOVER_API_BASE")
	setInt(&cfg.Clover.HTTPTimeoutSeconds, "CLOVER_HTTP_TIMEOUT_SECONDS")
	setString(&cfg.Auth.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&cfg.Auth.JWKSURL, "SUPABASE_JWKS_URL")
	setString(&cfg.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Minio.ReceiptsBucket, "MINIO_RECEIPTS_BUCKET")
	if v := getenv("MINIO_USE_SSL"); v != "" {
		cfg.Minio.UseSSL = v == "true"
	}
	if v := getenv("CLOVER_REFRESH_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Jobs.RefreshWindowMs = n
		}
	}
	setInt(&cfg.Jobs.RefreshPageSize, "CLOVER_REFRESH_PAGE_SIZE")
	setInt(&cfg.Jobs.RefreshIntervalMinutes, "CLOVER_REFRESH_INTERVAL_MINUTES")
	setInt(&cfg.Orders.RateLimitPerMinute, "ORDER_RATE_LIMIT_PER_MINUTE")
}

// Configured reports whether the POS OAuth credentials are present.
func (c *CloverConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// HTTPTimeout returns the outbound POS timeout.
func (c *CloverConfig) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// OAuthAPIBase maps the configured OAuth web host onto the matching API host.
func (c *CloverConfig) OAuthAPIBase() string {
	return NormalizeOAuthAPIBase(c.OAuthBase)
}

const fallbackOAuthAPIBase = "https://apisandbox.dev.clover.com"

var oauthHostMap = map[string]string{
	"sandbox.dev.clover.com": "apisandbox.dev.clover.com",
	"www.clover.com":         "api.clover.com",
	"www.eu.clover.com":      "api.eu.clover.com",
	"www.la.clover.com":      "api.la.clover.com",
}

// NormalizeOAuthAPIBase drops any path and swaps web hosts for API hosts.
func NormalizeOAuthAPIBase(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return fallbackOAuthAPIBase
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fallbackOAuthAPIBase
	}
	host := strings.ToLower(u.Host)
	if mapped, ok := oauthHostMap[host]; ok {
		host = mapped
	}
	return u.Scheme + "://" + host
}

// RefreshWindow returns the sweep look-ahead.
func (j *JobsConfig) RefreshWindow() time.Duration {
	return time.Duration(j.RefreshWindowMs) * time.Millisecond
}

// Validate checks the settings required at startup.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}
