package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Batch     BatchConfig     `yaml:"batch"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Platforms PlatformsConfig `yaml:"platforms"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds Redis settings. Redis is optional; without it the batch
// lock falls back to a Postgres advisory lock and the gates stay in-process.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// BatchConfig controls the ingestion batch.
type BatchConfig struct {
	Cron                   string `yaml:"cron"`
	GlobalConcurrency      int    `yaml:"global_concurrency"`
	PerBusinessConcurrency int    `yaml:"per_business_concurrency"`
	BusinessWorkers        int    `yaml:"business_workers"`
	MaxRetries             int    `yaml:"max_retries"`
	BaseDelayMs            int    `yaml:"base_delay_ms"`
	MaxJitterMs            int    `yaml:"max_jitter_ms"`
	MaxDelayMs             int    `yaml:"max_delay_ms"`
	// SharedGate moves the global gate into Redis so several orchestrator
	// instances share one request budget.
	SharedGate bool `yaml:"shared_gate"`
	// LockTTLMinutes is the Redis lock expiry; running batches renew it.
	LockTTLMinutes int `yaml:"lock_ttl_minutes"`
	TimeoutMinutes int `yaml:"timeout_minutes"`
	// RetentionDays bounds how long daily performance rows are kept.
	RetentionDays int `yaml:"retention_days"`
}

// BaseDelay returns the backoff base as a duration
func (c BatchConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxJitter returns the jitter ceiling as a duration
func (c BatchConfig) MaxJitter() time.Duration {
	return time.Duration(c.MaxJitterMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration
func (c BatchConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// LockTTL returns the batch lock TTL as a duration
func (c BatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// Timeout bounds a single batch run.
func (c BatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// AnalysisConfig holds pattern-analysis thresholds
type AnalysisConfig struct {
	LookbackDays int     `yaml:"lookback_days"`
	MaxInsights  int     `yaml:"max_insights"`
	MinAds       int     `yaml:"min_ads"`
	MinUplift    float64 `yaml:"min_uplift"`
	Alpha        float64 `yaml:"alpha"`
}

// PlatformsConfig holds per-platform API settings
type PlatformsConfig struct {
	Meta      MetaConfig      `yaml:"meta"`
	GoogleAds GoogleAdsConfig `yaml:"google_ads"`
}

// MetaConfig holds Meta Marketing API configuration
type MetaConfig struct {
	Enabled        bool        `yaml:"enabled"`
	BaseURL        string      `yaml:"base_url"`
	APIVersion     string      `yaml:"api_version"`
	PageSize       int         `yaml:"page_size"`
	LeadActionType string      `yaml:"lead_action_type"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	OAuth          OAuthConfig `yaml:"oauth"`
}

// Timeout returns the configured timeout as a duration
func (c MetaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GoogleAdsConfig holds Google Ads API configuration
type GoogleAdsConfig struct {
	Enabled         bool        `yaml:"enabled"`
	BaseURL         string      `yaml:"base_url"`
	APIVersion      string      `yaml:"api_version"`
	DeveloperToken  string      `yaml:"developer_token"`
	LoginCustomerID string      `yaml:"login_customer_id"`
	PageSize        int         `yaml:"page_size"`
	TimeoutSeconds  int         `yaml:"timeout_seconds"`
	OAuth           OAuthConfig `yaml:"oauth"`
}

// OAuthConfig holds the app credentials used to refresh expired access
// tokens. Refresh is skipped when ClientID is empty.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

// Timeout returns the configured timeout as a duration
func (c GoogleAdsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AlertsConfig holds alert delivery settings
type AlertsConfig struct {
	SES SESAlertConfig `yaml:"ses"`
}

// SESAlertConfig sends alerts at or above MinLevel by email via SES.
type SESAlertConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"access_key"`
	SecretKey string   `yaml:"secret_key"`
	From      string   `yaml:"from"`
	To        []string `yaml:"to"`
	MinLevel  string   `yaml:"min_level"`
}

// ArchiveConfig holds raw page archive settings
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Redact *bool  `yaml:"redact"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}

	// Batch defaults
	if cfg.Batch.Cron == "" {
		cfg.Batch.Cron = "0 3 * * *"
	}
	if cfg.Batch.GlobalConcurrency == 0 {
		cfg.Batch.GlobalConcurrency = 5
	}
	if cfg.Batch.PerBusinessConcurrency == 0 {
		cfg.Batch.PerBusinessConcurrency = 3
	}
	if cfg.Batch.BusinessWorkers == 0 {
		cfg.Batch.BusinessWorkers = 4
	}
	if cfg.Batch.MaxRetries == 0 {
		cfg.Batch.MaxRetries = 5
	}
	if cfg.Batch.BaseDelayMs == 0 {
		cfg.Batch.BaseDelayMs = 1000
	}
	if cfg.Batch.MaxJitterMs == 0 {
		cfg.Batch.MaxJitterMs = 1000
	}
	if cfg.Batch.MaxDelayMs == 0 {
		cfg.Batch.MaxDelayMs = 30000
	}
	if cfg.Batch.LockTTLMinutes == 0 {
		cfg.Batch.LockTTLMinutes = 60
	}
	if cfg.Batch.TimeoutMinutes == 0 {
		cfg.Batch.TimeoutMinutes = 120
	}
	if cfg.Batch.RetentionDays == 0 {
		cfg.Batch.RetentionDays = 400
	}

	// Analysis defaults
	if cfg.Analysis.LookbackDays == 0 {
		cfg.Analysis.LookbackDays = 30
	}
	if cfg.Analysis.MaxInsights == 0 {
		cfg.Analysis.MaxInsights = 5
	}
	if cfg.Analysis.MinAds == 0 {
		cfg.Analysis.MinAds = 3
	}
	if cfg.Analysis.MinUplift == 0 {
		cfg.Analysis.MinUplift = 0.15
	}
	if cfg.Analysis.Alpha == 0 {
		cfg.Analysis.Alpha = 0.05
	}

	// Platform defaults
	if cfg.Platforms.Meta.BaseURL == "" {
		cfg.Platforms.Meta.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Platforms.Meta.APIVersion == "" {
		cfg.Platforms.Meta.APIVersion = "v19.0"
	}
	if cfg.Platforms.Meta.PageSize == 0 {
		cfg.Platforms.Meta.PageSize = 100
	}
	if cfg.Platforms.Meta.LeadActionType == "" {
		cfg.Platforms.Meta.LeadActionType = "lead"
	}
	if cfg.Platforms.Meta.TimeoutSeconds == 0 {
		cfg.Platforms.Meta.TimeoutSeconds = 60
	}
	if cfg.Platforms.GoogleAds.BaseURL == "" {
		cfg.Platforms.GoogleAds.BaseURL = "https://googleads.googleapis.com"
	}
	if cfg.Platforms.GoogleAds.APIVersion == "" {
		cfg.Platforms.GoogleAds.APIVersion = "v16"
	}
	if cfg.Platforms.GoogleAds.PageSize == 0 {
		cfg.Platforms.GoogleAds.PageSize = 1000
	}
	if cfg.Platforms.GoogleAds.TimeoutSeconds == 0 {
		cfg.Platforms.GoogleAds.TimeoutSeconds = 60
	}
	if cfg.Platforms.Meta.OAuth.TokenURL == "" {
		cfg.Platforms.Meta.OAuth.TokenURL = "https://graph.facebook.com/oauth/access_token"
	}
	if cfg.Platforms.GoogleAds.OAuth.TokenURL == "" {
		cfg.Platforms.GoogleAds.OAuth.TokenURL = "https://oauth2.googleapis.com/token"
	}

	if cfg.Alerts.SES.Region == "" {
		cfg.Alerts.SES.Region = "us-east-1"
	}
	if cfg.Alerts.SES.MinLevel == "" {
		cfg.Alerts.SES.MinLevel = "error"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "raw"
	}
	if cfg.Archive.S3Region == "" {
		cfg.Archive.S3Region = "us-east-1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ADSYNC_CRON"); v != "" {
		cfg.Batch.Cron = v
	}
	if v := os.Getenv("ADSYNC_GLOBAL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Batch.GlobalConcurrency = n
		}
	}
	if v := os.Getenv("META_BASE_URL"); v != "" {
		cfg.Platforms.Meta.BaseURL = v
	}
	if v := os.Getenv("GOOGLE_ADS_BASE_URL"); v != "" {
		cfg.Platforms.GoogleAds.BaseURL = v
	}
	if v := os.Getenv("GOOGLE_ADS_DEVELOPER_TOKEN"); v != "" {
		cfg.Platforms.GoogleAds.DeveloperToken = v
	}
	if v := os.Getenv("META_CLIENT_ID"); v != "" {
		cfg.Platforms.Meta.OAuth.ClientID = v
	}
	if v := os.Getenv("META_CLIENT_SECRET"); v != "" {
		cfg.Platforms.Meta.OAuth.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_ADS_CLIENT_ID"); v != "" {
		cfg.Platforms.GoogleAds.OAuth.ClientID = v
	}
	if v := os.Getenv("GOOGLE_ADS_CLIENT_SECRET"); v != "" {
		cfg.Platforms.GoogleAds.OAuth.ClientSecret = v
	}

	// Alerts overrides
	if v := os.Getenv("ALERT_SES_ACCESS_KEY"); v != "" {
		cfg.Alerts.SES.AccessKey = v
	}
	if v := os.Getenv("ALERT_SES_SECRET_KEY"); v != "" {
		cfg.Alerts.SES.SecretKey = v
	}
	if v := os.Getenv("ALERT_SES_REGION"); v != "" {
		cfg.Alerts.SES.Region = v
	}

	// Archive overrides
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
		cfg.Archive.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
