package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PostgresConfig describes the control-plane database holding API tokens and
// account credits. Host may also be a full postgres:// URL.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// TemplateConfig overrides one entry of the built-in placement registry.
type TemplateConfig struct {
	Product  string  `yaml:"product"`
	BaseURL  string  `yaml:"base_url"`
	BasePath string  `yaml:"base_path"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
	Rotation float64 `yaml:"rotation"`
}

// Config is the service configuration loaded from YAML.
type Config struct {
	Server struct {
		Host        string `yaml:"host"`
		Port        string `yaml:"port"`
		Prefork     bool   `yaml:"prefork"`
		BodyLimitMB int    `yaml:"body_limit_mb"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		RedisHost          string        `yaml:"redis_host"`
		RateLimitDB        int           `yaml:"redis_rate_db"`
		MockupCacheDB      int           `yaml:"redis_mockup_db"`
		MockupCacheEnabled bool          `yaml:"mockup_cache_enabled"`
		MockupCacheTTL     time.Duration `yaml:"mockup_cache_ttl"`
	} `yaml:"cache"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
	} `yaml:"rate_limiter"`

	Limits struct {
		MaxArtworkBytes int `yaml:"max_artwork_bytes"`
		MaxBaseBytes    int `yaml:"max_base_bytes"`
	} `yaml:"limits"`

	Compositor struct {
		AssetTimeout time.Duration `yaml:"asset_timeout"`
	} `yaml:"compositor"`

	Templates []TemplateConfig `yaml:"templates"`

	Generate struct {
		Provider              string        `yaml:"provider"`
		APIKey                string        `yaml:"api_key"`
		Model                 string        `yaml:"model"`
		Endpoint              string        `yaml:"endpoint"`
		Timeout               time.Duration `yaml:"timeout"`
		FallbackToPlaceholder bool          `yaml:"fallback_to_placeholder"`
		Placeholders          []string      `yaml:"placeholders"`
		PlaceholderMinDelay   time.Duration `yaml:"placeholder_min_delay"`
		PlaceholderMaxDelay   time.Duration `yaml:"placeholder_max_delay"`
	} `yaml:"generate"`

	Billing struct {
		SecretKey           string `yaml:"secret_key"`
		WebhookSecret       string `yaml:"webhook_secret"`
		SubscriptionPriceID string `yaml:"subscription_price_id"`
		CreditsPriceID      string `yaml:"credits_price_id"`
		SubscriptionCredits int    `yaml:"subscription_credits"`
		CreditsPackCredits  int    `yaml:"credits_pack_credits"`
		DefaultOrigin       string `yaml:"default_origin"`
	} `yaml:"billing"`
}

// AppConfig holds the configuration loaded by LoadConfig.
var AppConfig Config

// GetConfig returns the active configuration.
func GetConfig() Config {
	return AppConfig
}

// LoadConfig loads the file named by CONFIG_PATH (default config.yaml),
// stores it in AppConfig and returns it. It panics on invalid values.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg := LoadFrom(path)
	AppConfig = cfg
	return cfg
}

// LoadFrom reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. A missing file yields the defaults.
func LoadFrom(path string) Config {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("invalid config %s: %v", path, err))
		}
	case errors.Is(err, fs.ErrNotExist):
		Warn("Config file not found, using defaults", "path", path)
	default:
		panic(fmt.Sprintf("cannot read config %s: %v", path, err))
	}

	loadDotEnv()
	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		panic(err.Error())
	}
	return cfg
}

// loadDotEnv loads the nearest .env walking up from the working directory.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				Warn("Failed to load .env file", "path", envPath, "error", err)
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.BodyLimitMB <= 0 {
		cfg.Server.BodyLimitMB = 16
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Cache.RedisHost == "" {
		cfg.Cache.RedisHost = "127.0.0.1:6379"
	}
	if cfg.Cache.MockupCacheTTL == 0 {
		cfg.Cache.MockupCacheTTL = time.Hour
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Limits.MaxArtworkBytes == 0 {
		cfg.Limits.MaxArtworkBytes = 10 << 20
	}
	if cfg.Limits.MaxBaseBytes == 0 {
		cfg.Limits.MaxBaseBytes = 20 << 20
	}
	if cfg.Compositor.AssetTimeout == 0 {
		cfg.Compositor.AssetTimeout = 10 * time.Second
	}
	if cfg.Generate.Provider == "" {
		cfg.Generate.Provider = "placeholder"
	}
	if cfg.Generate.Model == "" {
		cfg.Generate.Model = "gemini-2.5-flash-image-preview"
	}
	if cfg.Generate.Endpoint == "" {
		cfg.Generate.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Generate.Timeout == 0 {
		cfg.Generate.Timeout = 60 * time.Second
	}
	if cfg.Generate.PlaceholderMinDelay == 0 && cfg.Generate.PlaceholderMaxDelay == 0 {
		cfg.Generate.PlaceholderMinDelay = 500 * time.Millisecond
		cfg.Generate.PlaceholderMaxDelay = time.Second
	}
	if cfg.Billing.SubscriptionCredits == 0 {
		cfg.Billing.SubscriptionCredits = 400
	}
	if cfg.Billing.CreditsPackCredits == 0 {
		cfg.Billing.CreditsPackCredits = 40
	}
}

// applyEnv lets secrets come from the environment (or .env) instead of YAML.
func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"STRIPE_SECRET_KEY", &cfg.Billing.SecretKey},
		{"STRIPE_WEBHOOK_SECRET", &cfg.Billing.WebhookSecret},
		{"STRIPE_SUB_PRICE_ID", &cfg.Billing.SubscriptionPriceID},
		{"STRIPE_CREDITS_PRICE_ID", &cfg.Billing.CreditsPriceID},
		{"GOOGLE_API_KEY", &cfg.Generate.APIKey},
		{"DATABASE_URL", &cfg.Auth.Postgres.Host},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func validate(cfg Config) error {
	if cfg.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive")
	}
	if cfg.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if cfg.Compositor.AssetTimeout <= 0 {
		return fmt.Errorf("compositor.asset_timeout must be positive")
	}
	if cfg.Limits.MaxArtworkBytes < 0 || cfg.Limits.MaxBaseBytes < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if cfg.Generate.PlaceholderMaxDelay < cfg.Generate.PlaceholderMinDelay {
		return fmt.Errorf("generate.placeholder_max_delay must not be below placeholder_min_delay")
	}
	switch cfg.Generate.Provider {
	case "gemini", "placeholder":
	default:
		return fmt.Errorf("generate.provider %q is not supported", cfg.Generate.Provider)
	}
	for i, t := range cfg.Templates {
		if t.Product == "" {
			return fmt.Errorf("templates[%d]: product is required", i)
		}
		if t.BaseURL == "" && t.BasePath == "" {
			return fmt.Errorf("templates[%d]: base_url or base_path is required", i)
		}
	}
	return nil
}
