package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top,
// then applies env overrides (purchases.entitlement_id -> PURCHASES_ENTITLEMENT_ID).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile reads a single YAML file plus env overrides.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// bindEnvKeys makes AutomaticEnv visible to Unmarshal for keys that are
// absent from the YAML file.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"app.name", "app.version", "app.environment",
		"purchases.entitlement_id", "purchases.backend", "purchases.in_flight_guard", "purchases.timeout",
		"vendor.base_url", "vendor.api_key", "vendor.app_user_id", "vendor.platform",
		"stripe.secret_key", "stripe.registry_path", "stripe.app_user_id",
		"cache.enabled", "cache.offerings_ttl",
		"database.redis.address", "database.redis.password", "database.redis.db",
		"logging.level", "logging.format", "logging.output",
		"metrics.enabled", "metrics.address",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig falls back to the vendor-conventional variable names
// when the config keys were left empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Vendor.APIKey == "" {
		if val := os.Getenv("PURCHASES_API_KEY"); val != "" {
			cfg.Vendor.APIKey = val
		}
	}
	if cfg.Stripe.SecretKey == "" {
		if val := os.Getenv("STRIPE_SECRET_KEY"); val != "" {
			cfg.Stripe.SecretKey = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "purchase-sync"
	}

	if cfg.Purchases.EntitlementID == "" {
		cfg.Purchases.EntitlementID = DefaultEntitlementID
	}
	if cfg.Purchases.Backend == "" {
		cfg.Purchases.Backend = BackendHTTP
	}
	if cfg.Purchases.Timeout == 0 {
		cfg.Purchases.Timeout = 30000
	}

	if cfg.Vendor.Platform == "" {
		cfg.Vendor.Platform = "ios"
	}

	if cfg.Cache.OfferingsTTL == 0 {
		cfg.Cache.OfferingsTTL = 300
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Purchases.Backend {
	case BackendHTTP:
		if cfg.Vendor.BaseURL == "" {
			return fmt.Errorf("vendor.base_url is required for the http backend")
		}
		if cfg.Vendor.APIKey == "" {
			return fmt.Errorf("vendor.api_key is required for the http backend")
		}
	case BackendStripe:
		if cfg.Stripe.SecretKey == "" {
			return fmt.Errorf("stripe.secret_key is required for the stripe backend")
		}
		if cfg.Stripe.RegistryPath == "" {
			return fmt.Errorf("stripe.registry_path is required for the stripe backend")
		}
	default:
		return fmt.Errorf("purchases.backend must be %q or %q, got %q", BackendHTTP, BackendStripe, cfg.Purchases.Backend)
	}

	if cfg.Cache.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when cache.enabled is set")
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
