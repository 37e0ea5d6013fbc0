package config

import "time"

const (
	BackendHTTP   = "http"
	BackendStripe = "stripe"

	DefaultEntitlementID = "premium"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Purchases PurchasesConfig `mapstructure:"purchases"`
	Vendor    VendorConfig    `mapstructure:"vendor"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type PurchasesConfig struct {
	EntitlementID string `mapstructure:"entitlement_id"`
	Backend       string `mapstructure:"backend"` // http | stripe
	InFlightGuard bool   `mapstructure:"in_flight_guard"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

type VendorConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	AppUserID string `mapstructure:"app_user_id"`
	Platform  string `mapstructure:"platform"`
}

type StripeConfig struct {
	SecretKey    string `mapstructure:"secret_key"`
	RegistryPath string `mapstructure:"registry_path"`
	AppUserID    string `mapstructure:"app_user_id"`
}

type CacheConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	OfferingsTTL int  `mapstructure:"offerings_ttl"` // seconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// RequestTimeout is the vendor HTTP timeout.
func (p PurchasesConfig) RequestTimeout() time.Duration {
	return GetDuration(p.Timeout)
}

// OfferingsCacheTTL is the Redis TTL for cached offerings.
func (c CacheConfig) OfferingsCacheTTL() time.Duration {
	return time.Duration(c.OfferingsTTL) * time.Second
}
