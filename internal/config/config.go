package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the spendgate API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Budget    BudgetConfig    `yaml:"budget"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds ledger storage connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds key layout and timeout settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// BudgetConfig holds the default org budget and per-org overrides.
type BudgetConfig struct {
	Default OrgBudgetConfig            `yaml:"default"`
	Orgs    map[string]OrgBudgetConfig `yaml:"orgs"`
}

// OrgBudgetConfig holds the budget ceilings for one org. An absent override
// falls back to Default entirely.
type OrgBudgetConfig struct {
	DailyLimitEUR          float64 `yaml:"daily_limit_eur"`
	MonthlyLimitEUR        float64 `yaml:"monthly_limit_eur"`
	ActivationThresholdPct float64 `yaml:"activation_threshold_pct"`
	PerRequestLimitEUR     float64 `yaml:"per_request_limit_eur"`
}

// EstimatorConfig holds the price table and estimation fallbacks.
type EstimatorConfig struct {
	DefaultProvider    string                    `yaml:"default_provider"`
	DefaultTokens      int                       `yaml:"default_tokens"`
	DirectorMultiplier float64                   `yaml:"director_multiplier"`
	Providers          map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds one downstream provider's price and connection.
type ProviderConfig struct {
	EURPerToken float64 `yaml:"eur_per_token"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
}

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	BaseBackoffMS    int `yaml:"base_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms"`
	HalfOpenMaxCalls int `yaml:"half_open_max_calls"`
}

// RateLimitConfig holds the request rate tiers and org assignments.
type RateLimitConfig struct {
	Tiers       map[string]TierConfig `yaml:"tiers"`
	DefaultTier string                `yaml:"default_tier"`
	OrgTiers    map[string]string     `yaml:"org_tiers"`
}

// TierConfig holds one fixed-window allowance.
type TierConfig struct {
	WindowMS    int `yaml:"window_ms"`
	MaxRequests int `yaml:"max_requests"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "spendgate:"
	}
	if c.Storage.TimeoutMS <= 0 {
		c.Storage.TimeoutMS = 150
	}

	if c.Budget.Default.DailyLimitEUR <= 0 {
		c.Budget.Default.DailyLimitEUR = 100
	}
	if c.Budget.Default.MonthlyLimitEUR <= 0 {
		c.Budget.Default.MonthlyLimitEUR = 1000
	}
	if c.Budget.Default.ActivationThresholdPct <= 0 {
		c.Budget.Default.ActivationThresholdPct = 100
	}
	if c.Budget.Default.PerRequestLimitEUR <= 0 {
		c.Budget.Default.PerRequestLimitEUR = 10
	}

	if c.Estimator.DefaultProvider == "" {
		c.Estimator.DefaultProvider = "azure"
	}
	if c.Estimator.DefaultTokens <= 0 {
		c.Estimator.DefaultTokens = 1000
	}
	if c.Estimator.DirectorMultiplier <= 0 {
		c.Estimator.DirectorMultiplier = 1.5
	}
	if c.Estimator.Providers == nil {
		c.Estimator.Providers = map[string]ProviderConfig{
			"azure": {EURPerToken: 0.00002},
			"local": {EURPerToken: 0.000001},
		}
	}

	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 3
	}
	if c.Breaker.BaseBackoffMS <= 0 {
		c.Breaker.BaseBackoffMS = 1000
	}
	if c.Breaker.MaxBackoffMS <= 0 {
		c.Breaker.MaxBackoffMS = 60000
	}
	if c.Breaker.HalfOpenMaxCalls <= 0 {
		c.Breaker.HalfOpenMaxCalls = 2
	}

	if c.RateLimit.Tiers == nil {
		c.RateLimit.Tiers = map[string]TierConfig{
			"demo":       {WindowMS: 60000, MaxRequests: 10},
			"production": {WindowMS: 60000, MaxRequests: 100},
		}
	}
	if c.RateLimit.DefaultTier == "" {
		c.RateLimit.DefaultTier = "demo"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case "memory":
		// In-process store needs no address.
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}

	for org, b := range c.Budget.Orgs {
		if b.DailyLimitEUR < 0 || b.MonthlyLimitEUR < 0 {
			return fmt.Errorf("budget.orgs.%s: limits must not be negative", org)
		}
	}

	if _, ok := c.Estimator.Providers[c.Estimator.DefaultProvider]; !ok {
		return fmt.Errorf("estimator.default_provider %q has no entry in estimator.providers",
			c.Estimator.DefaultProvider)
	}
	for name, p := range c.Estimator.Providers {
		if p.EURPerToken < 0 {
			return fmt.Errorf("estimator.providers.%s.eur_per_token must not be negative", name)
		}
	}

	if _, ok := c.RateLimit.Tiers[c.RateLimit.DefaultTier]; !ok {
		return fmt.Errorf("ratelimit.default_tier %q has no entry in ratelimit.tiers",
			c.RateLimit.DefaultTier)
	}
	for org, tier := range c.RateLimit.OrgTiers {
		if _, ok := c.RateLimit.Tiers[tier]; !ok {
			return fmt.Errorf("ratelimit.org_tiers.%s references unknown tier %q", org, tier)
		}
	}
	for name, t := range c.RateLimit.Tiers {
		if t.WindowMS <= 0 || t.MaxRequests <= 0 {
			return fmt.Errorf("ratelimit.tiers.%s: window_ms and max_requests must be positive", name)
		}
	}

	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
