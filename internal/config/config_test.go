package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_MemoryDriverNeedsNoAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "memory"
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for memory driver: %v", err)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}

	expected := `database.driver must be "redis" or "memory", got "postgres"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_UnknownDefaultProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Estimator.DefaultProvider = "openrouter"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown default provider")
	}
}

func TestValidate_UnknownDefaultTier(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.DefaultTier = "enterprise"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown default tier")
	}
}

func TestValidate_OrgTierReferencesUnknownTier(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.OrgTiers = map[string]string{"acme": "enterprise"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown org tier")
	}
}

func TestValidate_NegativeOrgLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Budget.Orgs = map[string]OrgBudgetConfig{
		"acme": {DailyLimitEUR: -1},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative org limit")
	}
}

func TestValidate_BadTierWindow(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Tiers["demo"] = TierConfig{WindowMS: 0, MaxRequests: 10}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero tier window")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.Driver != "redis" {
		t.Errorf("expected Driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Storage.KeyPrefix != "spendgate:" {
		t.Errorf("expected KeyPrefix='spendgate:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Storage.TimeoutMS != 150 {
		t.Errorf("expected TimeoutMS=150, got %d", cfg.Storage.TimeoutMS)
	}
	if cfg.Budget.Default.DailyLimitEUR != 100 {
		t.Errorf("expected DailyLimitEUR=100, got %v", cfg.Budget.Default.DailyLimitEUR)
	}
	if cfg.Budget.Default.MonthlyLimitEUR != 1000 {
		t.Errorf("expected MonthlyLimitEUR=1000, got %v", cfg.Budget.Default.MonthlyLimitEUR)
	}
	if cfg.Budget.Default.ActivationThresholdPct != 100 {
		t.Errorf("expected ActivationThresholdPct=100, got %v", cfg.Budget.Default.ActivationThresholdPct)
	}
	if cfg.Budget.Default.PerRequestLimitEUR != 10 {
		t.Errorf("expected PerRequestLimitEUR=10, got %v", cfg.Budget.Default.PerRequestLimitEUR)
	}
	if cfg.Estimator.DefaultProvider != "azure" {
		t.Errorf("expected DefaultProvider=azure, got %q", cfg.Estimator.DefaultProvider)
	}
	if cfg.Estimator.DefaultTokens != 1000 {
		t.Errorf("expected DefaultTokens=1000, got %d", cfg.Estimator.DefaultTokens)
	}
	if cfg.Estimator.DirectorMultiplier != 1.5 {
		t.Errorf("expected DirectorMultiplier=1.5, got %v", cfg.Estimator.DirectorMultiplier)
	}
	if cfg.Estimator.Providers["azure"].EURPerToken != 0.00002 {
		t.Errorf("expected azure eur_per_token=0.00002, got %v", cfg.Estimator.Providers["azure"].EURPerToken)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("expected FailureThreshold=3, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.BaseBackoffMS != 1000 {
		t.Errorf("expected BaseBackoffMS=1000, got %d", cfg.Breaker.BaseBackoffMS)
	}
	if cfg.Breaker.MaxBackoffMS != 60000 {
		t.Errorf("expected MaxBackoffMS=60000, got %d", cfg.Breaker.MaxBackoffMS)
	}
	if cfg.Breaker.HalfOpenMaxCalls != 2 {
		t.Errorf("expected HalfOpenMaxCalls=2, got %d", cfg.Breaker.HalfOpenMaxCalls)
	}
	if cfg.RateLimit.DefaultTier != "demo" {
		t.Errorf("expected DefaultTier=demo, got %q", cfg.RateLimit.DefaultTier)
	}
	if cfg.RateLimit.Tiers["demo"].MaxRequests != 10 {
		t.Errorf("expected demo MaxRequests=10, got %d", cfg.RateLimit.Tiers["demo"].MaxRequests)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{Driver: "memory", ReadinessTimeout: 15},
		Storage:  StorageConfig{KeyPrefix: "custom:", TimeoutMS: 300},
		Budget: BudgetConfig{
			Default: OrgBudgetConfig{DailyLimitEUR: 50, MonthlyLimitEUR: 500, ActivationThresholdPct: 95, PerRequestLimitEUR: 5},
		},
		Estimator: EstimatorConfig{
			DefaultProvider:    "local",
			DefaultTokens:      2000,
			DirectorMultiplier: 2,
			Providers:          map[string]ProviderConfig{"local": {EURPerToken: 0.000002}},
		},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("expected Driver=memory, got %q", cfg.Database.Driver)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Budget.Default.DailyLimitEUR != 50 {
		t.Errorf("expected DailyLimitEUR=50, got %v", cfg.Budget.Default.DailyLimitEUR)
	}
	if cfg.Estimator.DefaultProvider != "local" {
		t.Errorf("expected DefaultProvider=local, got %q", cfg.Estimator.DefaultProvider)
	}
	if cfg.Estimator.DirectorMultiplier != 2 {
		t.Errorf("expected DirectorMultiplier=2, got %v", cfg.Estimator.DirectorMultiplier)
	}
	if _, ok := cfg.Estimator.Providers["azure"]; ok {
		t.Error("explicit provider table must not be merged with defaults")
	}
}
