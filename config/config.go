package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"flats-rental-backend/internal/logging"
	"flats-rental-backend/internal/model"
)

// Config represents the overall application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Factory    FactoryConfig    `yaml:"factory"`
	Host       HostConfig       `yaml:"host"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Audit      AuditConfig      `yaml:"audit"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RequestIPHeader string   `yaml:"request_ip_header"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	JWTSecret       string   `yaml:"jwt_secret"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// FactoryConfig names the factory account and its amounts in whole tokens.
type FactoryConfig struct {
	Account         string `yaml:"account"`
	Owner           string `yaml:"owner"`
	ProvisioningFee string `yaml:"provisioning_fee"`
	FundingAmount   string `yaml:"funding_amount"`
	MaxRooms        uint64 `yaml:"max_rooms"`

	Fee     decimal.Decimal `yaml:"-"`
	Funding decimal.Decimal `yaml:"-"`
}

// HostConfig selects how chains are delivered.
type HostConfig struct {
	Runner         string `yaml:"runner"` // pool or river
	WorkerPoolSize int    `yaml:"worker_pool_size"`
	QueueDepth     int    `yaml:"queue_depth"`
}

// AuditConfig schedules the failed/stalled chain report.
type AuditConfig struct {
	Schedule          string        `yaml:"schedule"`
	StaleAfterSeconds int           `yaml:"stale_after_seconds"`
	StaleAfter        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}

	if cfg.Factory.Account == "" {
		return fmt.Errorf("factory.account is required")
	}
	if cfg.Factory.Owner == "" {
		return fmt.Errorf("factory.owner is required")
	}
	if cfg.Factory.ProvisioningFee == "" {
		cfg.Factory.ProvisioningFee = "10"
	}
	if cfg.Factory.FundingAmount == "" {
		cfg.Factory.FundingAmount = "5"
	}
	if cfg.Factory.MaxRooms == 0 {
		cfg.Factory.MaxRooms = 1000
	}
	var err error
	if cfg.Factory.Fee, err = model.ParseNear(cfg.Factory.ProvisioningFee); err != nil {
		return fmt.Errorf("factory.provisioning_fee: %w", err)
	}
	if cfg.Factory.Funding, err = model.ParseNear(cfg.Factory.FundingAmount); err != nil {
		return fmt.Errorf("factory.funding_amount: %w", err)
	}
	if cfg.Factory.Funding.GreaterThan(cfg.Factory.Fee) {
		logging.Logger.Warnf("factory.funding_amount %s exceeds the fee %s; provisioning drains the factory balance",
			cfg.Factory.FundingAmount, cfg.Factory.ProvisioningFee)
	}

	if cfg.Host.Runner == "" {
		cfg.Host.Runner = "pool"
	}
	if cfg.Host.Runner != "pool" && cfg.Host.Runner != "river" {
		return fmt.Errorf("host.runner must be pool or river, got %q", cfg.Host.Runner)
	}
	if cfg.Host.Runner == "river" && cfg.Database.Driver != "postgres" {
		return fmt.Errorf("host.runner river needs the postgres driver")
	}
	if cfg.Host.WorkerPoolSize <= 0 {
		cfg.Host.WorkerPoolSize = 4
	}
	if cfg.Host.QueueDepth <= 0 {
		cfg.Host.QueueDepth = 256
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		logging.Logger.Warn("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Audit.Schedule == "" {
		cfg.Audit.Schedule = "@every 5m"
	}
	if cfg.Audit.StaleAfterSeconds <= 0 {
		cfg.Audit.StaleAfterSeconds = 900
	}
	cfg.Audit.StaleAfter = time.Duration(cfg.Audit.StaleAfterSeconds) * time.Second
	return nil
}
