package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudfin/finance/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig
	Finance    FinanceConfig `validate:"required"`
	Accounting ServiceConfig
	RAS        ServiceConfig
	Auth       AuthConfig
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Cache      CacheConfig
	Sentry     SentryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string
	Port                   int
	User                   string
	Password               string
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	ConnectRetries         uint64 `mapstructure:"connect_retries"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// FinanceConfig drives the billing engine: which plugins run, how often their
// runners cycle and which plan prices usage.
type FinanceConfig struct {
	Plugins                   []types.PluginKind `validate:"required,min=1"`
	DefaultPlan               string             `mapstructure:"default_plan" validate:"required"`
	DefaultTimeUnit           time.Duration      `mapstructure:"default_time_unit" validate:"required"`
	BillingInterval           time.Duration      `mapstructure:"billing_interval" validate:"required"`
	CreditsDeductionInterval  time.Duration      `mapstructure:"credits_deduction_interval" validate:"required"`
	InvoiceGenerationInterval time.Duration      `mapstructure:"invoice_generation_interval" validate:"required"`
	StopServiceInterval       time.Duration      `mapstructure:"stop_service_interval" validate:"required"`
	// PaymentManagers maps a plugin kind to the payment manager implementation it uses
	PaymentManagers map[string]string `mapstructure:"payment_managers"`
	// DefaultPlanRules seeds the default plan when it does not exist yet
	DefaultPlanRules []string `mapstructure:"default_plan_rules"`
}

// ServiceConfig describes an upstream HTTP service
type ServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	TokenURL string `mapstructure:"token_url"`
	Username string
	Password string
}

type HTTPClientConfig struct {
	RetryMax          int     `mapstructure:"retry_max"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional and only meant for local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/finance")

	v.SetEnvPrefix("FINANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("deployment.mode", d.Deployment.Mode)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("finance.plugins", d.Finance.Plugins)
	v.SetDefault("finance.default_plan", d.Finance.DefaultPlan)
	v.SetDefault("finance.default_time_unit", d.Finance.DefaultTimeUnit)
	v.SetDefault("finance.billing_interval", d.Finance.BillingInterval)
	v.SetDefault("finance.credits_deduction_interval", d.Finance.CreditsDeductionInterval)
	v.SetDefault("finance.invoice_generation_interval", d.Finance.InvoiceGenerationInterval)
	v.SetDefault("finance.stop_service_interval", d.Finance.StopServiceInterval)
	v.SetDefault("postgres.connect_retries", d.Postgres.ConnectRetries)
	v.SetDefault("postgres.auto_migrate", d.Postgres.AutoMigrate)
	v.SetDefault("postgres.max_open_conns", d.Postgres.MaxOpenConns)
	v.SetDefault("postgres.max_idle_conns", d.Postgres.MaxIdleConns)
	v.SetDefault("postgres.conn_max_lifetime_minutes", d.Postgres.ConnMaxLifetimeMinutes)
	v.SetDefault("http_client.retry_max", d.HTTPClient.RetryMax)
	v.SetDefault("http_client.requests_per_second", d.HTTPClient.RequestsPerSecond)
	v.SetDefault("http_client.burst", d.HTTPClient.Burst)
	v.SetDefault("accounting.timeout", 30*time.Second)
	v.SetDefault("ras.timeout", 30*time.Second)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, p := range c.Finance.Plugins {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Postgres: PostgresConfig{
			Host:                   "localhost",
			Port:                   5432,
			User:                   "finance",
			DBName:                 "finance",
			SSLMode:                "disable",
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
			ConnectRetries:         5,
			AutoMigrate:            true,
		},
		Finance: FinanceConfig{
			Plugins:                   []types.PluginKind{types.PluginKindPrepaid, types.PluginKindPostpaid},
			DefaultPlan:               "default",
			DefaultTimeUnit:           time.Hour,
			BillingInterval:           time.Hour,
			CreditsDeductionInterval:  time.Minute,
			InvoiceGenerationInterval: time.Minute,
			StopServiceInterval:       time.Minute,
		},
		HTTPClient: HTTPClientConfig{
			RetryMax:          2,
			RequestsPerSecond: 20,
			Burst:             5,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     30 * time.Minute,
		},
	}
}

// GetDSN builds the lib/pq connection string
func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// RunnerInterval returns how often the payment runner of a plugin kind cycles
func (c FinanceConfig) RunnerInterval(kind types.PluginKind) time.Duration {
	if kind == types.PluginKindPostpaid {
		return c.InvoiceGenerationInterval
	}
	return c.CreditsDeductionInterval
}

// PaymentManagerFor returns the configured payment manager name for a plugin
// kind, defaulting to the manager named after the kind
func (c FinanceConfig) PaymentManagerFor(kind types.PluginKind) string {
	if name, ok := c.PaymentManagers[string(kind)]; ok && name != "" {
		return name
	}
	return string(kind)
}
