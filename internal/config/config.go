package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/validator"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the auction engine
type Config struct {
	HTTPPort string `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"`

	MinBidIncrement        decimal.Decimal `mapstructure:"-"`
	ExtensionTriggerWindow time.Duration   `mapstructure:"extension_trigger_window"`
	ExtensionAmount        time.Duration   `mapstructure:"extension_amount"`
	MaxExtensions          int             `mapstructure:"max_extensions"`
	MaxBidAmount           decimal.Decimal `mapstructure:"-"`
	MaxBidMultiplier       decimal.Decimal `mapstructure:"-"`

	QueueSize        int           `mapstructure:"queue_size"`
	QueueWait        time.Duration `mapstructure:"queue_wait"`
	QueueIdleTimeout time.Duration `mapstructure:"queue_idle_timeout"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`

	DatabaseURL  string `mapstructure:"database_url"`
	NATSURL      string `mapstructure:"nats_url"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	SeedDemo     bool   `mapstructure:"seed_demo"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("min_bid_increment", "1")
	v.SetDefault("extension_trigger_window", 5*time.Minute)
	v.SetDefault("extension_amount", 5*time.Minute)
	v.SetDefault("max_extensions", 10)
	v.SetDefault("max_bid_amount", "1000000000000000")
	v.SetDefault("max_bid_multiplier", "10")
	v.SetDefault("queue_size", 1024)
	v.SetDefault("queue_wait", 2*time.Second)
	v.SetDefault("queue_idle_timeout", time.Minute)
	v.SetDefault("subscriber_buffer", 64)
	v.SetDefault("database_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("seed_demo", false)
}

// Load reads defaults, the optional file named by AUCTION_CONFIG and AUCTION_* environment overrides
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// PORT is what most platforms inject
	_ = v.BindEnv("http_port", "AUCTION_HTTP_PORT", "PORT")

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var err error
	if cfg.MinBidIncrement, err = decimalKey(v, "min_bid_increment"); err != nil {
		return Config{}, err
	}
	if cfg.MaxBidAmount, err = decimalKey(v, "max_bid_amount"); err != nil {
		return Config{}, err
	}
	if cfg.MaxBidMultiplier, err = decimalKey(v, "max_bid_multiplier"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

// Rules are the fraud-guard bounds the validator applies to every bid
func (c Config) Rules() validator.Rules {
	return validator.Rules{
		MaxBidAmount:     c.MaxBidAmount,
		MaxBidMultiplier: c.MaxBidMultiplier,
	}
}

// Validate rejects settings the engine cannot run with
func (c Config) Validate() error {
	var errs []error
	if !c.MinBidIncrement.IsPositive() {
		errs = append(errs, errors.New("min_bid_increment must be positive"))
	}
	if c.ExtensionTriggerWindow <= 0 {
		errs = append(errs, errors.New("extension_trigger_window must be positive"))
	}
	if c.ExtensionAmount <= 0 {
		errs = append(errs, errors.New("extension_amount must be positive"))
	}
	if c.MaxExtensions < 0 {
		errs = append(errs, errors.New("max_extensions must not be negative"))
	}
	if !c.MaxBidAmount.IsPositive() {
		errs = append(errs, errors.New("max_bid_amount must be positive"))
	} else if c.MaxBidAmount.GreaterThan(validator.MaxStorableAmount) {
		errs = append(errs, fmt.Errorf("max_bid_amount must not exceed %s", validator.MaxStorableAmount))
	}
	if !c.MaxBidMultiplier.IsPositive() {
		errs = append(errs, errors.New("max_bid_multiplier must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("queue_size must be positive"))
	}
	if c.QueueWait <= 0 {
		errs = append(errs, errors.New("queue_wait must be positive"))
	}
	if c.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("subscriber_buffer must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
