// Package config loads the loyaltypay service configuration from a YAML file
// with environment overrides for secrets and deployment settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Gateway drivers.
const (
	GatewayStripe = "stripe"
	GatewayFake   = "fake"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Verbose         bool          `yaml:"verbose"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Admin mounts the /admin control plane.
	Admin bool `yaml:"admin"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// GatewayConfig configures the payment gateway.
type GatewayConfig struct {
	Driver         string `yaml:"driver"`
	SecretKey      string `yaml:"secret_key"`
	PublishableKey string `yaml:"publishable_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	BaseURL        string `yaml:"base_url"`
	MaxRetries     int64  `yaml:"max_retries"`
	// WebhookTolerance bounds the age of a signed webhook timestamp.
	WebhookTolerance time.Duration `yaml:"webhook_tolerance"`
}

// CheckoutConfig configures checkout pricing.
type CheckoutConfig struct {
	Currency  string `yaml:"currency"`
	AllowFree bool   `yaml:"allow_free"`
}

// EarnRatesConfig holds points earned per currency unit, per tier, as
// decimal strings.
type EarnRatesConfig struct {
	Bronze string `yaml:"bronze"`
	Silver string `yaml:"silver"`
	Gold   string `yaml:"gold"`
}

// LoyaltyConfig configures the ledger.
type LoyaltyConfig struct {
	EarnRates EarnRatesConfig `yaml:"earn_rates"`
}

// NotifyConfig configures the kitchen notification webhook. An empty URL
// logs notifications instead.
type NotifyConfig struct {
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	QueueSize     int           `yaml:"queue_size"`
}

// AuthConfig configures bearer-token authentication. An empty secret
// disables it.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Loyalty  LoyaltyConfig  `yaml:"loyalty"`
	Notify   NotifyConfig   `yaml:"notify"`
	Auth     AuthConfig     `yaml:"auth"`
	// SeedFile is a catalog YAML loaded at startup.
	SeedFile string `yaml:"seed_file"`
}

// Default returns the configuration used when no file is given: an
// in-memory store and the local fake gateway signing with a fixed secret.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			Admin:           true,
		},
		Store:   StoreConfig{Driver: StoreMemory},
		Gateway: GatewayConfig{
			Driver:           GatewayFake,
			WebhookSecret:    "whsec_local",
			MaxRetries:       2,
			WebhookTolerance: 5 * time.Minute,
		},
		Checkout: CheckoutConfig{
			Currency: "usd",
		},
		Loyalty: LoyaltyConfig{EarnRates: EarnRatesConfig{
			Bronze: "1",
			Silver: "1.25",
			Gold:   "1.5",
		}},
		Notify: NotifyConfig{
			MaxRetries: 3,
			RetryDelay: time.Second,
			QueueSize:  256,
		},
	}
}

// LoadFrom reads path over the defaults, then applies environment
// overrides. An empty path uses the defaults alone; a path that does not
// exist is an error.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	for name, dst := range map[string]*string{
		"GATEWAY_SECRET_KEY":     &c.Gateway.SecretKey,
		"GATEWAY_WEBHOOK_SECRET": &c.Gateway.WebhookSecret,
		"AUTH_JWT_SECRET":        &c.Auth.JWTSecret,
		"DATABASE_DSN":           &c.Store.DSN,
	} {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	return nil
}

// EarnRates parses the configured earn rates.
func (c *Config) EarnRates() (loyalty.EarnRates, error) {
	parse := func(tier, s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, fmt.Errorf("loyalty.earn_rates.%s: %w", tier, err)
		}
		return d, nil
	}
	var (
		rates loyalty.EarnRates
		err   error
	)
	if rates.Bronze, err = parse("bronze", c.Loyalty.EarnRates.Bronze); err != nil {
		return rates, err
	}
	if rates.Silver, err = parse("silver", c.Loyalty.EarnRates.Silver); err != nil {
		return rates, err
	}
	if rates.Gold, err = parse("gold", c.Loyalty.EarnRates.Gold); err != nil {
		return rates, err
	}
	if err := rates.Validate(); err != nil {
		return rates, fmt.Errorf("loyalty.earn_rates: %w", err)
	}
	return rates, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be %q or %q", c.Store.Driver, StoreMemory, StoreSQLite))
	}

	switch c.Gateway.Driver {
	case GatewayFake:
	case GatewayStripe:
		if c.Gateway.SecretKey == "" {
			errs = append(errs, errors.New("gateway.secret_key is required for the stripe driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.driver %q must be %q or %q", c.Gateway.Driver, GatewayStripe, GatewayFake))
	}
	if c.Gateway.WebhookSecret == "" {
		errs = append(errs, errors.New("gateway.webhook_secret is required"))
	}
	if c.Gateway.WebhookTolerance < 0 {
		errs = append(errs, errors.New("gateway.webhook_tolerance must not be negative"))
	}

	if len(strings.TrimSpace(c.Checkout.Currency)) != 3 {
		errs = append(errs, fmt.Errorf("checkout.currency %q must be a three-letter code", c.Checkout.Currency))
	}
	if _, err := c.EarnRates(); err != nil {
		errs = append(errs, err)
	}
	if c.Notify.QueueSize < 0 || c.Notify.MaxRetries < 0 {
		errs = append(errs, errors.New("notify.queue_size and notify.max_retries must not be negative"))
	}
	return errors.Join(errs...)
}
