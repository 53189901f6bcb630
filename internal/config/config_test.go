package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loyaltypay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Errorf("store driver = %q, want %q", cfg.Store.Driver, StoreMemory)
	}
	if cfg.Gateway.Driver != GatewayFake {
		t.Errorf("gateway driver = %q, want %q", cfg.Gateway.Driver, GatewayFake)
	}
	if cfg.Checkout.AllowFree {
		t.Error("free checkout should be off by default")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  verbose: true
store:
  driver: sqlite
  dsn: file:loyalty.db
gateway:
  driver: stripe
  secret_key: sk_test_123
  publishable_key: pk_test_123
  webhook_secret: whsec_abc
  base_url: http://localhost:12111
checkout:
  currency: eur
  allow_free: true
loyalty:
  earn_rates:
    bronze: "2"
    silver: "2.5"
    gold: "3"
notify:
  webhook_url: http://kitchen.local/hooks
  retry_delay: 250ms
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Server.Port != 9090 || !cfg.Server.Verbose {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Store.Driver != StoreSQLite || cfg.Store.DSN != "file:loyalty.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Gateway.SecretKey != "sk_test_123" || cfg.Gateway.BaseURL != "http://localhost:12111" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Checkout.Currency != "eur" || !cfg.Checkout.AllowFree {
		t.Errorf("checkout = %+v", cfg.Checkout)
	}
	if cfg.Notify.RetryDelay != 250*time.Millisecond {
		t.Errorf("notify retry delay = %v", cfg.Notify.RetryDelay)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Notify.QueueSize != 256 {
		t.Errorf("notify queue size = %d, want default 256", cfg.Notify.QueueSize)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want default", cfg.Server.ShutdownTimeout)
	}

	rates, err := cfg.EarnRates()
	if err != nil {
		t.Fatalf("EarnRates() error: %v", err)
	}
	if rates.Silver.String() != "2.5" {
		t.Errorf("silver rate = %s, want 2.5", rates.Silver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadFromEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom(\"\") error: %v", err)
	}
	if cfg.Loyalty.EarnRates.Gold != "1.5" {
		t.Errorf("gold rate = %q, want default", cfg.Loyalty.EarnRates.Gold)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not, a, map")
	_, err := LoadFrom(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                   "7000",
		"GATEWAY_SECRET_KEY":     "sk_env",
		"GATEWAY_WEBHOOK_SECRET": "whsec_env",
		"AUTH_JWT_SECRET":        "jwt_env",
		"DATABASE_DSN":           "file:env.db",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv() error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Gateway.SecretKey != "sk_env" || cfg.Gateway.WebhookSecret != "whsec_env" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Auth.JWTSecret != "jwt_env" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Store.DSN != "file:env.db" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
}

func TestApplyEnvBadPort(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "PORT" {
			return "eighty", true
		}
		return "", false
	})
	if err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestLoadFromReadsEnvironment(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "from-env")
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("jwt secret = %q, want from-env", cfg.Auth.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown store", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = StoreSQLite }, "store.dsn"},
		{"unknown gateway", func(c *Config) { c.Gateway.Driver = "paypal" }, "gateway.driver"},
		{"stripe without key", func(c *Config) { c.Gateway.Driver = GatewayStripe }, "gateway.secret_key"},
		{"no webhook secret", func(c *Config) { c.Gateway.WebhookSecret = "" }, "gateway.webhook_secret"},
		{"bad currency", func(c *Config) { c.Checkout.Currency = "dollars" }, "checkout.currency"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unparseable rate", func(c *Config) { c.Loyalty.EarnRates.Silver = "lots" }, "earn_rates.silver"},
		{"unordered rates", func(c *Config) { c.Loyalty.EarnRates.Gold = "0.5" }, "gold earn rate"},
		{"negative queue", func(c *Config) { c.Notify.QueueSize = -1 }, "notify.queue_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres"
	cfg.Gateway.Driver = "paypal"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "store.driver") || !strings.Contains(msg, "gateway.driver") {
		t.Errorf("expected both problems reported, got %q", msg)
	}
}
