// loyaltypay serves the checkout, settlement and loyalty API.
//
// Usage:
//
//	loyaltypay [-config loyaltypay.yaml] [-port 8080] [-verbose] [-seed-file catalog.yaml]
//
// Secrets may also come from the environment: GATEWAY_SECRET_KEY,
// GATEWAY_WEBHOOK_SECRET, AUTH_JWT_SECRET and DATABASE_DSN. PORT overrides
// the configured port.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "loyaltypay: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("loyaltypay", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	port := fs.Int("port", 0, "listen port (overrides config)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	seedFile := fs.String("seed-file", "", "catalog YAML to load at startup")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println("loyaltypay", version)
		return nil
	}

	cfg, err := loadConfig(*configPath, *port, *verbose, *seedFile)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	a.server.Logger.Info("loyaltypay ready",
		"version", version,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"gateway", cfg.Gateway.Driver,
		"auth", cfg.Auth.JWTSecret != "",
		"notify_webhook", cfg.Notify.WebhookURL,
	)
	return a.server.Serve(ctx)
}
