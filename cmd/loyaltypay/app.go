package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wondertwin-ai/loyaltypay/internal/api"
	"github.com/wondertwin-ai/loyaltypay/internal/catalog"
	"github.com/wondertwin-ai/loyaltypay/internal/config"
	"github.com/wondertwin-ai/loyaltypay/internal/gateway"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/notify"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	"github.com/wondertwin-ai/loyaltypay/internal/repo/gormstore"
	"github.com/wondertwin-ai/loyaltypay/internal/repo/memstore"
	"github.com/wondertwin-ai/loyaltypay/internal/service/checkout"
	"github.com/wondertwin-ai/loyaltypay/internal/service/directpay"
	"github.com/wondertwin-ai/loyaltypay/internal/service/orders"
	"github.com/wondertwin-ai/loyaltypay/internal/service/rewards"
	"github.com/wondertwin-ai/loyaltypay/internal/service/settlement"
	"github.com/wondertwin-ai/loyaltypay/pkg/admin"
	"github.com/wondertwin-ai/loyaltypay/pkg/server"
	"github.com/wondertwin-ai/loyaltypay/pkg/store"
)

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(path string, port int, verbose bool, seedFile string) (*config.Config, error) {
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if verbose {
		cfg.Server.Verbose = true
	}
	if seedFile != "" {
		cfg.SeedFile = seedFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app is the assembled service.
type app struct {
	server  *server.Server
	store   repo.Store
	catalog *catalog.Memory
	gateway gateway.Gateway
	webhook *notify.WebhookSink
	clock   *store.Clock
}

// newApp wires every component from cfg. A nil logger gets
// server.NewLogger.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = server.NewLogger(cfg.Server.Verbose)
	}
	rates, err := cfg.EarnRates()
	if err != nil {
		return nil, err
	}

	srv := server.New(&server.Config{
		Name:            "loyaltypay",
		Port:            cfg.Server.Port,
		Verbose:         cfg.Server.Verbose,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	a := &app{server: srv, clock: store.NewClock()}

	// Persistence
	var state admin.StateStore
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		db, err := gormstore.Open(cfg.Store.DSN, cfg.Server.Verbose)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		srv.OnShutdown(func(context.Context) error { return db.Close() })
		a.store = db
	default:
		mem := memstore.New()
		a.store = mem
		state = mem
	}

	// Catalog
	a.catalog = catalog.NewMemory()
	if cfg.SeedFile != "" {
		if err := a.catalog.LoadFile(cfg.SeedFile); err != nil {
			return nil, err
		}
		logger.Info("loaded catalog seed",
			"file", cfg.SeedFile,
			"items", len(a.catalog.ListItems()),
			"offers", len(a.catalog.ListOffers()),
		)
	}

	// Gateway
	switch cfg.Gateway.Driver {
	case config.GatewayStripe:
		gw, err := gateway.NewStripe(gateway.StripeConfig{
			SecretKey:  cfg.Gateway.SecretKey,
			BaseURL:    cfg.Gateway.BaseURL,
			MaxRetries: cfg.Gateway.MaxRetries,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		a.gateway = gw
	default:
		a.gateway = gateway.NewFake()
	}
	verifier := gateway.NewVerifier(cfg.Gateway.WebhookSecret, cfg.Gateway.WebhookTolerance)

	// Notifications
	sink := notify.Multi{notify.LogSink{Logger: logger.With("component", "notify")}}
	if cfg.Notify.WebhookURL != "" {
		a.webhook = notify.NewWebhookSink(notify.WebhookConfig{
			URL:        cfg.Notify.WebhookURL,
			Secret:     cfg.Notify.WebhookSecret,
			Signer:     gateway.NewSigner(),
			Logger:     logger,
			MaxRetries: cfg.Notify.MaxRetries,
			RetryDelay: cfg.Notify.RetryDelay,
			QueueSize:  cfg.Notify.QueueSize,
		})
		sink = append(sink, a.webhook)
		srv.OnShutdown(a.webhook.Close)
	}

	ledger := loyalty.NewLedger(rates, loyalty.WithClock(a.clock.Now))

	svc := api.Services{
		Checkout: checkout.NewInitiator(checkout.Deps{
			Store:   a.store,
			Catalog: a.catalog,
			Gateway: a.gateway,
			Ledger:  ledger,
			Sink:    sink,
			Clock:   a.clock,
			Logger:  logger,
		}, checkout.Config{
			Currency:       cfg.Checkout.Currency,
			PublishableKey: cfg.Gateway.PublishableKey,
			AllowFree:      cfg.Checkout.AllowFree,
		}),
		Settlement: settlement.NewProcessor(settlement.Deps{
			Store:    a.store,
			Catalog:  a.catalog,
			Ledger:   ledger,
			Verifier: verifier,
			Sink:     sink,
			Clock:    a.clock,
			Logger:   logger,
		}),
		Payments: directpay.NewHandler(directpay.Deps{
			Store:    a.store,
			Gateway:  a.gateway,
			Ledger:   ledger,
			Clock:    a.clock,
			Logger:   logger,
			Currency: cfg.Checkout.Currency,
		}),
		Orders:  orders.New(a.store, sink, a.clock, logger),
		Rewards: rewards.New(a.store, ledger),
	}
	api.NewHandler(svc, api.NewAuthenticator(cfg.Auth.JWTSecret), logger).Routes(srv.Router)

	if cfg.Server.Admin {
		adm := admin.NewHandler(state, srv.Middleware(), a.clock)
		if a.webhook != nil {
			adm.SetFlusher(a.webhook)
		}
		adm.Routes(srv.Router)
	}
	return a, nil
}
