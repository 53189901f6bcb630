// Package server provides the base HTTP server, middleware chain, and
// response helpers for the loyaltypay API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Config holds listener settings.
type Config struct {
	Name            string
	Port            int
	Verbose         bool
	ShutdownTimeout time.Duration
}

// NewLogger returns the JSON logger used by every component: info level, or
// debug when verbose.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Server wraps a chi router with the common middleware and manages its
// lifecycle.
type Server struct {
	Config *Config
	Router *chi.Mux
	Logger *slog.Logger
	mw     *Middleware

	mu       sync.Mutex
	shutdown []func(context.Context) error
}

// New creates a Server. A nil logger gets NewLogger(cfg.Verbose).
func New(cfg *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = NewLogger(cfg.Verbose)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	r := chi.NewRouter()
	mw := NewMiddleware(cfg.Verbose, logger)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS)
	r.Use(mw.RequestLog)

	return &Server{
		Config: cfg,
		Router: r,
		Logger: logger,
		mw:     mw,
	}
}

// Middleware returns the middleware instance, whose request log the admin
// plane exposes.
func (s *Server) Middleware() *Middleware {
	return s.mw
}

// OnShutdown registers fn to run after the listener has drained. Hooks run in
// reverse registration order.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = append(s.shutdown, fn)
}

// Serve listens on the configured port and blocks until ctx is done or a
// SIGINT/SIGTERM arrives, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Config.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("starting server", "name", s.Config.Name, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.Logger.Error("server error", "err", err)
			return err
		}
	case <-ctx.Done():
	}
	s.Logger.Info("shutting down server", "name", s.Config.Name)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
	defer cancel()
	errs := []error{srv.Shutdown(shutdownCtx)}

	s.mu.Lock()
	hooks := append([]func(context.Context) error(nil), s.shutdown...)
	s.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		errs = append(errs, hooks[i](shutdownCtx))
	}
	return errors.Join(errs...)
}

// ServeHTTP implements http.Handler so Server can be used directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// ErrorBody is the error envelope every endpoint returns.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable kind and a human-readable message.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}})
}
