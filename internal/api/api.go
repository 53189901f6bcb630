// Package api implements the loyaltypay HTTP API: checkout, gateway webhooks,
// direct payments, order status and loyalty reads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/service/checkout"
	"github.com/wondertwin-ai/loyaltypay/pkg/server"
)

// Body size limits.
const (
	maxJSONBody    = 1 << 20
	maxWebhookBody = 1 << 20
)

// CheckoutService starts checkouts.
type CheckoutService interface {
	Initiate(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// WebhookProcessor settles gateway webhook deliveries.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

// PaymentService creates and confirms direct payments.
type PaymentService interface {
	Get(ctx context.Context, paymentID string) (*payment.Payment, error)
	CreatePayment(ctx context.Context, orderID string) (*payment.Payment, bool, error)
	Confirm(ctx context.Context, paymentID string, next payment.Status) (*payment.Payment, error)
}

// OrderService reads orders and changes their status.
type OrderService interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error)
}

// RewardsService reads loyalty balances and history.
type RewardsService interface {
	Summary(ctx context.Context, userID string) (loyalty.Summary, error)
	Transactions(ctx context.Context, userID string) ([]loyalty.Transaction, error)
}

// Services are the Handler's collaborators.
type Services struct {
	Checkout   CheckoutService
	Settlement WebhookProcessor
	Payments   PaymentService
	Orders     OrderService
	Rewards    RewardsService
}

// Handler holds all API handler state.
type Handler struct {
	svc  Services
	auth *Authenticator
	log  *slog.Logger
}

// NewHandler creates a Handler. auth may be nil to disable authentication.
func NewHandler(svc Services, auth *Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, auth: auth, log: logger.With("component", "api")}
}

// Routes mounts the API routes. The gateway webhook authenticates by
// signature; every other route goes through the bearer-token middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/gateway", h.GatewayWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Post("/checkout", h.Checkout)

			r.Get("/orders/{orderId}", h.GetOrder)
			r.Patch("/orders/{orderId}/status", h.UpdateOrderStatus)
			r.Post("/orders/{orderId}/payments", h.CreatePayment)
			r.Post("/payments/{paymentId}/confirm", h.ConfirmPayment)

			r.Get("/loyalty/{userId}", h.LoyaltySummary)
			r.Get("/loyalty/{userId}/transactions", h.LoyaltyTransactions)
		})
	})
}

// writeError maps err onto the error envelope and its status code.
func writeError(w http.ResponseWriter, err error) {
	server.Error(w, apperr.HTTPStatus(err), apperr.Kind(err), err.Error())
}

// writeFailure is writeError that logs server-side failures and hides their
// detail from the caller.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		server.Error(w, status, apperr.Kind(err), http.StatusText(status))
		return
	}
	writeError(w, err)
}

// decodeJSON strictly decodes one JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", apperr.ErrValidation)
		}
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", apperr.ErrValidation)
	}
	return nil
}
