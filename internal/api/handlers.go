package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/gateway"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/service/checkout"
	"github.com/wondertwin-ai/loyaltypay/pkg/server"
)

// --- Response shapes ---

type checkoutResponse struct {
	PendingCheckoutID string `json:"pendingCheckoutId,omitempty"`
	ClientSecret      string `json:"clientSecret,omitempty"`
	PublishableKey    string `json:"publishableKey,omitempty"`
	OrderID           string `json:"orderId,omitempty"`
	TotalAmount       string `json:"totalAmount"`
}

type orderItemView struct {
	CatalogItemID string `json:"catalogItemId"`
	Name          string `json:"name,omitempty"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unitPrice"`
	Redeemed      bool   `json:"redeemed,omitempty"`
}

type orderView struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Status      order.Status    `json:"status"`
	TotalAmount string          `json:"totalAmount"`
	Items       []orderItemView `json:"items"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func newOrderView(o *order.Order) orderView {
	items := make([]orderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemView{
			CatalogItemID: it.CatalogItemID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice.StringFixed(2),
			Redeemed:      it.UnitPrice.IsZero(),
		})
	}
	return orderView{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount.StringFixed(2),
		Items:       items,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

type paymentView struct {
	PaymentID    string         `json:"paymentId"`
	OrderID      string         `json:"orderId"`
	Amount       string         `json:"amount"`
	Status       payment.Status `json:"status"`
	ClientSecret string         `json:"clientSecret,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func newPaymentView(p *payment.Payment) paymentView {
	return paymentView{
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		Amount:       p.Amount.StringFixed(2),
		Status:       p.Status,
		ClientSecret: p.ClientSecret,
		UpdatedAt:    p.UpdatedAt,
	}
}

type transactionView struct {
	ID          string                  `json:"id"`
	Points      int64                   `json:"points"`
	Type        loyalty.TransactionType `json:"type"`
	Description string                  `json:"description"`
	OrderID     string                  `json:"orderId,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// --- Checkout ---

// Checkout handles POST /v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := resolveUser(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	req.UserID = userID

	res, err := h.svc.Checkout.Initiate(r.Context(), req)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	server.JSON(w, http.StatusCreated, checkoutResponse{
		PendingCheckoutID: res.PendingCheckoutID,
		ClientSecret:      res.ClientSecret,
		PublishableKey:    res.PublishableKey,
		OrderID:           res.OrderID,
		TotalAmount:       res.TotalAmount.StringFixed(2),
	})
}

// --- Gateway webhook ---

// GatewayWebhook handles POST /v1/webhooks/gateway. The body is passed to
// the processor byte-for-byte because the signature covers it exactly.
// Bodies over the size limit are acknowledged unprocessed so the gateway
// stops redelivering them.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.log.Warn("ignoring oversized webhook delivery", "limit_bytes", tooLarge.Limit)
		server.JSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err != nil {
		writeError(w, fmt.Errorf("%w: read webhook body: %v", apperr.ErrValidation, err))
		return
	}
	if err := h.svc.Settlement.HandleWebhook(r.Context(), payload, r.Header.Get(gateway.SignatureHeader)); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	server.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

// --- Orders ---

// GetOrder handles GET /v1/orders/{orderId}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownedOrder(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	server.JSON(w, http.StatusOK, newOrderView(o))
}

// UpdateOrderStatus handles PATCH /v1/orders/{orderId}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	next, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.svc.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), next); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedOrder loads the path's order and, when authenticated, checks that it
// belongs to the caller.
func (h *Handler) ownedOrder(r *http.Request) (*order.Order, error) {
	o, err := h.svc.Orders.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		return nil, err
	}
	if _, err := resolveUser(r.Context(), o.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

// --- Direct payments ---

// CreatePayment handles POST /v1/orders/{orderId}/payments. It answers 201
// for a new payment and 200 when the order's active payment is returned.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownedOrder(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	p, created, err := h.svc.Payments.CreatePayment(r.Context(), o.ID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	server.JSON(w, status, newPaymentView(p))
}

// ConfirmPayment handles POST /v1/payments/{paymentId}/confirm. With
// authentication on, only the owner of the payment's order may confirm it.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	next, err := payment.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	paymentID := chi.URLParam(r, "paymentId")
	if err := h.checkPaymentOwner(r, paymentID); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	p, err := h.svc.Payments.Confirm(r.Context(), paymentID, next)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	server.JSON(w, http.StatusOK, newPaymentView(p))
}

// checkPaymentOwner resolves the payment's order and checks it belongs to the
// authenticated buyer. It does nothing when authentication is off.
func (h *Handler) checkPaymentOwner(r *http.Request, paymentID string) error {
	if _, ok := BuyerFrom(r.Context()); !ok {
		return nil
	}
	p, err := h.svc.Payments.Get(r.Context(), paymentID)
	if err != nil {
		return err
	}
	o, err := h.svc.Orders.Get(r.Context(), p.OrderID)
	if err != nil {
		return err
	}
	_, err = resolveUser(r.Context(), o.UserID)
	return err
}

// --- Loyalty ---

// LoyaltySummary handles GET /v1/loyalty/{userId}.
func (h *Handler) LoyaltySummary(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	sum, err := h.svc.Rewards.Summary(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	server.JSON(w, http.StatusOK, sum)
}

// LoyaltyTransactions handles GET /v1/loyalty/{userId}/transactions.
func (h *Handler) LoyaltyTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.svc.Rewards.Transactions(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	out := make([]transactionView, 0, len(rows))
	for _, t := range rows {
		out = append(out, transactionView{
			ID:          t.ID,
			Points:      t.Points,
			Type:        t.Type,
			Description: t.Description,
			OrderID:     t.OrderID,
			CreatedAt:   t.CreatedAt,
		})
	}
	server.JSON(w, http.StatusOK, map[string]any{"data": out})
}
