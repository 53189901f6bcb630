// Package apperr defines the error taxonomy shared by the checkout, settlement,
// payment and loyalty services, and maps it onto transport status codes.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Validation errors. Nothing is persisted when these are returned.
var (
	ErrValidation = errors.New("invalid request")
	ErrEmptyCart  = errors.New("cart is empty")
	ErrZeroAmount = errors.New("checkout total must be greater than zero")
)

// Not-found errors.
var (
	ErrItemNotFound    = errors.New("catalog item not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrOfferNotFound   = errors.New("offer not found")
)

// State-conflict errors. The current state is left unchanged.
var (
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrInvalidStatus      = errors.New("invalid payment status")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrTierNotMet         = errors.New("loyalty tier requirement not met")
	ErrOfferInactive      = errors.New("offer is not active")
)

// Gateway, security and auth errors.
var (
	ErrGateway          = errors.New("payment gateway error")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
)

// Kind classifies err into a short machine-readable string used in API error payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrValidation):
		return "bad_request"

	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrPaymentNotFound):
		return "payment_not_found"
	case errors.Is(err, ErrOfferNotFound):
		return "offer_not_found"

	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrOrderNotPending):
		return "order_not_pending"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrTierNotMet):
		return "tier_not_met"
	case errors.Is(err, ErrOfferInactive):
		return "offer_inactive"

	case errors.Is(err, ErrGateway):
		return "gateway_error"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// kindToStatus maps error kinds to HTTP status codes.
var kindToStatus = map[string]int{
	"empty_cart":  http.StatusBadRequest,
	"zero_amount": http.StatusBadRequest,
	"bad_request": http.StatusBadRequest,

	"item_not_found":    http.StatusNotFound,
	"order_not_found":   http.StatusNotFound,
	"payment_not_found": http.StatusNotFound,
	"offer_not_found":   http.StatusNotFound,

	"illegal_transition":  http.StatusConflict,
	"order_not_pending":   http.StatusConflict,
	"already_processed":   http.StatusConflict,
	"invalid_status":      http.StatusBadRequest,
	"insufficient_points": http.StatusConflict,
	"tier_not_met":        http.StatusConflict,
	"offer_inactive":      http.StatusConflict,

	"gateway_error":     http.StatusBadGateway,
	"invalid_signature": http.StatusBadRequest,
	"unauthorized":      http.StatusUnauthorized,
	"forbidden":         http.StatusForbidden,

	"timeout":  http.StatusGatewayTimeout,
	"canceled": http.StatusRequestTimeout,
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
