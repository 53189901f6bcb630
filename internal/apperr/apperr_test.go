package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "empty_cart", err: ErrEmptyCart, want: "empty_cart"},
		{name: "zero_amount_wrapped", err: fmt.Errorf("checkout: %w", ErrZeroAmount), want: "zero_amount"},
		{name: "item_not_found", err: ErrItemNotFound, want: "item_not_found"},
		{name: "illegal_transition", err: ErrIllegalTransition, want: "illegal_transition"},
		{name: "insufficient_points", err: ErrInsufficientPoints, want: "insufficient_points"},
		{name: "gateway", err: fmt.Errorf("create intent: %w", ErrGateway), want: "gateway_error"},
		{name: "signature", err: ErrInvalidSignature, want: "invalid_signature"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "unknown", err: errors.New("boom"), want: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Kind(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "validation", err: ErrEmptyCart, want: http.StatusBadRequest},
		{name: "not_found", err: ErrOrderNotFound, want: http.StatusNotFound},
		{name: "conflict", err: ErrOrderNotPending, want: http.StatusConflict},
		{name: "gateway", err: ErrGateway, want: http.StatusBadGateway},
		{name: "signature", err: ErrInvalidSignature, want: http.StatusBadRequest},
		{name: "unauthorized", err: ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
