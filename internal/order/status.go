package order

import (
	"fmt"
	"strings"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses.
const (
	StatusPending       Status = "pending"
	StatusInPreparation Status = "in_preparation"
	StatusReady         Status = "ready"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// transitions is the full table of legal edges. Anything not listed,
// including self-transitions, is illegal.
var transitions = map[Status][]Status{
	StatusPending:       {StatusInPreparation, StatusCancelled},
	StatusInPreparation: {StatusReady},
	StatusReady:         {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInPreparation, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus parses a status name. Both "in_preparation" and
// "InPreparation" spellings are accepted.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "inpreparation" {
		norm = string(StatusInPreparation)
	}
	st := Status(norm)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", apperr.ErrValidation, s)
	}
	return st, nil
}

// IllegalTransitionError identifies a rejected status change.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal order status transition %s -> %s", e.From, e.To)
}

// Unwrap lets errors.Is match apperr.ErrIllegalTransition.
func (e *IllegalTransitionError) Unwrap() error {
	return apperr.ErrIllegalTransition
}
