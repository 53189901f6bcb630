// Package service holds what the checkout, settlement, payment, order and
// rewards services share. Each service lives in its own subpackage.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/wondertwin-ai/loyaltypay/internal/repo"
)

// Clock is the services' time source. *store.Clock satisfies it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// OrSystem returns c, or SystemClock when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

// NotFound translates repo.ErrNotFound into the domain sentinel notFound,
// naming the missing id. Other errors pass through unchanged.
func NotFound(err error, notFound error, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return err
}
