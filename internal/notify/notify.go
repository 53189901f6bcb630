// Package notify delivers order notifications to downstream consumers such
// as the kitchen display. Delivery is best effort: a failed notification
// never undoes the business operation that produced it.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Notification types.
const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

// Notification is one order event.
type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id,omitempty"`
	Status      string    `json:"status"`
	PriorStatus string    `json:"prior_status,omitempty"`
	TotalAmount string    `json:"total_amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// New stamps a notification with an id and creation time.
func New(typ, orderID string, now time.Time) Notification {
	return Notification{
		ID:        "ntf_" + uuid.NewString(),
		Type:      typ,
		OrderID:   orderID,
		CreatedAt: now,
	}
}

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Send delivers n to sink and logs any failure instead of returning it.
// A nil sink is a no-op.
func Send(ctx context.Context, sink Sink, logger *slog.Logger, n Notification) {
	if sink == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := sink.Notify(ctx, n); err != nil {
		logger.Warn("notification not delivered",
			"notification_id", n.ID,
			"type", n.Type,
			"order_id", n.OrderID,
			"err", err,
		)
	}
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements Sink.
func (s LogSink) Notify(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("order notification",
		"notification_id", n.ID,
		"type", n.Type,
		"order_id", n.OrderID,
		"status", n.Status,
		"prior_status", n.PriorStatus,
	)
	return nil
}

// Multi fans a notification out to every sink concurrently. It returns the
// first error, after all sinks have finished.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range m {
		g.Go(func() error {
			return s.Notify(gctx, n)
		})
	}
	return g.Wait()
}

// Recorder keeps every notification in memory. Tests use it as a sink.
type Recorder struct {
	ch chan Notification
}

// NewRecorder creates a Recorder buffering up to size notifications.
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Notification, size)}
}

// Notify implements Sink. It never blocks; overflow is dropped.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	select {
	case r.ch <- n:
	default:
	}
	return nil
}

// Drain returns the notifications recorded so far.
func (r *Recorder) Drain() []Notification {
	var out []Notification
	for {
		select {
		case n := <-r.ch:
			out = append(out, n)
		default:
			return out
		}
	}
}
