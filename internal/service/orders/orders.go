// Package orders reads orders and drives their status through the lifecycle.
package orders

import (
	"context"
	"log/slog"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/notify"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	"github.com/wondertwin-ai/loyaltypay/internal/service"
)

// Service manages order status.
type Service struct {
	store repo.Store
	sink  notify.Sink
	clock service.Clock
	log   *slog.Logger
}

// New creates a Service. sink may be nil.
func New(store repo.Store, sink notify.Sink, clock service.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store: store,
		sink:  sink,
		clock: service.OrSystem(clock),
		log:   logger.With("component", "orders"),
	}
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, orderID string) (*order.Order, error) {
	var o *order.Order
	err := s.store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, orderID)
		return service.NotFound(err, apperr.ErrOrderNotFound, orderID)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus applies one lifecycle transition. After it commits, an
// order.status_changed notification is sent on a best-effort basis.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error) {
	var (
		o     *order.Order
		prior order.Status
	)
	now := s.clock.Now()
	err := s.store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, orderID)
		if err != nil {
			return service.NotFound(err, apperr.ErrOrderNotFound, orderID)
		}
		prior, err = o.Transition(next, now)
		if err != nil {
			return err
		}
		return tx.Orders().UpdateStatus(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status changed", "order_id", o.ID, "from", prior, "to", o.Status)
	n := notify.New(notify.TypeOrderStatusChanged, o.ID, now)
	n.UserID = o.UserID
	n.Status = string(o.Status)
	n.PriorStatus = string(prior)
	notify.Send(ctx, s.sink, s.log, n)
	return o, nil
}
