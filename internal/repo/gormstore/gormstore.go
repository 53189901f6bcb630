// Package gormstore is the SQL repository, built on gorm. Each unit of work is
// a database transaction; the processed flag on pending checkouts is claimed
// with a conditional update so only one settlement can win.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/pending"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
)

// Store implements repo.Store over a gorm database.
type Store struct {
	db *gorm.DB
}

var _ repo.Store = (*Store)(nil)

// Open connects to the SQLite database at dsn and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(dsn string, verbose bool) (*Store, error) {
	level := logger.Silent
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from being private to each pooled connection.
	sqlDB.SetMaxOpenConns(1)

	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&checkoutModel{},
		&orderModel{},
		&orderItemModel{},
		&paymentModel{},
		&accountModel{},
		&transactionModel{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	slog.Debug("database schema migrated")
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(gormTx{db: db})
	})
}

type gormTx struct{ db *gorm.DB }

func (tx gormTx) PendingCheckouts() repo.PendingCheckouts { return checkoutRepo(tx) }
func (tx gormTx) Orders() repo.Orders                     { return orderRepo(tx) }
func (tx gormTx) Payments() repo.Payments                 { return paymentRepo(tx) }
func (tx gormTx) Loyalty() repo.Loyalty                   { return loyaltyRepo(tx) }

// notFound maps gorm's missing-row error onto repo.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	return err
}

type checkoutRepo struct{ db *gorm.DB }

func (r checkoutRepo) Create(ctx context.Context, c *pending.Checkout) error {
	m := checkoutToModel(c)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create pending checkout: %w", err)
	}
	return nil
}

func (r checkoutRepo) Get(ctx context.Context, id string) (*pending.Checkout, error) {
	var m checkoutModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toDomain(), nil
}

func (r checkoutRepo) FindUnprocessed(ctx context.Context, intentID string) (*pending.Checkout, error) {
	var m checkoutModel
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ? AND is_processed = ?", intentID, false).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return m.toDomain(), nil
}

func (r checkoutRepo) MarkProcessed(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&checkoutModel{}).
		Where("id = ? AND is_processed = ?", id, false).
		Update("is_processed", true)
	if res.Error != nil {
		return fmt.Errorf("mark checkout processed: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&checkoutModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return repo.ErrNotFound
	}
	return repo.ErrAlreadyClaimed
}

type orderRepo struct{ db *gorm.DB }

func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	m := orderToModel(o)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	var m orderModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return m.toDomain(), nil
}

func (r orderRepo) UpdateStatus(ctx context.Context, o *order.Order) error {
	res := r.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ?", o.ID).
		Updates(map[string]any{"status": string(o.Status), "updated_at": o.UpdatedAt})
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type paymentRepo struct{ db *gorm.DB }

func (r paymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	m := paymentToModel(p)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r paymentRepo) Get(ctx context.Context, id string) (*payment.Payment, error) {
	var m paymentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toDomain(), nil
}

func (r paymentRepo) FindActiveForOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	var m paymentModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID,
			[]string{string(payment.StatusProcessing), string(payment.StatusSucceeded)}).
		Order("created_at").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return m.toDomain(), nil
}

func (r paymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	m := paymentToModel(p)
	res := r.db.WithContext(ctx).Model(&paymentModel{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"amount":            m.Amount,
			"status":            m.Status,
			"payment_intent_id": m.PaymentIntentID,
			"event_id":          m.EventID,
			"client_secret":     m.ClientSecret,
			"updated_at":        m.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type loyaltyRepo struct{ db *gorm.DB }

func (r loyaltyRepo) FindAccount(ctx context.Context, userID string) (*loyalty.Account, error) {
	var m accountModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toDomain(), nil
}

func (r loyaltyRepo) SaveAccount(ctx context.Context, a *loyalty.Account) error {
	m := accountToModel(a)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_points", "lifetime_points", "updated_at"}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("save loyalty account: %w", err)
	}
	return nil
}

func (r loyaltyRepo) AppendTransaction(ctx context.Context, t *loyalty.Transaction) error {
	m := transactionToModel(t)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append loyalty transaction: %w", err)
	}
	return nil
}

func (r loyaltyRepo) Transactions(ctx context.Context, accountID string) ([]loyalty.Transaction, error) {
	var rows []transactionModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list loyalty transactions: %w", err)
	}
	out := make([]loyalty.Transaction, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}
