// Package rewards serves the loyalty read model.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
)

// Service reads loyalty balances and history.
type Service struct {
	store  repo.Store
	ledger *loyalty.Ledger
}

// New creates a Service.
func New(store repo.Store, ledger *loyalty.Ledger) *Service {
	return &Service{store: store, ledger: ledger}
}

// Summary returns the user's balance, tier and progress. A first lookup
// creates and persists an empty account.
func (s *Service) Summary(ctx context.Context, userID string) (loyalty.Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return loyalty.Summary{}, fmt.Errorf("loyalty summary: %w: user id is required", apperr.ErrValidation)
	}
	var acct *loyalty.Account
	err := s.store.WithinTx(ctx, func(tx repo.Tx) error {
		var err error
		acct, err = repo.AccountFor(ctx, tx, s.ledger, userID)
		return err
	})
	if err != nil {
		return loyalty.Summary{}, err
	}
	return loyalty.Summarize(*acct), nil
}

// Transactions lists the user's ledger rows, newest first. A user without
// an account has no rows.
func (s *Service) Transactions(ctx context.Context, userID string) ([]loyalty.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("loyalty transactions: %w: user id is required", apperr.ErrValidation)
	}
	var rows []loyalty.Transaction
	err := s.store.WithinTx(ctx, func(tx repo.Tx) error {
		acct, err := tx.Loyalty().FindAccount(ctx, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		rows, err = tx.Loyalty().Transactions(ctx, acct.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []loyalty.Transaction{}
	}
	return rows, nil
}
