// Package memstore is the in-memory repository. Units of work are serialized
// by a single mutex and stage their writes until commit, so a failed unit of
// work leaves no trace.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/pending"
	"github.com/wondertwin-ai/loyaltypay/internal/repo"
	pkgstore "github.com/wondertwin-ai/loyaltypay/pkg/store"
)

// MemoryStore holds all persisted state in memory.
type MemoryStore struct {
	mu sync.Mutex // held for the whole of each unit of work

	Checkouts    *pkgstore.Store[pending.Checkout]
	Orders       *pkgstore.Store[order.Order]
	Payments     *pkgstore.Store[payment.Payment]
	Accounts     *pkgstore.Store[loyalty.Account]
	Transactions *pkgstore.Store[loyalty.Transaction]
}

var _ repo.Store = (*MemoryStore)(nil)

// New creates an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		Checkouts:    pkgstore.New(cloneCheckout),
		Orders:       pkgstore.New(cloneOrder),
		Payments:     pkgstore.New[payment.Payment](nil),
		Accounts:     pkgstore.New[loyalty.Account](nil),
		Transactions: pkgstore.New[loyalty.Transaction](nil),
	}
}

func cloneOrder(o order.Order) order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return o
}

func cloneCheckout(c pending.Checkout) pending.Checkout {
	c.RedeemedItemIDs = append(pending.IDList(nil), c.RedeemedItemIDs...)
	c.OfferIDs = append(pending.IDList(nil), c.OfferIDs...)
	return c
}

// WithinTx runs fn with exclusive access to the store and commits its staged
// writes if fn returns nil.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:     s,
		checkouts: newStaged[pending.Checkout](),
		orders:    newStaged[order.Order](),
		payments:  newStaged[payment.Payment](),
		accounts:  newStaged[loyalty.Account](),
		txns:      newStaged[loyalty.Transaction](),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// staged buffers writes for one table in write order.
type staged[T any] struct {
	items map[string]T
	order []string
}

func newStaged[T any]() *staged[T] {
	return &staged[T]{items: make(map[string]T)}
}

func (st *staged[T]) set(id string, v T) {
	if _, ok := st.items[id]; !ok {
		st.order = append(st.order, id)
	}
	st.items[id] = v
}

func (st *staged[T]) flush(dst *pkgstore.Store[T]) {
	for _, id := range st.order {
		dst.Set(id, st.items[id])
	}
}

// lookup returns the staged value for id, falling back to the committed table.
func lookup[T any](st *staged[T], committed *pkgstore.Store[T], id string) (T, bool) {
	if v, ok := st.items[id]; ok {
		return v, true
	}
	return committed.Get(id)
}

// scan visits staged rows first, then committed rows not shadowed by a staged write.
func scan[T any](st *staged[T], committed *pkgstore.Store[T], match func(T) bool) []T {
	var out []T
	for _, id := range st.order {
		if v := st.items[id]; match(v) {
			out = append(out, v)
		}
	}
	out = append(out, committed.Filter(func(id string, v T) bool {
		_, shadowed := st.items[id]
		return !shadowed && match(v)
	})...)
	return out
}

type memTx struct {
	store     *MemoryStore
	checkouts *staged[pending.Checkout]
	orders    *staged[order.Order]
	payments  *staged[payment.Payment]
	accounts  *staged[loyalty.Account]
	txns      *staged[loyalty.Transaction]
}

func (tx *memTx) commit() {
	tx.checkouts.flush(tx.store.Checkouts)
	tx.orders.flush(tx.store.Orders)
	tx.payments.flush(tx.store.Payments)
	tx.accounts.flush(tx.store.Accounts)
	tx.txns.flush(tx.store.Transactions)
}

func (tx *memTx) PendingCheckouts() repo.PendingCheckouts { return checkoutRepo{tx} }
func (tx *memTx) Orders() repo.Orders                     { return orderRepo{tx} }
func (tx *memTx) Payments() repo.Payments                 { return paymentRepo{tx} }
func (tx *memTx) Loyalty() repo.Loyalty                   { return loyaltyRepo{tx} }

// stateSnapshot is the JSON-serializable state for the admin plane.
type stateSnapshot struct {
	Checkouts    map[string]pending.Checkout    `json:"pending_checkouts"`
	Orders       map[string]order.Order         `json:"orders"`
	Payments     map[string]payment.Payment     `json:"payments"`
	Accounts     map[string]loyalty.Account     `json:"loyalty_accounts"`
	Transactions map[string]loyalty.Transaction `json:"loyalty_transactions"`
}

// Snapshot returns the full state as a JSON-serializable value.
func (s *MemoryStore) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stateSnapshot{
		Checkouts:    s.Checkouts.Snapshot(),
		Orders:       s.Orders.Snapshot(),
		Payments:     s.Payments.Snapshot(),
		Accounts:     s.Accounts.Snapshot(),
		Transactions: s.Transactions.Snapshot(),
	}
}

// LoadState replaces the full state from a JSON body.
func (s *MemoryStore) LoadState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Checkouts != nil {
		s.Checkouts.LoadSnapshot(snap.Checkouts)
	}
	if snap.Orders != nil {
		s.Orders.LoadSnapshot(snap.Orders)
	}
	if snap.Payments != nil {
		s.Payments.LoadSnapshot(snap.Payments)
	}
	if snap.Accounts != nil {
		s.Accounts.LoadSnapshot(snap.Accounts)
	}
	if snap.Transactions != nil {
		s.Transactions.LoadSnapshot(snap.Transactions)
	}
	return nil
}

// Reset clears all state.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Checkouts.Reset()
	s.Orders.Reset()
	s.Payments.Reset()
	s.Accounts.Reset()
	s.Transactions.Reset()
}

type checkoutRepo struct{ tx *memTx }

func (r checkoutRepo) Create(_ context.Context, c *pending.Checkout) error {
	r.tx.checkouts.set(c.ID, cloneCheckout(*c))
	return nil
}

func (r checkoutRepo) Get(_ context.Context, id string) (*pending.Checkout, error) {
	c, ok := lookup(r.tx.checkouts, r.tx.store.Checkouts, id)
	if !ok {
		return nil, repo.ErrNotFound
	}
	c = cloneCheckout(c)
	return &c, nil
}

func (r checkoutRepo) FindUnprocessed(_ context.Context, intentID string) (*pending.Checkout, error) {
	rows := scan(r.tx.checkouts, r.tx.store.Checkouts, func(c pending.Checkout) bool {
		return c.PaymentIntentID == intentID && !c.IsProcessed
	})
	if len(rows) == 0 {
		return nil, repo.ErrNotFound
	}
	c := cloneCheckout(rows[0])
	return &c, nil
}

func (r checkoutRepo) MarkProcessed(_ context.Context, id string) error {
	c, ok := lookup(r.tx.checkouts, r.tx.store.Checkouts, id)
	if !ok {
		return repo.ErrNotFound
	}
	if c.IsProcessed {
		return repo.ErrAlreadyClaimed
	}
	c.IsProcessed = true
	r.tx.checkouts.set(id, cloneCheckout(c))
	return nil
}

type orderRepo struct{ tx *memTx }

func (r orderRepo) Create(_ context.Context, o *order.Order) error {
	r.tx.orders.set(o.ID, cloneOrder(*o))
	return nil
}

func (r orderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := lookup(r.tx.orders, r.tx.store.Orders, id)
	if !ok {
		return nil, repo.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, o *order.Order) error {
	cur, ok := lookup(r.tx.orders, r.tx.store.Orders, o.ID)
	if !ok {
		return repo.ErrNotFound
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	r.tx.orders.set(o.ID, cloneOrder(cur))
	return nil
}

type paymentRepo struct{ tx *memTx }

func (r paymentRepo) Create(_ context.Context, p *payment.Payment) error {
	r.tx.payments.set(p.ID, *p)
	return nil
}

func (r paymentRepo) Get(_ context.Context, id string) (*payment.Payment, error) {
	p, ok := lookup(r.tx.payments, r.tx.store.Payments, id)
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

func (r paymentRepo) FindActiveForOrder(_ context.Context, orderID string) (*payment.Payment, error) {
	rows := scan(r.tx.payments, r.tx.store.Payments, func(p payment.Payment) bool {
		return p.OrderID == orderID &&
			(p.Status == payment.StatusProcessing || p.Status == payment.StatusSucceeded)
	})
	if len(rows) == 0 {
		return nil, repo.ErrNotFound
	}
	return &rows[0], nil
}

func (r paymentRepo) Update(_ context.Context, p *payment.Payment) error {
	if _, ok := lookup(r.tx.payments, r.tx.store.Payments, p.ID); !ok {
		return repo.ErrNotFound
	}
	r.tx.payments.set(p.ID, *p)
	return nil
}

type loyaltyRepo struct{ tx *memTx }

func (r loyaltyRepo) FindAccount(_ context.Context, userID string) (*loyalty.Account, error) {
	rows := scan(r.tx.accounts, r.tx.store.Accounts, func(a loyalty.Account) bool {
		return a.UserID == userID
	})
	if len(rows) == 0 {
		return nil, repo.ErrNotFound
	}
	return &rows[0], nil
}

func (r loyaltyRepo) SaveAccount(_ context.Context, a *loyalty.Account) error {
	r.tx.accounts.set(a.ID, *a)
	return nil
}

func (r loyaltyRepo) AppendTransaction(_ context.Context, t *loyalty.Transaction) error {
	r.tx.txns.set(t.ID, *t)
	return nil
}

func (r loyaltyRepo) Transactions(_ context.Context, accountID string) ([]loyalty.Transaction, error) {
	rows := scan(r.tx.txns, r.tx.store.Transactions, func(t loyalty.Transaction) bool {
		return t.AccountID == accountID
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}
