package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/internal/order"
	"github.com/wondertwin-ai/loyaltypay/internal/payment"
	"github.com/wondertwin-ai/loyaltypay/internal/pending"
)

type checkoutModel struct {
	ID              string          `gorm:"primaryKey;size:36"`
	UserID          string          `gorm:"size:64;not null;index"`
	PaymentIntentID string          `gorm:"size:255;not null;uniqueIndex"`
	ItemsVersion    int             `gorm:"not null"`
	ItemsText       string          `gorm:"type:text;not null"`
	RedeemedItemIDs pending.IDList  `gorm:"type:text"`
	OfferIDs        pending.IDList  `gorm:"type:text"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric;not null"`
	IsProcessed     bool            `gorm:"not null;default:false;index"`
	CreatedAt       time.Time       `gorm:"not null"`
}

func (checkoutModel) TableName() string { return "pending_checkouts" }

func checkoutToModel(c *pending.Checkout) checkoutModel {
	return checkoutModel{
		ID:              c.ID,
		UserID:          c.UserID,
		PaymentIntentID: c.PaymentIntentID,
		ItemsVersion:    c.Items.Version,
		ItemsText:       c.Items.Text,
		RedeemedItemIDs: c.RedeemedItemIDs,
		OfferIDs:        c.OfferIDs,
		TotalAmount:     c.TotalAmount,
		IsProcessed:     c.IsProcessed,
		CreatedAt:       c.CreatedAt,
	}
}

func (m checkoutModel) toDomain() *pending.Checkout {
	return &pending.Checkout{
		ID:              m.ID,
		UserID:          m.UserID,
		PaymentIntentID: m.PaymentIntentID,
		Items:           pending.Snapshot{Version: m.ItemsVersion, Text: m.ItemsText},
		RedeemedItemIDs: m.RedeemedItemIDs,
		OfferIDs:        m.OfferIDs,
		TotalAmount:     m.TotalAmount,
		IsProcessed:     m.IsProcessed,
		CreatedAt:       m.CreatedAt,
	}
}

type orderModel struct {
	ID          string           `gorm:"primaryKey;size:36"`
	UserID      string           `gorm:"size:64;not null;index"`
	Status      string           `gorm:"size:32;not null"`
	TotalAmount decimal.Decimal  `gorm:"type:numeric;not null"`
	CreatedAt   time.Time        `gorm:"not null"`
	UpdatedAt   time.Time        `gorm:"not null"`
	Items       []orderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID            uint            `gorm:"primaryKey"`
	OrderID       string          `gorm:"size:36;not null;index"`
	CatalogItemID string          `gorm:"size:64;not null"`
	Name          string          `gorm:"size:255"`
	Quantity      int             `gorm:"not null;check:quantity > 0"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric;not null"`
}

func (orderItemModel) TableName() string { return "order_items" }

func orderToModel(o *order.Order) orderModel {
	items := make([]orderItemModel, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemModel{
			OrderID:       o.ID,
			CatalogItemID: it.CatalogItemID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
		})
	}
	return orderModel{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Items:       items,
	}
}

func (m orderModel) toDomain() *order.Order {
	items := make([]order.Item, 0, len(m.Items))
	for _, it := range m.Items {
		items = append(items, order.Item{
			OrderID:       it.OrderID,
			CatalogItemID: it.CatalogItemID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
		})
	}
	return &order.Order{
		ID:          m.ID,
		UserID:      m.UserID,
		Status:      order.Status(m.Status),
		TotalAmount: m.TotalAmount,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Items:       items,
	}
}

type paymentModel struct {
	ID              string          `gorm:"primaryKey;size:36"`
	OrderID         string          `gorm:"size:36;not null;index"`
	Amount          decimal.Decimal `gorm:"type:numeric;not null"`
	Status          string          `gorm:"size:32;not null"`
	PaymentIntentID *string         `gorm:"size:255;uniqueIndex"`
	EventID         string          `gorm:"size:255"`
	ClientSecret    string          `gorm:"size:255"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (paymentModel) TableName() string { return "payments" }

func paymentToModel(p *payment.Payment) paymentModel {
	m := paymentModel{
		ID:           p.ID,
		OrderID:      p.OrderID,
		Amount:       p.Amount,
		Status:       string(p.Status),
		EventID:      p.EventID,
		ClientSecret: p.ClientSecret,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.PaymentIntentID != "" {
		intent := p.PaymentIntentID
		m.PaymentIntentID = &intent
	}
	return m
}

func (m paymentModel) toDomain() *payment.Payment {
	p := &payment.Payment{
		ID:           m.ID,
		OrderID:      m.OrderID,
		Amount:       m.Amount,
		Status:       payment.Status(m.Status),
		EventID:      m.EventID,
		ClientSecret: m.ClientSecret,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.PaymentIntentID != nil {
		p.PaymentIntentID = *m.PaymentIntentID
	}
	return p
}

type accountModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	UserID         string    `gorm:"size:64;not null;uniqueIndex"`
	CurrentPoints  int64     `gorm:"not null;check:current_points >= 0"`
	LifetimePoints int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (accountModel) TableName() string { return "loyalty_accounts" }

func accountToModel(a *loyalty.Account) accountModel {
	return accountModel{
		ID:             a.ID,
		UserID:         a.UserID,
		CurrentPoints:  a.CurrentPoints,
		LifetimePoints: a.LifetimePoints,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (m accountModel) toDomain() *loyalty.Account {
	return &loyalty.Account{
		ID:             m.ID,
		UserID:         m.UserID,
		CurrentPoints:  m.CurrentPoints,
		LifetimePoints: m.LifetimePoints,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

type transactionModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	AccountID   string    `gorm:"size:36;not null;index"`
	Points      int64     `gorm:"not null"`
	Type        string    `gorm:"size:16;not null"`
	Description string    `gorm:"size:255"`
	OrderID     string    `gorm:"size:36;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (transactionModel) TableName() string { return "loyalty_transactions" }

func transactionToModel(t *loyalty.Transaction) transactionModel {
	return transactionModel{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Points:      t.Points,
		Type:        string(t.Type),
		Description: t.Description,
		OrderID:     t.OrderID,
		CreatedAt:   t.CreatedAt,
	}
}

func (m transactionModel) toDomain() loyalty.Transaction {
	return loyalty.Transaction{
		ID:          m.ID,
		AccountID:   m.AccountID,
		Points:      m.Points,
		Type:        loyalty.TransactionType(m.Type),
		Description: m.Description,
		OrderID:     m.OrderID,
		CreatedAt:   m.CreatedAt,
	}
}
