// Package catalog is the read side of the menu: item prices and loyalty
// offers. Checkout resolves prices here once; settlement never re-reads them.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
	"github.com/wondertwin-ai/loyaltypay/internal/loyalty"
	"github.com/wondertwin-ai/loyaltypay/pkg/store"
)

// Item is a purchasable catalog entry.
type Item struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Catalog resolves items and offers.
type Catalog interface {
	// Items returns the items found for ids, keyed by id. Missing ids are
	// simply absent from the result.
	Items(ctx context.Context, ids []string) (map[string]Item, error)
	// Offer returns the offer with id or an error wrapping apperr.ErrOfferNotFound.
	Offer(ctx context.Context, id string) (loyalty.Offer, error)
}

// Memory is an in-memory Catalog.
type Memory struct {
	items  *store.Store[Item]
	offers *store.Store[loyalty.Offer]
}

var _ Catalog = (*Memory)(nil)

// NewMemory creates an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		items:  store.New[Item](nil),
		offers: store.New[loyalty.Offer](nil),
	}
}

// PutItem adds or replaces an item.
func (m *Memory) PutItem(it Item) { m.items.Set(it.ID, it) }

// PutOffer adds or replaces an offer.
func (m *Memory) PutOffer(o loyalty.Offer) { m.offers.Set(o.ID, o) }

// RemoveItem deletes an item.
func (m *Memory) RemoveItem(id string) bool { return m.items.Delete(id) }

// RemoveOffer deletes an offer.
func (m *Memory) RemoveOffer(id string) bool { return m.offers.Delete(id) }

// Items implements Catalog.
func (m *Memory) Items(_ context.Context, ids []string) (map[string]Item, error) {
	out := make(map[string]Item, len(ids))
	for _, id := range ids {
		if it, ok := m.items.Get(id); ok {
			out[id] = it
		}
	}
	return out, nil
}

// Offer implements Catalog.
func (m *Memory) Offer(_ context.Context, id string) (loyalty.Offer, error) {
	o, ok := m.offers.Get(id)
	if !ok {
		return loyalty.Offer{}, fmt.Errorf("offer %s: %w", id, apperr.ErrOfferNotFound)
	}
	return o, nil
}

// ListItems returns all items in insertion order.
func (m *Memory) ListItems() []Item { return m.items.List() }

// ListOffers returns all offers in insertion order.
func (m *Memory) ListOffers() []loyalty.Offer { return m.offers.List() }

// seedFile is the YAML layout of a catalog seed.
type seedFile struct {
	Items []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Price string `yaml:"price"`
	} `yaml:"items"`
	Offers []loyalty.Offer `yaml:"offers"`
}

// LoadFile reads a YAML seed from path into m.
func (m *Memory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading catalog seed: %w", err)
	}
	return m.Load(data)
}

// Load parses a YAML seed into m. Nothing is added if any entry is invalid.
func (m *Memory) Load(data []byte) error {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing catalog seed: %w", err)
	}

	items := make([]Item, 0, len(seed.Items))
	for i, raw := range seed.Items {
		if strings.TrimSpace(raw.ID) == "" {
			return fmt.Errorf("catalog item %d: missing id", i)
		}
		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			return fmt.Errorf("catalog item %s: invalid price %q: %w", raw.ID, raw.Price, err)
		}
		if price.IsNegative() {
			return fmt.Errorf("catalog item %s: negative price", raw.ID)
		}
		items = append(items, Item{ID: raw.ID, Name: raw.Name, Price: price})
	}
	for i, o := range seed.Offers {
		if o.ID == "" {
			return fmt.Errorf("catalog offer: missing id")
		}
		if o.PointCost < 0 {
			return fmt.Errorf("catalog offer %s: negative point cost", o.ID)
		}
		tier, err := loyalty.ParseTier(string(o.MinimumTier))
		if err != nil {
			return fmt.Errorf("catalog offer %s: %w", o.ID, err)
		}
		seed.Offers[i].MinimumTier = tier
	}

	for _, it := range items {
		m.PutItem(it)
	}
	for _, o := range seed.Offers {
		m.PutOffer(o)
	}
	return nil
}
