package pending

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SnapshotVersion is the current schema version of serialized item snapshots.
//
// Version 1 is an ordered JSON array of
//
//	{"catalogItemId": string, "name": string, "quantity": int, "unitPrice": decimal-string}
const SnapshotVersion = 1

// ErrMalformedSnapshot is returned when a stored snapshot cannot be decoded or is empty.
var ErrMalformedSnapshot = errors.New("malformed item snapshot")

// Line is one priced cart line frozen at checkout time.
type Line struct {
	CatalogItemID string          `json:"catalogItemId"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

// Snapshot is the serialized, versioned form of a checkout's priced lines.
// Prices inside it are never re-read from the live catalog.
type Snapshot struct {
	Version int    `json:"version"`
	Text    string `json:"text"`
}

// NewSnapshot serializes lines using the current schema version.
func NewSnapshot(lines []Line) (Snapshot, error) {
	if len(lines) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no lines", ErrMalformedSnapshot)
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return Snapshot{Version: SnapshotVersion, Text: string(data)}, nil
}

// Lines decodes the snapshot. It fails with ErrMalformedSnapshot when the text
// is empty, not valid JSON, of an unknown version, or has invalid lines.
func (s Snapshot) Lines() ([]Line, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedSnapshot, s.Version)
	}
	if s.Text == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedSnapshot)
	}
	var lines []Line
	if err := json.Unmarshal([]byte(s.Text), &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrMalformedSnapshot)
	}
	for i, l := range lines {
		if l.CatalogItemID == "" || l.Quantity < 1 || l.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: invalid line %d", ErrMalformedSnapshot, i)
		}
	}
	return lines, nil
}

// IDList is a list of identifiers persisted as a JSON array, or NULL when empty.
type IDList []string

// Value implements driver.Valuer.
func (l IDList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *IDList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan id list: unsupported type %T", src)
	}
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("scan id list: %w", err)
	}
	*l = ids
	return nil
}
