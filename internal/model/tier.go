package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RawTier is a price tier as submitted by a caller. Keys may use either the
// current or a legacy naming (see tier.Normalize); values may be numbers or
// numeric strings.
type RawTier map[string]any

// PriceTier is a normalized quantity range with its unit price. MaxQuantity
// is nil for the open-ended (highest) tier.
type PriceTier struct {
	MinQuantity int64           `json:"min_quantity"`
	MaxQuantity *int64          `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Contains reports whether quantity falls within the tier's inclusive range.
func (t PriceTier) Contains(quantity int64) bool {
	return quantity >= t.MinQuantity && (t.MaxQuantity == nil || quantity <= *t.MaxQuantity)
}

// RangeLabel renders the tier range, e.g. "1-9" or "10+".
func (t PriceTier) RangeLabel() string {
	if t.MaxQuantity == nil {
		return fmt.Sprintf("%d+", t.MinQuantity)
	}
	return fmt.Sprintf("%d-%d", t.MinQuantity, *t.MaxQuantity)
}

// TierRecord is the persisted representation of a tier: one row per tier,
// replaced as a whole on every write.
type TierRecord struct {
	ItemID      string          `json:"item_id"`
	MinQuantity int64           `json:"min_quantity"`
	MaxQuantity *int64          `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Tier converts the record back to its normalized form.
func (r TierRecord) Tier() PriceTier {
	return PriceTier{MinQuantity: r.MinQuantity, MaxQuantity: r.MaxQuantity, UnitPrice: r.UnitPrice}
}

// Quote is the resolved price for a quantity.
type Quote struct {
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Tier        *PriceTier      `json:"tier,omitempty"`
	// Fallback is set when no tier contained the quantity and the highest
	// tier was used instead.
	Fallback bool `json:"fallback,omitempty"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
