package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is the base catalog record for a sellable item.
type Item struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Currency    string          `json:"currency"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ItemFields holds the base fields supplied when creating an item.
type ItemFields struct {
	OwnerID     string          `json:"owner_id" yaml:"owner_id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Category    string          `json:"category,omitempty" yaml:"category"`
	BasePrice   decimal.Decimal `json:"base_price" yaml:"base_price"`
	Currency    string          `json:"currency,omitempty" yaml:"currency"`
	Active      *bool           `json:"active,omitempty" yaml:"active"`
}

// ItemPatch holds optional base-field changes. Nil fields are left untouched.
type ItemPatch struct {
	Name        *string          `json:"name,omitempty" yaml:"name"`
	Description *string          `json:"description,omitempty" yaml:"description"`
	Category    *string          `json:"category,omitempty" yaml:"category"`
	BasePrice   *decimal.Decimal `json:"base_price,omitempty" yaml:"base_price"`
	Currency    *string          `json:"currency,omitempty" yaml:"currency"`
	Active      *bool            `json:"active,omitempty" yaml:"active"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Category == nil &&
		p.BasePrice == nil && p.Currency == nil && p.Active == nil
}

// ImageInput is a single image supplied with an item mutation. Either URL
// (already hosted) or Data (raw bytes to optimize and upload) is set.
type ImageInput struct {
	URL         string `json:"url,omitempty" yaml:"url"`
	Data        []byte `json:"data,omitempty" yaml:"data"`
	Filename    string `json:"filename,omitempty" yaml:"filename"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type"`
	IsPrimary   bool   `json:"is_primary,omitempty" yaml:"is_primary"`
}

// ItemImage is a persisted image record for an item.
type ItemImage struct {
	ItemID    string `json:"item_id"`
	URL       string `json:"url"`
	ObjectKey string `json:"object_key,omitempty"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

// Specification is a named attribute of an item (e.g. "Weight: 2 kg").
type Specification struct {
	Name      string `json:"name" yaml:"name"`
	Value     string `json:"value" yaml:"value"`
	Unit      string `json:"unit,omitempty" yaml:"unit"`
	SortOrder int    `json:"sort_order" yaml:"sort_order"`
}

// ItemPayload is a full mutation request for one item. A nil slice means the
// sub-resource is absent; a non-nil empty slice means "explicitly empty".
type ItemPayload struct {
	Base           ItemFields      `json:"base" yaml:"base"`
	Patch          ItemPatch       `json:"patch,omitempty" yaml:"patch"`
	Images         []ImageInput    `json:"images" yaml:"images"`
	Specifications []Specification `json:"specifications" yaml:"specifications"`
	PriceTiers     []RawTier       `json:"price_tiers" yaml:"price_tiers"`
}

// HasSubResources reports whether any sub-resource carries data.
func (p ItemPayload) HasSubResources() bool {
	return len(p.Images) > 0 || len(p.Specifications) > 0 || len(p.PriceTiers) > 0
}

// ItemSnapshot is an item together with all of its sub-resources, as read
// back from the store after a mutation.
type ItemSnapshot struct {
	Item           Item            `json:"item"`
	Images         []ItemImage     `json:"images"`
	Specifications []Specification `json:"specifications"`
	PriceTiers     []PriceTier     `json:"price_tiers"`
}
