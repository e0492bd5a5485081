package tier

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Store persists an item's tier set. ReplaceTiers must delete the existing
// rows and insert the new ones atomically.
type Store interface {
	ReplaceTiers(ctx context.Context, itemID string, tiers []model.PriceTier) error
	ListTiers(ctx context.Context, itemID string) ([]model.PriceTier, error)
}

// PersistResult describes a successful tier write.
type PersistResult struct {
	Records  []model.TierRecord `json:"records"`
	Warnings []string           `json:"warnings"`
}

// Engine binds tier validation and resolution to a Store.
type Engine struct {
	store Store
}

// NewEngine creates an Engine backed by st.
func NewEngine(st Store) *Engine {
	return &Engine{store: st}
}

// Validate checks raw tiers without touching the store.
func (e *Engine) Validate(raw []model.RawTier) ValidationResult {
	return Validate(raw)
}

// Persist validates raw and replaces the item's whole tier set with the
// normalized result. Invalid input returns a *ValidationError and writes
// nothing. An empty list removes all tiers, leaving the item on its base price.
func (e *Engine) Persist(ctx context.Context, itemID string, raw []model.RawTier) (*PersistResult, error) {
	log := zap.L().With(zap.String("item_id", itemID))

	res := Validate(raw)
	if !res.IsValid {
		log.Debug("tier: rejected tier set", zap.Strings("errors", res.Errors))
		return nil, &ValidationError{Errors: res.Errors}
	}

	if err := e.store.ReplaceTiers(ctx, itemID, res.Normalized); err != nil {
		return nil, eris.Wrapf(err, "tier: persist tiers for item %s", itemID)
	}

	for _, w := range res.Warnings {
		log.Warn("tier: coherence warning", zap.String("warning", w))
	}
	log.Debug("tier: replaced tier set", zap.Int("tiers", len(res.Normalized)))

	return &PersistResult{Records: Records(itemID, res.Normalized), Warnings: res.Warnings}, nil
}

// Quote resolves the price of quantity against the item's stored tiers.
func (e *Engine) Quote(ctx context.Context, itemID string, quantity int64, basePrice decimal.Decimal) (model.Quote, error) {
	tiers, err := e.store.ListTiers(ctx, itemID)
	if err != nil {
		return model.Quote{}, eris.Wrapf(err, "tier: load tiers for item %s", itemID)
	}
	q, err := Resolve(quantity, tiers, basePrice)
	if err == nil && q.Fallback {
		zap.L().Warn("tier: no tier contains quantity, using highest tier",
			zap.String("item_id", itemID),
			zap.Int64("quantity", quantity),
		)
	}
	return q, err
}

// Records converts normalized tiers to their persisted row shape.
func Records(itemID string, tiers []model.PriceTier) []model.TierRecord {
	out := make([]model.TierRecord, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, model.TierRecord{
			ItemID:      itemID,
			MinQuantity: t.MinQuantity,
			MaxQuantity: t.MaxQuantity,
			UnitPrice:   t.UnitPrice,
		})
	}
	return out
}
