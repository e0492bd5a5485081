package tier

import (
	"cmp"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/catalog-cli/internal/model"
)

// ErrInvalidQuantity is returned by Resolve for quantities below 1.
var ErrInvalidQuantity = eris.New("tier: quantity must be at least 1")

// Resolve returns the unit price and total for quantity. With no tiers the
// base price applies. Otherwise the first tier (by ascending minimum) that
// contains quantity wins. When none does, the highest tier is used and the
// quote is flagged as a fallback; this keeps every quantity priceable but is
// not a confirmed pricing policy.
func Resolve(quantity int64, tiers []model.PriceTier, basePrice decimal.Decimal) (model.Quote, error) {
	if quantity < 1 {
		return model.Quote{}, eris.Wrapf(ErrInvalidQuantity, "got %d", quantity)
	}

	q := model.Quote{Quantity: quantity, UnitPrice: basePrice}
	if len(tiers) > 0 {
		sorted := slices.Clone(tiers)
		slices.SortStableFunc(sorted, func(a, b model.PriceTier) int {
			return cmp.Compare(a.MinQuantity, b.MinQuantity)
		})

		match := -1
		for i, t := range sorted {
			if t.Contains(quantity) {
				match = i
				break
			}
		}
		if match < 0 {
			match = len(sorted) - 1
			q.Fallback = true
		}
		t := sorted[match]
		q.Tier = &t
		q.UnitPrice = t.UnitPrice
	}

	q.TotalAmount = q.UnitPrice.Mul(decimal.NewFromInt(quantity))
	return q, nil
}
