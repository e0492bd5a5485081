// Package tier validates, resolves and persists quantity price tiers.
package tier

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/catalog-cli/internal/model"
)

// ValidationResult is the outcome of Validate. Normalized is always filled,
// sorted by minimum quantity with the last tier open-ended, but it must not be
// persisted unless IsValid is true.
type ValidationResult struct {
	IsValid    bool              `json:"is_valid"`
	Errors     []string          `json:"errors"`
	Warnings   []string          `json:"warnings"`
	Normalized []model.PriceTier `json:"normalized"`
}

// ValidationError carries every problem found in a rejected tier set.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "tier: invalid tiers: " + strings.Join(e.Errors, "; ")
}

// Validate normalizes raw tiers and checks them. All problems are collected;
// validation never stops at the first one.
func Validate(raw []model.RawTier) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	parsed := make([]parsedTier, 0, len(raw))
	for i, r := range raw {
		p, errs := normalize(i+1, r)
		parsed = append(parsed, p)
		res.Errors = append(res.Errors, errs...)
	}

	slices.SortStableFunc(parsed, func(a, b parsedTier) int {
		return cmp.Compare(a.tier.MinQuantity, b.tier.MinQuantity)
	})

	var valid []model.PriceTier
	for _, p := range parsed {
		if p.ok {
			valid = append(valid, p.tier)
		}
	}
	res.Errors = append(res.Errors, overlaps(valid)...)
	res.Warnings = append(res.Warnings, coherence(valid)...)

	res.Normalized = make([]model.PriceTier, 0, len(parsed))
	for _, p := range parsed {
		res.Normalized = append(res.Normalized, p.tier)
	}
	openEnded(res.Normalized)

	res.IsValid = len(res.Errors) == 0
	return res
}

// openEnded clears the maximum of the last tier in place.
func openEnded(sorted []model.PriceTier) {
	if n := len(sorted); n > 0 {
		sorted[n-1].MaxQuantity = nil
	}
}

// overlaps reports each tier whose range starts inside an earlier tier's range.
// Tiers are numbered by their sorted position. A missing maximum on any tier
// but the last covers everything after it.
func overlaps(sorted []model.PriceTier) []string {
	var errs []string
	reach := -1 // index of the tier extending furthest so far
	for i, t := range sorted {
		if reach >= 0 {
			prev := sorted[reach]
			if prev.MaxQuantity == nil || *prev.MaxQuantity >= t.MinQuantity {
				errs = append(errs, fmt.Sprintf("Tier %d (%s) overlaps with tier %d (%s)",
					i+1, t.RangeLabel(), reach+1, prev.RangeLabel()))
			}
		}
		if reach < 0 || extendsPast(t, sorted[reach]) {
			reach = i
		}
	}
	return errs
}

func extendsPast(a, b model.PriceTier) bool {
	if b.MaxQuantity == nil {
		return false
	}
	return a.MaxQuantity == nil || *a.MaxQuantity > *b.MaxQuantity
}

// coherence returns advisory warnings for a well-formed tier set: prices that
// rise with quantity, uncovered gaps, and a first tier starting above 1.
func coherence(sorted []model.PriceTier) []string {
	var warns []string
	if len(sorted) == 0 {
		return warns
	}
	if first := sorted[0].MinQuantity; first > 1 {
		warns = append(warns, fmt.Sprintf("Quantities below %d are not covered by any tier and resolve to the highest tier", first))
	}
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.UnitPrice.GreaterThan(prev.UnitPrice) {
			warns = append(warns, fmt.Sprintf("Tier %d (%s) unit price %s is higher than tier %d (%s) unit price %s",
				i+1, cur.RangeLabel(), cur.UnitPrice, i, prev.RangeLabel(), prev.UnitPrice))
		}
		if prev.MaxQuantity != nil && *prev.MaxQuantity+1 < cur.MinQuantity {
			warns = append(warns, fmt.Sprintf("Quantities %d-%d are not covered by any tier",
				*prev.MaxQuantity+1, cur.MinQuantity-1))
		}
	}
	return warns
}
