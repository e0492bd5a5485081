package tier

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/catalog-cli/internal/model"
)

// Accepted field names, current naming first. Older clients send the
// snake_case and short forms.
var (
	minKeys   = []string{"minQuantity", "min_quantity", "minQty", "min_qty", "quantityFrom", "from"}
	maxKeys   = []string{"maxQuantity", "max_quantity", "maxQty", "max_qty", "quantityTo", "to"}
	priceKeys = []string{"unitPrice", "unit_price", "price", "pricePerUnit", "price_per_unit"}
)

// Limits applied to both quantities and unit prices.
var upperLimit = decimal.NewFromInt(10_000_000)

// lookup returns the first non-empty value under any of keys.
func lookup(raw model.RawTier, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// toDecimal converts the value types produced by JSON, YAML and Go callers.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	}
	return decimal.Zero, false
}

// parsedTier is one input tier after field normalization. ok is false when
// any per-tier check failed; such tiers are still shown but take no part in
// cross-tier checks.
type parsedTier struct {
	position int // 1-based input position
	tier     model.PriceTier
	ok       bool
}

// normalize parses one raw tier and returns the problems found in it.
func normalize(position int, raw model.RawTier) (parsedTier, []string) {
	p := parsedTier{position: position}
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("Tier %d: ", position)+fmt.Sprintf(format, args...))
	}

	minQty, minOK := quantity(raw, minKeys, "minimum quantity", fail)
	if minOK {
		p.tier.MinQuantity = minQty
	}

	if v, present := lookup(raw, priceKeys); !present {
		fail("unit price is required")
	} else if d, numeric := toDecimal(v); !numeric {
		fail("unit price must be a number, got %v", v)
	} else {
		p.tier.UnitPrice = d
		switch {
		case !d.IsPositive():
			fail("unit price must be greater than 0")
		case d.GreaterThan(upperLimit):
			fail("unit price must not exceed 10,000,000")
		}
	}

	if _, present := lookup(raw, maxKeys); present {
		maxQty, maxOK := quantity(raw, maxKeys, "maximum quantity", fail)
		if maxOK {
			p.tier.MaxQuantity = model.Int64Ptr(maxQty)
			if minOK && maxQty <= minQty {
				fail("maximum quantity (%d) must be greater than minimum quantity (%d)", maxQty, minQty)
			}
		}
	}

	p.ok = len(errs) == 0
	return p, errs
}

// quantity reads a whole-number quantity in (0, 10,000,000].
func quantity(raw model.RawTier, keys []string, label string, fail func(string, ...any)) (int64, bool) {
	v, present := lookup(raw, keys)
	if !present {
		fail("%s is required", label)
		return 0, false
	}
	d, numeric := toDecimal(v)
	switch {
	case !numeric:
		fail("%s must be a number, got %v", label, v)
	case !d.IsInteger():
		fail("%s must be a whole number, got %s", label, d)
	case !d.IsPositive():
		fail("%s must be greater than 0", label)
	case d.GreaterThan(upperLimit):
		fail("%s must not exceed 10,000,000", label)
	default:
		return d.IntPart(), true
	}
	return 0, false
}
