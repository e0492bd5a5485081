package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/catalog-cli/internal/config"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/tier"
)

// maxPricePlaces bounds the decimals shown for sub-cent prices.
const maxPricePlaces = 9

// priceFormatter renders decimal prices in the configured locale and currency.
type priceFormatter struct {
	printer *message.Printer
	unit    currency.Unit
}

func newPriceFormatter(pc config.PricingConfig) priceFormatter {
	tag, err := language.Parse(pc.Language)
	if err != nil {
		tag = language.English
	}
	unit, err := currency.ParseISO(pc.Currency)
	if err != nil {
		unit = currency.USD
	}
	return priceFormatter{printer: message.NewPrinter(tag), unit: unit}
}

// Format prints d with the currency symbol, grouping, and at least the
// currency's standard number of decimals.
func (f priceFormatter) Format(d decimal.Decimal) string {
	places, _ := currency.Standard.Rounding(f.unit)
	if exp := int(-d.Exponent()); exp > places {
		places = min(exp, maxPricePlaces)
	}
	v, _ := d.Float64()
	return f.printer.Sprintf("%v%v", currency.Symbol(f.unit), number.Decimal(v, number.Scale(places)))
}

func formatValidation(out io.Writer, res tier.ValidationResult, pf priceFormatter) {
	if res.IsValid {
		_, _ = fmt.Fprintln(out, "Tiers are valid.")
	} else {
		_, _ = fmt.Fprintf(out, "Tiers are invalid (%d errors):\n", len(res.Errors))
		for _, e := range res.Errors {
			_, _ = fmt.Fprintf(out, "  - %s\n", e)
		}
	}
	if len(res.Warnings) > 0 {
		_, _ = fmt.Fprintln(out, "Warnings:")
		for _, w := range res.Warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}
	if len(res.Normalized) > 0 {
		_, _ = fmt.Fprintln(out)
		formatTiers(out, res.Normalized, pf)
	}
}

func formatTiers(out io.Writer, tiers []model.PriceTier, pf priceFormatter) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIER\tQUANTITY\tUNIT PRICE")
	_, _ = fmt.Fprintln(w, "----\t--------\t----------")
	for i, t := range tiers {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, t.RangeLabel(), pf.Format(t.UnitPrice))
	}
	_ = w.Flush()
}

func formatQuote(out io.Writer, q model.Quote, pf priceFormatter) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Quantity:\t%d\n", q.Quantity)
	_, _ = fmt.Fprintf(w, "Unit price:\t%s\n", pf.Format(q.UnitPrice))
	_, _ = fmt.Fprintf(w, "Total:\t%s\n", pf.Format(q.TotalAmount))
	switch {
	case q.Tier == nil:
		_, _ = fmt.Fprintln(w, "Tier:\tbase price")
	case q.Fallback:
		_, _ = fmt.Fprintf(w, "Tier:\t%s (no tier covers this quantity, highest tier used)\n", q.Tier.RangeLabel())
	default:
		_, _ = fmt.Fprintf(w, "Tier:\t%s\n", q.Tier.RangeLabel())
	}
	_ = w.Flush()
}

// formatBatchResult writes one row per batch entry. tasks maps item ids to
// their task, when one was started.
func formatBatchResult(out io.Writer, items []model.ItemPayload, res *model.BatchResult, tasks map[string]*model.BackgroundTask) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tNAME\tRESULT\tITEM ID\tTASK\tDETAIL")
	_, _ = fmt.Fprintln(w, "-\t----\t------\t-------\t----\t------")
	for i, o := range res.Results {
		name := ""
		if i < len(items) {
			name = items[i].Base.Name
		}
		id, taskStatus, detail := "", "-", o.Reason
		if o.Value != nil {
			id = o.Value.ID
			if t := tasks[id]; t != nil {
				taskStatus = string(t.Status)
				detail = t.Error
			}
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, name, o.Status, id, taskStatus, truncate(detail, 60))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d items: %d created, %d rejected\n", res.Total, res.Successful, res.Failed)
}

func formatSnapshot(out io.Writer, snap *model.ItemSnapshot, pf priceFormatter) {
	it := snap.Item
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", it.ID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", it.Name)
	if it.Category != "" {
		_, _ = fmt.Fprintf(w, "Category:\t%s\n", it.Category)
	}
	_, _ = fmt.Fprintf(w, "Base price:\t%s\n", pf.Format(it.BasePrice))
	_, _ = fmt.Fprintf(w, "Active:\t%t\n", it.Active)
	_, _ = fmt.Fprintf(w, "Updated:\t%s\n", it.UpdatedAt.Format("2006-01-02 15:04"))
	_ = w.Flush()

	if len(snap.Specifications) > 0 {
		_, _ = fmt.Fprintln(out, "\nSpecifications:")
		for _, s := range snap.Specifications {
			_, _ = fmt.Fprintf(out, "  %s: %s\n", s.Name, strings.TrimSpace(s.Value+" "+s.Unit))
		}
	}
	if len(snap.Images) > 0 {
		_, _ = fmt.Fprintln(out, "\nImages:")
		for _, img := range snap.Images {
			primary := ""
			if img.IsPrimary {
				primary = " (primary)"
			}
			_, _ = fmt.Fprintf(out, "  %s%s\n", img.URL, primary)
		}
	}
	if len(snap.PriceTiers) > 0 {
		_, _ = fmt.Fprintln(out, "\nPrice tiers:")
		formatTiers(out, snap.PriceTiers, pf)
	}
}

func formatTasks(out io.Writer, tasks []model.BackgroundTask) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tSTATUS\tATTEMPTS\tPROGRESS\tERROR")
	_, _ = fmt.Fprintln(w, "-------\t------\t--------\t--------\t-----")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d%%\t%s\n",
			t.StartTime.Format("2006-01-02 15:04:05"), t.Status, t.Attempts, t.ProgressPercent, truncate(t.Error, 60))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
