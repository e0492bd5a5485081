package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-cli/internal/tier"
)

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Validate and price quantity tiers offline",
}

// -- tiers validate --

var tiersValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a tier file and show the normalized tiers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readTierFile(args[0])
		if err != nil {
			return err
		}

		res := tier.Validate(raw)
		formatValidation(os.Stdout, res, newPriceFormatter(cfg.Pricing))
		if !res.IsValid {
			return eris.Errorf("%d tier errors", len(res.Errors))
		}
		return nil
	},
}

// -- tiers quote --

var (
	quoteQty  int64
	quoteBase string
)

var tiersQuoteCmd = &cobra.Command{
	Use:   "quote <file>",
	Short: "Resolve the unit price for a quantity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readTierFile(args[0])
		if err != nil {
			return err
		}

		base := decimal.Zero
		if quoteBase != "" {
			base, err = decimal.NewFromString(quoteBase)
			if err != nil {
				return eris.Wrapf(err, "parse --base %q", quoteBase)
			}
		}

		res := tier.Validate(raw)
		if !res.IsValid {
			return &tier.ValidationError{Errors: res.Errors}
		}
		q, err := tier.Resolve(quoteQty, res.Normalized, base)
		if err != nil {
			return err
		}
		formatQuote(os.Stdout, q, newPriceFormatter(cfg.Pricing))
		return nil
	},
}

func init() {
	tiersQuoteCmd.Flags().Int64Var(&quoteQty, "qty", 1, "quantity to price")
	tiersQuoteCmd.Flags().StringVar(&quoteBase, "base", "", "base price used when the file has no tiers")

	tiersCmd.AddCommand(tiersValidateCmd)
	tiersCmd.AddCommand(tiersQuoteCmd)
	rootCmd.AddCommand(tiersCmd)
}
