package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fxrec/internal/app"
	"fxrec/internal/rates"
)

var (
	ratesBases     string
	ratesTargets   string
	ratesFrom      string
	ratesTo        string
	ratesInvert    bool
	ratesPNGPath   string
	ratesCSVPath   string
	ratesMaxPoints int
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Resolve daily rates for a currency basket",
	Example: `  fxrec rates --base ZAR --targets DEFAULT --from 2024-01-01 --to 2024-01-31
  fxrec rates --base USD,EUR --targets BWP,MWK --from 2024-01-01 --csv out/rates.csv --png out/rates.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.RatesOptions{
			Bases:      ratesBases,
			Targets:    ratesTargets,
			Invert:     ratesInvert,
			Credential: credential,
			CSVPath:    ratesCSVPath,
			PNGPath:    ratesPNGPath,
			MaxPoints:  ratesMaxPoints,
		}

		from, err := rates.ParseDay(ratesFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		opts.From = from

		opts.To = rates.Day(time.Now().UTC())
		if ratesTo != "" {
			to, err := rates.ParseDay(ratesTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = to
		}

		return getApp().Rates(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	ratesCmd.Flags().StringVar(&ratesBases, "base", "", "Comma-separated base currencies")
	ratesCmd.Flags().StringVar(&ratesTargets, "targets", "DEFAULT", "Comma-separated targets or DEFAULT, MAJOR, AFRICAN, ALL")
	ratesCmd.Flags().StringVar(&ratesFrom, "from", "", "Start date (YYYY-MM-DD, inclusive)")
	ratesCmd.Flags().StringVar(&ratesTo, "to", "", "End date (YYYY-MM-DD, inclusive; defaults to today)")
	ratesCmd.Flags().BoolVar(&ratesInvert, "invert", false, "Report target per base instead of base per target")
	ratesCmd.Flags().StringVar(&ratesPNGPath, "png", "", "Path to write PNG chart")
	ratesCmd.Flags().StringVar(&ratesCSVPath, "csv", "", "Path to write CSV data")
	ratesCmd.Flags().IntVar(&ratesMaxPoints, "max-points", 0, "Maximum data points per pair to export (defaults to config)")
	_ = ratesCmd.MarkFlagRequired("base")
	_ = ratesCmd.MarkFlagRequired("from")
}
