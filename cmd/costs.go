package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show API spend for a month",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		year, _ := cmd.Flags().GetInt("year")
		month, _ := cmd.Flags().GetInt("month")
		now := time.Now().UTC()
		if year == 0 {
			year = now.Year()
		}
		if month == 0 {
			month = int(now.Month())
		}
		if month < 1 || month > 12 {
			return eris.Errorf("invalid month: %d", month)
		}

		rec, err := s.GetCostRecord(ctx, year, month)
		if err != nil {
			return eris.Wrap(err, "costs: load record")
		}

		out := cmd.OutOrStdout()
		if rec == nil {
			fmt.Fprintf(out, "%04d-%02d: no API calls recorded\n", year, month)
			return nil
		}
		fmt.Fprintf(out, "%04d-%02d: $%.2f of $%.2f (%d calls, $%.2f remaining)\n",
			rec.Year, rec.Month,
			rec.Cost,
			cfg.Budget.MonthlyCap,
			rec.QueryCount,
			cfg.Budget.MonthlyCap-rec.Cost,
		)
		return nil
	},
}

func init() {
	costsCmd.Flags().Int("year", 0, "calendar year (default current)")
	costsCmd.Flags().Int("month", 0, "calendar month 1-12 (default current)")
	rootCmd.AddCommand(costsCmd)
}
