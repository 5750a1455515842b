package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/listings-cli/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write enriched companies to CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.Export.Output
		}

		e := export.New(s, export.Config{
			WebsiteFallback: cfg.Export.WebsiteFallback,
		})
		_, err = e.WriteFile(ctx, output)
		return err
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output CSV path (default from config)")
	rootCmd.AddCommand(exportCmd)
}
