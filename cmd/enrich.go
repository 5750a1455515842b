package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/budget"
	"github.com/sells-group/listings-cli/internal/enricher"
	"github.com/sells-group/listings-cli/internal/model"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Refresh details for companies with missing or stale data",
	Long: `Fetch details, reviews, opening hours and a photo for companies whose
detail record is missing or older than the staleness window, oldest first.
Stops cleanly when the monthly API budget is exhausted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.ValidateAPI(); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "enrich"))

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = cfg.Enrich.BatchLimit
		}
		staleDays, _ := cmd.Flags().GetInt("stale-days")
		if staleDays <= 0 {
			staleDays = cfg.Enrich.StaleAfterDays
		}
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Enrich.Concurrency
		}

		e := enricher.New(initDispatcher(s), s, enricher.Config{
			Language:    cfg.Places.Language,
			PhotoMaxPx:  cfg.Enrich.PhotoMaxPx,
			Concurrency: concurrency,
		})

		runID, err := s.CreateRun(ctx, "enrich")
		if err != nil {
			return eris.Wrap(err, "enrich: create run")
		}

		refreshed, err := e.RefreshOverdue(ctx, limit, staleDays)
		if err != nil && !errors.Is(err, budget.ErrBudgetExceeded) {
			return eris.Wrap(err, "enrich")
		}
		if err != nil {
			log.Warn("monthly API budget exhausted, stopping enrichment",
				zap.Int("refreshed", refreshed),
			)
		}

		if err := s.CompleteRun(ctx, runID, model.RunStats{Details: refreshed}); err != nil {
			return eris.Wrap(err, "enrich: complete run")
		}

		log.Info("enrichment complete", zap.Int("refreshed", refreshed))
		return nil
	},
}

func init() {
	enrichCmd.Flags().Int("limit", 0, "max companies to refresh this run (default from config)")
	enrichCmd.Flags().Int("stale-days", 0, "refresh details older than this many days (default from config)")
	enrichCmd.Flags().Int("concurrency", 0, "worker pool size (default from config)")
	rootCmd.AddCommand(enrichCmd)
}
