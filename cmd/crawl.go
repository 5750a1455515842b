package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/address"
	"github.com/sells-group/listings-cli/internal/budget"
	"github.com/sells-group/listings-cli/internal/crawler"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/scheduler"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Discover companies in the stalest sections",
	Long: `Pick the sections whose company data is oldest and run the discovery
queries for each. Seeds the section table from the gazetteer file on first run.
Stops cleanly when the monthly API budget is exhausted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.ValidateAPI(); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "crawl"))

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		sched := scheduler.New(s)
		if err := sched.Seed(ctx, cfg.Scheduler.GazetteerPath); err != nil {
			return eris.Wrap(err, "crawl: seed sections")
		}

		limit, _ := cmd.Flags().GetInt("sections")
		if limit <= 0 {
			limit = cfg.Scheduler.SectionsPerRun
		}
		sections, err := sched.PickStale(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "crawl: pick sections")
		}
		if len(sections) == 0 {
			log.Info("no sections to crawl")
			return nil
		}

		c := crawler.New(initDispatcher(s), s, address.NewSpanishParser(), crawler.Config{
			Queries:  cfg.Crawl.Queries,
			RadiusM:  cfg.Crawl.RadiusM,
			Language: cfg.Places.Language,
		})

		runID, err := s.CreateRun(ctx, "crawl")
		if err != nil {
			return eris.Wrap(err, "crawl: create run")
		}

		stats := model.RunStats{}
		for _, section := range sections {
			sectionStats, err := c.CrawlSection(ctx, section)
			if sectionStats != nil {
				stats.Sections++
				stats.Companies += sectionStats.Companies
			}
			if err != nil {
				if errors.Is(err, budget.ErrBudgetExceeded) {
					log.Warn("monthly API budget exhausted, stopping crawl",
						zap.String("section", section.Name),
						zap.Int("sections_done", stats.Sections),
					)
					break
				}
				return eris.Wrapf(err, "crawl: section %s", section.Name)
			}
		}

		if err := s.CompleteRun(ctx, runID, stats); err != nil {
			return eris.Wrap(err, "crawl: complete run")
		}

		log.Info("crawl complete",
			zap.Int("sections", stats.Sections),
			zap.Int("companies", stats.Companies),
		)
		return nil
	},
}

func init() {
	crawlCmd.Flags().Int("sections", 0, "number of sections to crawl this run (default from config)")
	rootCmd.AddCommand(crawlCmd)
}
