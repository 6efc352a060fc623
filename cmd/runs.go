package cmd

import (
	"context"
	"fmt"

	"lease-sync/core/database"
	"lease-sync/feature/runs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runsFlow  string
	runsLimit int
)

// runsCmd lists the recorded run history.
var runsCmd = &cobra.Command{
	Use:   "runs [run id]",
	Short: "List recent sync runs, or show one run with its failed items",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		defer l.Sync()

		if !cfg.Database.Enabled {
			return fmt.Errorf("run history is disabled, set DATABASE_ENABLED=true")
		}
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := runs.NewRepository(db, l)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := repo.Migrate(ctx); err != nil {
			return err
		}

		if len(args) == 1 {
			run, err := repo.Get(ctx, args[0])
			if err != nil {
				return err
			}
			logRun(l, *run)
			for _, e := range run.Errors {
				l.Warn("Failed item",
					zap.String("entity", e.Entity),
					zap.String("key", e.ItemKey),
					zap.String("kind", e.ErrorKind),
					zap.String("error", e.Message),
				)
			}
			return nil
		}

		list, err := repo.List(ctx, runsFlow, runsLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			l.Info("No runs recorded")
		}
		for _, run := range list {
			logRun(l, run)
		}
		return nil
	},
}

func logRun(l *zap.Logger, run runs.Run) {
	fields := []zap.Field{
		zap.String("run_id", run.RunID),
		zap.String("flow", run.Flow),
		zap.String("mode", run.Mode),
		zap.Bool("dry_run", run.DryRun),
		zap.Time("started_at", run.StartedAt),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
		zap.Int("created", run.Created),
		zap.Int("updated", run.Updated),
		zap.Int("skipped", run.Skipped),
		zap.Int("errored", run.Errored),
		zap.Bool("failed", run.Failed),
	}
	if run.Watermark != nil {
		fields = append(fields, zap.Time("watermark", *run.Watermark), zap.Bool("watermark_advanced", run.WatermarkAdvanced))
	}
	l.Info("Run", fields...)
}

func init() {
	runsCmd.Flags().StringVar(&runsFlow, "flow", "", "Only list runs of this flow")
	runsCmd.Flags().IntVar(&runsLimit, "limit", runs.DefaultListLimit, "Number of runs to list")
	RootCmd.AddCommand(runsCmd)
}
