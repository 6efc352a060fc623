package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"lease-sync/feature/sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrAllFailed is returned when every item of a run errored.
var ErrAllFailed = errors.New("every item of the run failed")

var syncOpts struct {
	limit             int
	force             bool
	createOnly        bool
	dryRun            bool
	full              bool
	properties        []int
	units             []int
	owners            []int
	concurrency       int
	batchSize         int
	associationOwners bool
}

// syncCmd is the parent command for all sync flows.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync units, leases, tenants and owners from Buildium into HubSpot",
	Long: `Run one sync flow. Runs are idempotent: a second run over unchanged
data skips every record.

Examples:
  # Preview the first 10 units without writing
  sync units --limit 10 --dry-run

  # Incremental lease sync since the last watermark
  sync leases

  # Full lease sync for two properties, overwriting HubSpot values
  sync leases --full --force --property 140054 --property 77001

  # One tenant, one unit, one property
  sync tenant 5521
  sync unit 90013
  sync property 140054`,
}

var syncUnitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Create or update a listing for every unit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, func(ctx context.Context, s *sync.Service, opts sync.Options) (*sync.Stats, error) {
			return s.SyncUnits(ctx, opts)
		})
	},
}

var syncLeasesCmd = &cobra.Command{
	Use:   "leases",
	Short: "Sync leases changed since the last watermark",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, func(ctx context.Context, s *sync.Service, opts sync.Options) (*sync.Stats, error) {
			return s.SyncLeases(ctx, opts)
		})
	},
}

var syncOwnersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Sync rental owners and link them to their units",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, func(ctx context.Context, s *sync.Service, opts sync.Options) (*sync.Stats, error) {
			return s.SyncOwners(ctx, opts)
		})
	},
}

var syncTenantCmd = &cobra.Command{
	Use:   "tenant <tenant id>",
	Short: "Sync one tenant across all of their leases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("tenant", args[0])
		if err != nil {
			return err
		}
		return runSync(cmd, func(ctx context.Context, s *sync.Service, opts sync.Options) (*sync.Stats, error) {
			return s.SyncTenant(ctx, id, opts)
		})
	},
}

var syncUnitCmd = &cobra.Command{
	Use:   "unit <unit id>",
	Short: "Sync one unit with its leases and tenants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("unit", args[0])
		if err != nil {
			return err
		}
		return runSync(cmd, func(ctx context.Context, s *sync.Service, opts sync.Options) (*sync.Stats, error) {
			return s.SyncUnit(ctx, id, opts)
		})
	},
}

var syncPropertyCmd = &cobra.Command{
	Use:   "property <property id>",
	Short: "Sync every unit, lease, tenant and owner of one property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("property", args[0])
		if err != nil {
			return err
		}
		return runSync(cmd, func(ctx context.Context, s *sync.Service, opts sync.Options) (*sync.Stats, error) {
			return s.SyncProperty(ctx, id, opts)
		})
	},
}

func init() {
	flags := syncCmd.PersistentFlags()
	flags.IntVar(&syncOpts.limit, "limit", 0, "Stop after this many items created or updated something (0 = no limit)")
	flags.BoolVar(&syncOpts.force, "force", false, "Overwrite values that differ in HubSpot")
	flags.BoolVar(&syncOpts.createOnly, "create-only", false, "Only create missing records, never update")
	flags.BoolVar(&syncOpts.dryRun, "dry-run", false, "Report what would change without writing")
	flags.BoolVar(&syncOpts.full, "full", false, "Ignore the lease watermark")
	flags.IntSliceVar(&syncOpts.properties, "property", nil, "Restrict to property ids (repeatable)")
	flags.IntSliceVar(&syncOpts.units, "unit", nil, "Restrict to unit ids (repeatable)")
	flags.IntSliceVar(&syncOpts.owners, "owner", nil, "Restrict to rental owner ids (repeatable)")
	flags.IntVar(&syncOpts.concurrency, "concurrency", 0, "Items processed at once (0 = config value)")
	flags.IntVar(&syncOpts.batchSize, "batch-size", 0, "Minimum source page size (0 = config value)")
	syncOwnersCmd.Flags().BoolVar(&syncOpts.associationOwners, "association-owners", false, "Also link association owners to the selected units")
	syncCmd.MarkFlagsMutuallyExclusive("force", "create-only")

	syncCmd.AddCommand(syncUnitsCmd, syncLeasesCmd, syncOwnersCmd, syncTenantCmd, syncUnitCmd, syncPropertyCmd)
	RootCmd.AddCommand(syncCmd)
}

type flowFunc func(ctx context.Context, s *sync.Service, opts sync.Options) (*sync.Stats, error)

// runSync wires the service, runs one flow until it ends or the process is
// interrupted, and logs the report.
func runSync(cmd *cobra.Command, flow flowFunc) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	stats, err := flow(ctx, a.service, buildOptions(a))
	if err != nil {
		return err
	}
	printSyncReport(a.logger, stats)

	if stats.Failed() {
		return ErrAllFailed
	}
	return nil
}

func buildOptions(a *app) sync.Options {
	opts := sync.Options{
		Limit:             syncOpts.limit,
		PropertyIDs:       syncOpts.properties,
		UnitIDs:           syncOpts.units,
		OwnerIDs:          syncOpts.owners,
		DryRun:            syncOpts.dryRun || a.cfg.Sync.DryRun,
		Force:             syncOpts.force,
		CreateOnly:        syncOpts.createOnly,
		Full:              syncOpts.full,
		Concurrency:       syncOpts.concurrency,
		BatchSize:         syncOpts.batchSize,
		AssociationOwners: syncOpts.associationOwners,
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = a.cfg.Sync.Concurrency
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = a.cfg.Sync.BatchSize
	}
	return opts
}

func parseID(kind, s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

// printSyncReport logs the per-entity counts and a sample of failures.
func printSyncReport(l *zap.Logger, s *sync.Stats) {
	l.Info("Sync report",
		zap.String("flow", string(s.Flow)),
		zap.String("run_id", s.RunID),
		zap.Bool("dry_run", s.DryRun),
		zap.Any("listings", s.Listings),
		zap.Any("contacts", s.Contacts),
		zap.Any("companies", s.Companies),
		zap.Any("associations", s.Associations),
		zap.Int("written", s.Written),
		zap.Bool("limit_reached", s.LimitReached),
		zap.Bool("stopped", s.Stopped),
		zap.Bool("watermark_advanced", s.WatermarkAdvanced),
	)

	errs := s.Errors()
	maxShow := 5
	if len(errs) < maxShow {
		maxShow = len(errs)
	}
	for _, item := range errs[:maxShow] {
		l.Warn("Failed item",
			zap.String("entity", item.Entity),
			zap.String("key", item.Key),
			zap.String("kind", string(item.ErrorKind)),
			zap.String("error", item.Error),
		)
	}
	if len(errs) > maxShow {
		l.Warn("Additional failures not shown", zap.Int("count", len(errs)-maxShow))
	}
}
