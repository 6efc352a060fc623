package cmd

import (
	"context"
	"fmt"

	"lease-sync/core/buildium"
	"lease-sync/core/config"
	"lease-sync/core/database"
	"lease-sync/core/hubspot"
	"lease-sync/core/logger"
	"lease-sync/core/retry"
	"lease-sync/core/storage"
	"lease-sync/feature/runs"
	"lease-sync/feature/sync"

	"go.uber.org/zap"
)

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *sync.Service
	repo     *runs.Repository
	archiver *runs.Archiver
}

// loadConfig loads configuration and creates the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, l, nil
}

// bootstrap validates configuration and wires the API clients, the sync
// service and the optional run history backends.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, l, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: l}
	if err := a.openHistory(ctx); err != nil {
		return nil, err
	}

	standard := retry.Standard().WithMaxRetries(cfg.Sync.MaxRetries)
	search := retry.Search().WithMaxRetries(cfg.Sync.MaxRetries)

	sourceExec := retry.NewExecutor(retry.Config{
		Name:        "buildium",
		Concurrency: cfg.Sync.APIConcurrency,
		Breaker:     cfg.Sync.Breaker,
	}, l)
	targetExec := retry.NewExecutor(retry.Config{
		Name:        "hubspot",
		Concurrency: cfg.Sync.APIConcurrency,
		Breaker:     cfg.Sync.Breaker,
	}, l)

	bcfg := cfg.Buildium
	bcfg.Policy = standard
	source, err := buildium.NewClient(bcfg, sourceExec, l.Named("buildium"))
	if err != nil {
		return nil, err
	}

	hcfg := cfg.HubSpot
	hcfg.Standard = standard
	hcfg.Search = search
	target, err := hubspot.NewClient(hcfg, targetExec, l.Named("hubspot"))
	if err != nil {
		return nil, err
	}

	deps := sync.Deps{
		Source:     source,
		Listings:   hubspot.NewListingAdapter(target, cfg.Sync.ListingObjectType, sync.ListingProperties()),
		Contacts:   hubspot.NewContactAdapter(target, sync.ContactProperties()),
		Companies:  hubspot.NewCompanyAdapter(target, sync.CompanyProperties()),
		Associator: hubspot.NewAssociations(target, cfg.Sync.ListingObjectType),
		Types:      cfg.Sync.Associations,
		Logger:     l,
	}
	if a.repo != nil {
		deps.Recorders = append(deps.Recorders, a.repo)
		deps.Seeder = a.repo
	}
	if a.archiver != nil {
		deps.Recorders = append(deps.Recorders, a.archiver)
	}

	a.service, err = sync.NewService(deps)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// openHistory connects the run history database and the report archive
// when they are enabled.
func (a *app) openHistory(ctx context.Context) error {
	if a.cfg.Database.Enabled {
		db, err := database.Connect(a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.repo = runs.NewRepository(db, a.logger.Named("runs"))
		if err := a.repo.Migrate(ctx); err != nil {
			return err
		}
	}

	if a.cfg.Storage.Enabled {
		client, err := storage.NewClient(a.cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, a.cfg.Storage.Bucket, a.cfg.Storage.Region); err != nil {
			return err
		}
		a.archiver = runs.NewArchiver(client, a.cfg.Storage.Bucket, a.cfg.Storage.KeepReports, a.logger.Named("archive"))
	}
	return nil
}
