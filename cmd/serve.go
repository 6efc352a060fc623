package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"lease-sync/core/loader"
	"lease-sync/core/logger"
	"lease-sync/core/middleware/auth"
	"lease-sync/core/middleware/rayid"
	"lease-sync/feature/runs"
	"lease-sync/feature/sync"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// @title lease-sync API
// @version 1.0
// @description Trigger Buildium to HubSpot syncs and read the run history.
// @BasePath /

// serveCmd starts the HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the HTTP server exposing sync triggers, run history and a health check.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Cancelled on SIGINT/SIGTERM; triggered runs are bound to it.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		logg := a.logger
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		app := newServer(ctx, a)

		errCh := make(chan error, 1)
		go func() {
			logg.Info("Starting server", zap.String("address", a.cfg.Server.Address()))
			errCh <- app.Listen(a.cfg.Server.Address())
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logg.Info("Shutting down server...")
		return app.ShutdownWithTimeout(a.cfg.Server.ShutdownTimeout())
	},
}

// newServer builds the fiber app with middleware and every feature loaded.
func newServer(ctx context.Context, a *app) *fiber.App {
	logg := a.logger
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// RayID first so every log line of a request carries it.
	app.Use(rayid.New())

	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Info("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	if a.cfg.Server.ApiKey == "" {
		logg.Warn("SERVER_API_KEY is empty, the API is unprotected")
	}
	app.Use(auth.New(auth.Config{ApiKey: a.cfg.Server.ApiKey, Public: []string{"/health"}}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	mgr := loader.NewManager(logg)
	mgr.Register(sync.NewFeature(ctx, a.service))
	mgr.Register(runs.NewFeature(runs.NewService(a.repo, a.archiver, logg.Named("runs"))))

	if _, err := mgr.LoadAll(app); err != nil {
		logg.Fatal("Failed to load features", zap.Error(err))
	}
	return app
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
