package cmd

import (
	"fmt"
	"os"

	"lease-sync/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "lease-sync",
	Short: "Buildium to HubSpot lease sync",
	Long: `lease-sync mirrors Buildium units, leases, tenants and owners into HubSpot
listings, contacts and companies, and keeps tenant lifecycle associations current.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Errors are reported through the standard logger in console form,
		// with development timestamps.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
