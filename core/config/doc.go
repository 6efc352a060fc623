// Package config provides configuration management for lease-sync.
//
// It utilizes Viper for loading configuration from environment variables
// and an optional .env file. Defaults come from the `default` struct tags of
// each section.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Buildium: source API credentials and paging limits (BUILDIUM_*)
//   - HubSpot: target API token and batch size (HUBSPOT_*)
//   - Sync: listing object type, concurrency, retries and association type ids (SYNC_*)
//   - Database: run history connection (DATABASE_*)
//   - Storage: run report archive (STORAGE_*)
//   - Server: HTTP port and API key (SERVER_*)
//   - Log: logging level and format (LOG_*)
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
