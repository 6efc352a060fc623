package config

import (
	"reflect"
	"strings"

	"lease-sync/core/apierr"
	"lease-sync/core/buildium"
	"lease-sync/core/database"
	"lease-sync/core/hubspot"
	"lease-sync/core/lifecycle"
	"lease-sync/core/logger"
	"lease-sync/core/server"
	"lease-sync/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the run report archive.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the run history database.
	Database database.Config `mapstructure:"database"`
	// Buildium holds the source system credentials and paging limits.
	Buildium buildium.Config `mapstructure:"buildium"`
	// HubSpot holds the target system credentials.
	HubSpot hubspot.Config `mapstructure:"hubspot"`
	// Sync holds settings shared by every flow.
	Sync SyncConfig `mapstructure:"sync"`
}

// SyncConfig holds settings shared by every flow.
type SyncConfig struct {
	// ListingObjectType is the target's custom object type for listings.
	ListingObjectType string `mapstructure:"listing_object_type" default:""`
	// Concurrency is the number of items processed at once.
	Concurrency int `mapstructure:"concurrency" default:"4"`
	// BatchSize is the minimum page size requested from the source.
	BatchSize int `mapstructure:"batch_size" default:"100"`
	// APIConcurrency caps in-flight calls per external system.
	APIConcurrency int `mapstructure:"api_concurrency" default:"4"`
	// MaxRetries is the retry budget of every call.
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// Breaker enables the circuit breaker around each external system.
	Breaker bool `mapstructure:"breaker" default:"true"`
	// DryRun forces every run to compute changes without writing them.
	DryRun bool `mapstructure:"dry_run" default:"false"`
	// Associations holds the target's association type ids.
	Associations lifecycle.TypeIDs `mapstructure:"associations"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// A missing .env is normal in production.
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. BUILDIUM_CLIENT_ID -> buildium.client_id)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the settings every sync needs. Failures are
// configuration errors and must stop the process before any flow starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Buildium.ClientID) == "" || strings.TrimSpace(c.Buildium.ClientSecret) == "" {
		return apierr.Configuration("BUILDIUM_CLIENT_ID and BUILDIUM_CLIENT_SECRET are required")
	}
	if strings.TrimSpace(c.HubSpot.Token) == "" {
		return apierr.Configuration("HUBSPOT_TOKEN is required")
	}
	if strings.TrimSpace(c.Sync.ListingObjectType) == "" {
		return apierr.Configuration("SYNC_LISTING_OBJECT_TYPE is required")
	}
	if err := c.Sync.Associations.Validate(); err != nil {
		return err
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case database.DriverMySQL, database.DriverSQLite:
		default:
			return apierr.Configuration("unsupported database driver %q", c.Database.Driver)
		}
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.Bucket) == "" {
		return apierr.Configuration("STORAGE_BUCKET is required when the report archive is enabled")
	}
	return nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
