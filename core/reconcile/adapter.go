package reconcile

import "context"

// Adapter defines how one target object type is looked up and written.
// Each adapter (listings, contacts, companies) knows its natural key and the
// endpoints behind it.
type Adapter interface {
	// Name returns the object type name (e.g., "listings", "contacts").
	Name() string

	// KeyProperty returns the property that holds the natural key
	// (e.g., "buildium_unit_id", "email").
	KeyProperty() string

	// Unique reports whether the target enforces a unique index on the key
	// property. Non-unique lookups go through search and are racy.
	Unique() bool

	// Find returns the record for key, or nil when none exists.
	// A not-found response is not an error.
	Find(ctx context.Context, key string) (*Record, error)

	// Create creates a record from fields.
	Create(ctx context.Context, fields Fields) (*Record, error)

	// Update writes fields onto the record with the given id and returns
	// the updated record.
	Update(ctx context.Context, id string, fields Fields) (*Record, error)
}

// BatchFinder is implemented by adapters that can resolve many keys in one
// request. Missing keys are absent from the returned map.
type BatchFinder interface {
	FindBatch(ctx context.Context, keys []string) (map[string]*Record, error)
}
