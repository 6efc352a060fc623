// Package database opens the run history database.
//
// It wraps GORM with the mysql and sqlite dialectors. The connection is
// optional: the sync flows run without it and only lose run history.
//
// # Schema Inspection
//
// GetTableColumns and MissingColumns read a table's columns (SHOW COLUMNS on
// mysql, PRAGMA table_info on sqlite) so callers can verify a schema after
// migrating it.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    logger.Warn("Run history disabled", zap.Error(err))
//	}
package database
