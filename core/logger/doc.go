// Package logger builds the zap logger used across lease-sync.
//
// Level debug selects zap's development config; any other level uses the
// production config at that level. Format console switches to colored
// console output, otherwise entries are JSON.
//
// Requests served by the serve command carry a ray id. WithRayID attaches
// it to a logger so every line of one request can be correlated:
//
//	l := logger.WithRayID(log, c)
//	l.Error("Handler failed", zap.Error(err))
//
// Sync runs attach flow and run_id fields the same way.
package logger
