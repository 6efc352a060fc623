// Package runs keeps the history of sync runs.
//
// Every finished run is handed to the registered recorders:
//
//   - Repository persists the run and its failed items through GORM
//     (tables sync_runs and sync_run_errors) and serves the last advanced
//     watermark of a flow so a restarted process resumes incremental runs.
//   - Archiver uploads the full run report as JSON to object storage under
//     reports/<flow>/<run id>.json.
//
// The feature exposes the history over HTTP:
//
//	GET /runs?flow=leases&limit=20
//	GET /runs/:id
//	GET /runs/:id/report
package runs
