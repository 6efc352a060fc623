// Package buildium is the read-mostly client for the property management
// source system.
//
// Requests authenticate with the x-buildium-client-id and
// x-buildium-client-secret headers, page with limit/offset, and send array
// filters as repeated query parameters. Every call goes through a
// retry.Executor so the client shares the source system's rate budget with
// every other lane of the run.
package buildium
