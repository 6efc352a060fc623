// Package server holds the HTTP server configuration.
//
// The serve command owns the server startup; this package defines the
// listen port, the API key protecting every route and the shutdown grace
// period during which triggered runs are asked to stop.
package server
