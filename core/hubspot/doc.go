// Package hubspot is the client for the CRM target system.
//
// It covers the object endpoints used by the sync (contacts, companies and
// the custom listing object), filter-group search, batch read/create chunked
// to the API maximum, and v4 typed associations. Search calls run under the
// slower search retry policy; everything else uses the standard one.
//
// Adapters in this package plug the objects into reconcile.Reconciler, and
// Associations implements lifecycle.Associator.
package hubspot
