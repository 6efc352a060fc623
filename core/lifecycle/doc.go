// Package lifecycle drives the tenant association lifecycle between a
// contact and a listing.
//
// The desired association type is derived fresh from the lease status on
// every run (Future, Active, or inactive for Past/Expired/Terminated), never
// from the association already present. Removing the other lifecycle types
// and adding the desired one are two separate calls, so a crash in between
// can leave neither or both; re-running Apply repairs either state.
//
// Owner association types are never touched by Apply.
package lifecycle
