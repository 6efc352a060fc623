// Package paginate drives offset and cursor pagination over list endpoints.
//
// The package never performs I/O itself: callers pass a page function that
// fetches one page (normally through a retry.Executor), and the walkers
// decide when to stop. Offset walks end on the first short page or when the
// safety ceiling is reached, in which case a truncation warning is logged
// instead of looping forever.
//
// Filters builds query strings for the source API. Array filters are written
// as repeated parameters (propertyids=1&propertyids=2). The upstream API
// silently returns zero or wrongly scoped results for comma-joined or JSON
// encoded arrays, so Filters is the only supported way to add them.
package paginate
