// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation protecting every route except the public ones.
//   - rayid: tags every request with a ray id, stored in the context locals
//     and echoed in the X-Ray-ID response header for log correlation.
package middleware
