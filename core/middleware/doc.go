// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation (X-API-Key) protecting the book, user and circulation endpoints.
//   - rayid: assigns every request a RayID, stored in the context locals and echoed
//     in the X-Ray-ID response header so logs can be correlated.
//
// Both are registered globally by the start command; rayid first.
package middleware
