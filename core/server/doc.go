// Package server holds the HTTP server configuration.
//
// While the start command handles the server startup, this package defines the
// listen port, the API key that protects the circulation endpoints, the user
// registration rate limit and the graceful shutdown bound.
//
// # Usage
//
// This package is embedded by core/config and read by cmd/start.go.
package server
