// Package api provides the history server: an HTTP API over recorded
// generations plus an optional MCP endpoint.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3336")
	ListenAddr string

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}
