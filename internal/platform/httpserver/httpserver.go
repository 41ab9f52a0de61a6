// Package httpserver constructs the reservation API server.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server. Per-request deadlines are enforced by the router's
// timeout middleware; the limits here bound slow and idle connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
