// Package requesttime provides middleware for request-scoped time. Every
// operation within one HTTP request observes the same "now", so a creation
// and the supersession timestamps it triggers always agree.
package requesttime

import (
	"net/http"
	"time"

	"egireserve/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and stores
// it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		ctx := requestcontext.WithTime(r.Context(), now)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
