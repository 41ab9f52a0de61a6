// Package auth attaches bidder identity to the request context. Reservations
// accept anonymous callers, so the default middleware is optional: a missing
// Authorization header passes through as an anonymous weak-auth request, while
// a present but invalid bearer token is rejected.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "egireserve/pkg/domain"
	"egireserve/pkg/requestcontext"
)

// TokenValidator validates a bearer token string.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims are the validated token claims the middleware needs.
type Claims struct {
	BidderID     string
	AuthStrength string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// OptionalAuth resolves a bearer token when present and stores the bidder
// identity and auth strength on the context. Requests without a token proceed
// anonymously with weak strength.
func OptionalAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			bidderID, err := id.ParseBidderID(claims.BidderID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed bidder id in token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithBidderID(ctx, bidderID)
			ctx = requestcontext.WithAuthStrength(ctx, claims.AuthStrength)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireBidder rejects requests that did not authenticate. Used on routes
// that act on the caller's own reservations.
func RequireBidder(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.BidderID(ctx).IsNil() {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
