// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
package requestcontext

import (
	"context"
	"time"

	id "egireserve/pkg/domain"
)

type (
	bidderIDKey    struct{}
	bidderKindKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithBidderID stores the authenticated bidder's identity.
func WithBidderID(ctx context.Context, bidderID id.BidderID) context.Context {
	return context.WithValue(ctx, bidderIDKey{}, bidderID)
}

// BidderID returns the authenticated bidder's identity, or the zero value for
// anonymous requests.
func BidderID(ctx context.Context) id.BidderID {
	v, _ := ctx.Value(bidderIDKey{}).(id.BidderID)
	return v
}

// WithAuthStrength records how strongly the caller was authenticated
// ("strong" for a verified bearer token, "weak" otherwise).
func WithAuthStrength(ctx context.Context, strength string) context.Context {
	return context.WithValue(ctx, bidderKindKey{}, strength)
}

// AuthStrength returns the recorded authentication strength, defaulting to
// "weak" when nothing was set.
func AuthStrength(ctx context.Context) string {
	if v, ok := ctx.Value(bidderKindKey{}).(string); ok && v != "" {
		return v
	}
	return "weak"
}

// WithRequestID stores the request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request correlation ID, or "" when absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithTime pins the observed time for this request. Tests use this to make
// creation and supersession timestamps deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
