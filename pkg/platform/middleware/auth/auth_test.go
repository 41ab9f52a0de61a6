package auth_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	id "egireserve/pkg/domain"
	"egireserve/pkg/platform/middleware/auth"
	"egireserve/pkg/requestcontext"
)

const bidderUUID = "4a8f0d6e-43a1-4f55-9c38-1f1b0d2c9a11"

type stubValidator struct {
	claims *auth.Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (*auth.Claims, error) {
	return s.claims, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func captureContext(t *testing.T, mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, id.BidderID, string) {
	t.Helper()
	var bidderID id.BidderID
	var strength string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bidderID = requestcontext.BidderID(r.Context())
		strength = requestcontext.AuthStrength(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	return rec, bidderID, strength
}

func TestOptionalAuthAnonymousPassesThrough(t *testing.T) {
	mw := auth.OptionalAuth(stubValidator{}, discardLogger())

	rec, bidderID, strength := captureContext(t, mw, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, bidderID.IsNil())
	require.Equal(t, "weak", strength)
}

func TestOptionalAuthValidToken(t *testing.T) {
	mw := auth.OptionalAuth(stubValidator{
		claims: &auth.Claims{BidderID: bidderUUID, AuthStrength: "strong"},
	}, discardLogger())

	rec, bidderID, strength := captureContext(t, mw, "Bearer sometoken")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, bidderUUID, bidderID.String())
	require.Equal(t, "strong", strength)
}

func TestOptionalAuthInvalidToken(t *testing.T) {
	mw := auth.OptionalAuth(stubValidator{err: errors.New("bad signature")}, discardLogger())

	rec, _, _ := captureContext(t, mw, "Bearer sometoken")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "unauthorized")
}

func TestOptionalAuthMalformedBidderID(t *testing.T) {
	mw := auth.OptionalAuth(stubValidator{
		claims: &auth.Claims{BidderID: "not-a-uuid", AuthStrength: "strong"},
	}, discardLogger())

	rec, _, _ := captureContext(t, mw, "Bearer sometoken")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBidder(t *testing.T) {
	mw := auth.RequireBidder(discardLogger())
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		mw(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("authenticated passes", func(t *testing.T) {
		bidderID, err := id.ParseBidderID(bidderUUID)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithBidderID(req.Context(), bidderID))
		rec := httptest.NewRecorder()
		mw(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
