package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"egireserve/internal/events"
	"egireserve/internal/reservation/handler"
	"egireserve/internal/reservation/ports"
	"egireserve/internal/reservation/service"
	"egireserve/internal/reservation/store"
	id "egireserve/pkg/domain"
	"egireserve/pkg/requestcontext"
)

const (
	testItemID   = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	testBidderID = "4a8f0d6e-43a1-4f55-9c38-1f1b0d2c9a11"
)

// dropEmitter discards events; handler tests assert on HTTP behavior only.
type dropEmitter struct{}

func (dropEmitter) Enqueue(...events.Event) {}

type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	service *service.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewInMemoryStore()

	svc, err := service.New(service.Config{
		Store:   st,
		Tx:      service.NewShardedItemTx(st, time.Second),
		Items:   ports.StaticReservability(true),
		Authz:   ports.OwnerAuthorization{},
		Mint:    ports.OpenMintWindow(true),
		Emitter: dropEmitter{},
		Logger:  logger,
	})
	s.Require().NoError(err)
	s.service = svc

	r := chi.NewRouter()
	// Stand-in for the auth middleware: a bearer token is taken verbatim as
	// the bidder UUID, with strong strength.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer "); ok {
				bidderID, err := id.ParseBidderID(token)
				if err != nil {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				ctx = requestcontext.WithBidderID(ctx, bidderID)
				ctx = requestcontext.WithAuthStrength(ctx, "strong")
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *HandlerSuite) TestCreateAnonymous() {
	rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"150.00"}`, "")

	s.Require().Equal(http.StatusCreated, rec.Code)
	body := s.decode(rec)
	s.Equal("150.00", body["amount_eur"])
	s.Equal("weak", body["kind"], "anonymous callers place weak reservations")
	s.Equal("active", body["status"])
	s.Equal("highest", body["rank_state"])
	s.Equal(float64(1), body["rank"])
	s.Equal(true, body["is_highest"])
	s.NotContains(body, "bidder_id")
}

func (s *HandlerSuite) TestCreateAuthenticated() {
	rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"150.00"}`, testBidderID)

	s.Require().Equal(http.StatusCreated, rec.Code)
	body := s.decode(rec)
	s.Equal("strong", body["kind"])
	s.Equal(testBidderID, body["bidder_id"])
}

func (s *HandlerSuite) TestCreateRejectsBadInput() {
	s.Run("missing amount", func() {
		rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{}`, "")
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("invalid_input", s.decode(rec)["error"])
	})

	s.Run("non-decimal amount", func() {
		rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"lots"}`, "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown field", func() {
		rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"10.00","rank":1}`, "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed item id", func() {
		rec := s.do(http.MethodPost, "/items/not-a-uuid/reservations", `{"amount_eur":"10.00"}`, "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestRankingOrdersByAmount() {
	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, "")
	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"300.00"}`, "")
	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"200.00"}`, "")

	rec := s.do(http.MethodGet, "/items/"+testItemID+"/ranking", "", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	rows := body["reservations"].([]any)
	s.Require().Len(rows, 3)
	s.Equal("300.00", rows[0].(map[string]any)["amount_eur"])
	s.Equal("200.00", rows[1].(map[string]any)["amount_eur"])
	s.Equal("100.00", rows[2].(map[string]any)["amount_eur"])
}

func (s *HandlerSuite) TestWithdraw() {
	rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, testBidderID)
	s.Require().Equal(http.StatusCreated, rec.Code)
	reservationID := s.decode(rec)["id"].(string)

	s.Run("requires authentication", func() {
		rec := s.do(http.MethodDelete, "/reservations/"+reservationID, "", "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("owner withdraws", func() {
		rec := s.do(http.MethodDelete, "/reservations/"+reservationID, "", testBidderID)
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("second withdrawal is gone", func() {
		rec := s.do(http.MethodDelete, "/reservations/"+reservationID, "", testBidderID)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestWithdrawByStranger() {
	rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, testBidderID)
	reservationID := s.decode(rec)["id"].(string)

	stranger := "9f8b3a2c-6d5e-4f71-8a92-0c1d2e3f4a5b"
	rec = s.do(http.MethodDelete, "/reservations/"+reservationID, "", stranger)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("unauthorized", s.decode(rec)["error"])
}

func (s *HandlerSuite) TestConfirmMint() {
	rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, testBidderID)
	reservationID := s.decode(rec)["id"].(string)

	rec = s.do(http.MethodPost, "/reservations/"+reservationID+"/confirm-mint", "", testBidderID)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal("confirmed", body["rank_state"])
	s.NotEmpty(body["mint_confirmed_at"])
}

func (s *HandlerSuite) TestConfirmMintNotHighest() {
	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"500.00"}`, "")
	rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, testBidderID)
	reservationID := s.decode(rec)["id"].(string)

	rec = s.do(http.MethodPost, "/reservations/"+reservationID+"/confirm-mint", "", testBidderID)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("mint_window_closed", s.decode(rec)["error"])
}

func (s *HandlerSuite) TestStats() {
	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, "")
	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"200.00"}`, "")

	rec := s.do(http.MethodGet, "/items/"+testItemID+"/stats", "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(float64(2), body["total_reservations"])
	s.Equal("200.00", body["highest_amount"])
	s.Equal("150.00", body["average_amount"])
}

func (s *HandlerSuite) TestCanReserve() {
	rec := s.do(http.MethodGet, "/items/"+testItemID+"/can-reserve", "", testBidderID)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["can_reserve"])
	s.Equal(false, body["has_existing"])

	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, testBidderID)

	rec = s.do(http.MethodGet, "/items/"+testItemID+"/can-reserve", "", testBidderID)
	body = s.decode(rec)
	s.Equal(true, body["has_existing"])
	s.NotNil(body["existing"])
}

func (s *HandlerSuite) TestMyReservations() {
	s.Run("requires authentication", func() {
		rec := s.do(http.MethodGet, "/me/reservations", "", "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, testBidderID)
	s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"50.00"}`, "")

	rec := s.do(http.MethodGet, "/me/reservations", "", testBidderID)
	s.Require().Equal(http.StatusOK, rec.Code)
	rows := s.decode(rec)["reservations"].([]any)
	s.Require().Len(rows, 1)
	s.Equal(testBidderID, rows[0].(map[string]any)["bidder_id"])
}

func (s *HandlerSuite) TestGetReservation() {
	rec := s.do(http.MethodPost, "/items/"+testItemID+"/reservations", `{"amount_eur":"100.00"}`, "")
	reservationID := s.decode(rec)["id"].(string)

	rec = s.do(http.MethodGet, "/reservations/"+reservationID, "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(reservationID, s.decode(rec)["id"])

	rec = s.do(http.MethodGet, "/reservations/"+id.NewReservationID().String(), "", "")
	s.Equal(http.StatusNotFound, rec.Code)
}
