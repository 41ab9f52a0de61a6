// Package handler exposes the reservation lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"egireserve/internal/reservation/models"
	"egireserve/internal/reservation/service"
	id "egireserve/pkg/domain"
	dErrors "egireserve/pkg/domain-errors"
	"egireserve/pkg/platform/httputil"
	"egireserve/pkg/platform/middleware/auth"
	"egireserve/pkg/requestcontext"
)

// Service is the slice of the reservation service the HTTP layer needs.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Reservation, error)
	Withdraw(ctx context.Context, reservationID id.ReservationID, requesterID id.BidderID) error
	ConfirmMint(ctx context.Context, reservationID id.ReservationID, requesterID id.BidderID) (*models.Reservation, error)
	Get(ctx context.Context, reservationID id.ReservationID) (*models.Reservation, error)
	Ranking(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error)
	History(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error)
	Stats(ctx context.Context, itemID id.ItemID) (service.Stats, error)
	CanReserve(ctx context.Context, itemID id.ItemID, bidderID *id.BidderID) (service.CanReserveResult, error)
	ListByBidder(ctx context.Context, bidderID id.BidderID) ([]*models.Reservation, error)
}

// Handler handles reservation endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a reservation Handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the reservation routes. Reads and creation are open to
// anonymous callers; withdrawal and mint confirmation require a bidder token.
func (h *Handler) Register(r chi.Router) {
	r.Route("/items/{itemID}", func(r chi.Router) {
		r.Post("/reservations", h.handleCreate)
		r.Get("/reservations", h.handleHistory)
		r.Get("/ranking", h.handleRanking)
		r.Get("/stats", h.handleStats)
		r.Get("/can-reserve", h.handleCanReserve)
	})
	r.Route("/reservations/{reservationID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireBidder(h.logger))
			r.Delete("/", h.handleWithdraw)
			r.Post("/confirm-mint", h.handleConfirmMint)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBidder(h.logger))
		r.Get("/me/reservations", h.handleMyReservations)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var body createReservationRequest
	if err := httputil.Decode(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := body.amount()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req := service.CreateRequest{
		ItemID:    itemID,
		AmountEUR: amount,
		Kind:      models.Kind(requestcontext.AuthStrength(ctx)),
	}
	if bidderID := requestcontext.BidderID(ctx); !bidderID.IsNil() {
		req.BidderID = &bidderID
	}

	row, err := h.service.Create(ctx, req)
	if err != nil {
		h.logError(ctx, "create reservation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toReservationResponse(row))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservationID, err := id.ParseReservationID(chi.URLParam(r, "reservationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Withdraw(ctx, reservationID, requestcontext.BidderID(ctx)); err != nil {
		h.logError(ctx, "withdraw reservation failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirmMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservationID, err := id.ParseReservationID(chi.URLParam(r, "reservationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	row, err := h.service.ConfirmMint(ctx, reservationID, requestcontext.BidderID(ctx))
	if err != nil {
		h.logError(ctx, "confirm mint failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReservationResponse(row))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservationID, err := id.ParseReservationID(chi.URLParam(r, "reservationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	row, err := h.service.Get(ctx, reservationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReservationResponse(row))
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.service.Ranking(ctx, itemID)
	if err != nil {
		h.logError(ctx, "fetch ranking failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rankingResponse{
		ItemID:       itemID.String(),
		Reservations: toReservationResponses(rows),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.service.History(ctx, itemID)
	if err != nil {
		h.logError(ctx, "fetch history failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rankingResponse{
		ItemID:       itemID.String(),
		Reservations: toReservationResponses(rows),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	st, err := h.service.Stats(ctx, itemID)
	if err != nil {
		h.logError(ctx, "compute stats failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatsResponse(itemID.String(), st))
}

func (h *Handler) handleCanReserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var bidderID *id.BidderID
	if v := requestcontext.BidderID(ctx); !v.IsNil() {
		bidderID = &v
	}

	result, err := h.service.CanReserve(ctx, itemID, bidderID)
	if err != nil {
		h.logError(ctx, "can-reserve check failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := canReserveResponse{
		CanReserve:  result.CanReserve,
		Reason:      result.Reason,
		HasExisting: result.HasExisting,
	}
	if result.Existing != nil {
		v := toReservationResponse(result.Existing)
		resp.Existing = &v
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := h.service.ListByBidder(ctx, requestcontext.BidderID(ctx))
	if err != nil {
		h.logError(ctx, "list own reservations failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		Reservations []reservationResponse `json:"reservations"`
	}{Reservations: toReservationResponses(rows)})
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.CodeOf(err) == dErrors.CodeInconsistentState {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
