package handler

import (
	"time"

	"egireserve/internal/reservation/models"
	"egireserve/internal/reservation/service"
)

type reservationResponse struct {
	ID              string     `json:"id"`
	ItemID          string     `json:"item_id"`
	BidderID        *string    `json:"bidder_id,omitempty"`
	Kind            string     `json:"kind"`
	AmountEUR       string     `json:"amount_eur"`
	Status          string     `json:"status"`
	RankState       string     `json:"rank_state"`
	Rank            int        `json:"rank,omitempty"`
	PreviousRank    int        `json:"previous_rank,omitempty"`
	IsHighest       bool       `json:"is_highest"`
	SupersededBy    *string    `json:"superseded_by,omitempty"`
	SupersededAt    *time.Time `json:"superseded_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	MintConfirmedAt *time.Time `json:"mint_confirmed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toReservationResponse(r *models.Reservation) reservationResponse {
	resp := reservationResponse{
		ID:              r.ID.String(),
		ItemID:          r.ItemID.String(),
		Kind:            string(r.Kind),
		AmountEUR:       r.AmountEUR.StringFixed(2),
		Status:          string(r.Status),
		RankState:       string(r.RankState),
		Rank:            r.Rank(),
		PreviousRank:    r.PreviousRank(),
		IsHighest:       r.IsHighest,
		SupersededAt:    r.SupersededAt,
		ExpiresAt:       r.ExpiresAt,
		MintConfirmedAt: r.MintConfirmedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.BidderID != nil {
		v := r.BidderID.String()
		resp.BidderID = &v
	}
	if r.SupersededBy != nil {
		v := r.SupersededBy.String()
		resp.SupersededBy = &v
	}
	return resp
}

func toReservationResponses(rows []*models.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toReservationResponse(r))
	}
	return out
}

type rankingResponse struct {
	ItemID       string                `json:"item_id"`
	Reservations []reservationResponse `json:"reservations"`
}

type statsResponse struct {
	ItemID            string `json:"item_id"`
	TotalReservations int    `json:"total_reservations"`
	HighestAmount     string `json:"highest_amount,omitempty"`
	LowestAmount      string `json:"lowest_amount,omitempty"`
	AverageAmount     string `json:"average_amount,omitempty"`
	MedianAmount      string `json:"median_amount,omitempty"`
}

func toStatsResponse(itemID string, st service.Stats) statsResponse {
	resp := statsResponse{
		ItemID:            itemID,
		TotalReservations: st.TotalReservations,
	}
	if st.TotalReservations > 0 {
		resp.HighestAmount = st.HighestAmount.StringFixed(2)
		resp.LowestAmount = st.LowestAmount.StringFixed(2)
		resp.AverageAmount = st.AverageAmount.StringFixed(2)
		resp.MedianAmount = st.MedianAmount.StringFixed(2)
	}
	return resp
}

type canReserveResponse struct {
	CanReserve  bool                 `json:"can_reserve"`
	Reason      string               `json:"reason,omitempty"`
	HasExisting bool                 `json:"has_existing"`
	Existing    *reservationResponse `json:"existing,omitempty"`
}
