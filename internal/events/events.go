// Package events defines the ranking transition events the reservation core
// exposes to external consumers (notification rendering, certificate
// issuance), and the post-commit dispatch machinery that delivers them.
//
// Events are published after the owning transaction commits. Delivery is
// fail-open and at-least-once: a publish failure is logged, never propagated
// back into the already-committed ranking state, and consumers must treat
// duplicates as idempotent.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	id "egireserve/pkg/domain"
)

// Type enumerates the ranking transitions observable from outside.
type Type string

const (
	// TypeBecameHighest fires when a row transitions into the highest state.
	TypeBecameHighest Type = "became_highest"
	// TypeSuperseded fires when a row is displaced from the highest state.
	TypeSuperseded Type = "superseded"
	// TypeRankChanged fires when a row's position moved without a state
	// transition (e.g. promoted from #3 to #2 by a withdrawal above it).
	TypeRankChanged Type = "rank_changed"
	// TypeCompetitorWithdrew fires to every row whose rank improved as a
	// direct result of another row's withdrawal or expiry.
	TypeCompetitorWithdrew Type = "competitor_withdrew"
)

// Event is the envelope delivered to every publisher. BidderID is nil for
// anonymous reservations; renderers skip those.
type Event struct {
	Type          Type             `json:"type"`
	ItemID        id.ItemID        `json:"item_id"`
	ReservationID id.ReservationID `json:"reservation_id"`
	BidderID      *id.BidderID     `json:"bidder_id,omitempty"`
	AmountEUR     decimal.Decimal  `json:"amount_eur"`
	OldRank       int              `json:"old_rank,omitempty"`
	NewRank       int              `json:"new_rank,omitempty"`
	// SupersededBy carries the displacing reservation on superseded events.
	SupersededBy *id.ReservationID `json:"superseded_by,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// MarshalJSON renders IDs in their string UUID form.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type          Type    `json:"type"`
		ItemID        string  `json:"item_id"`
		ReservationID string  `json:"reservation_id"`
		BidderID      *string `json:"bidder_id,omitempty"`
		AmountEUR     string  `json:"amount_eur"`
		OldRank       int     `json:"old_rank,omitempty"`
		NewRank       int     `json:"new_rank,omitempty"`
		SupersededBy  *string `json:"superseded_by,omitempty"`
		OccurredAt    string  `json:"occurred_at"`
	}
	w := wire{
		Type:          e.Type,
		ItemID:        e.ItemID.String(),
		ReservationID: e.ReservationID.String(),
		AmountEUR:     e.AmountEUR.StringFixed(2),
		OldRank:       e.OldRank,
		NewRank:       e.NewRank,
		OccurredAt:    e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if e.BidderID != nil {
		s := e.BidderID.String()
		w.BidderID = &s
	}
	if e.SupersededBy != nil {
		s := e.SupersededBy.String()
		w.SupersededBy = &s
	}
	return json.Marshal(w)
}

// Publisher delivers events to one external sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
