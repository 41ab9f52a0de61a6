// Package models defines the reservation row and its two-level state machine.
//
// A reservation is one monetary pre-order bid on a not-yet-minted item. Rows
// are never physically deleted: withdrawal and expiry are status transitions,
// so the full bid history stays available for audit and certificate
// verification.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "egireserve/pkg/domain"
)

// Kind records the bidder's authentication strength at the time of bidding.
// It is display metadata only and never a ranking input.
type Kind string

const (
	KindWeak   Kind = "weak"
	KindStrong Kind = "strong"
)

// Status is the coarse lifecycle state, independent of ranking.
type Status string

const (
	StatusActive    Status = "active"
	StatusWithdrawn Status = "withdrawn"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
)

// RankState is the ranking-relevant sub-state.
//
//	pending → highest ⇄ superseded → confirmed → minted
//	pending|highest|superseded → withdrawn (terminal, user-initiated)
//	pending|highest|superseded → expired   (terminal, time-initiated)
type RankState string

const (
	RankStatePending    RankState = "pending"
	RankStateHighest    RankState = "highest"
	RankStateSuperseded RankState = "superseded"
	RankStateConfirmed  RankState = "confirmed"
	RankStateMinted     RankState = "minted"
	RankStateWithdrawn  RankState = "withdrawn"
	RankStateExpired    RankState = "expired"
)

// Terminal reports whether no further transitions are allowed from s.
func (s RankState) Terminal() bool {
	return s == RankStateWithdrawn || s == RankStateExpired || s == RankStateMinted
}

// Reservation is one monetary bid on one item.
type Reservation struct {
	ID       id.ReservationID
	ItemID   id.ItemID
	BidderID *id.BidderID // nil for anonymous reservations
	Kind     Kind

	// AmountEUR is the canonical amount (EUR, 2 decimal places), the sole
	// ranking key besides creation time.
	AmountEUR decimal.Decimal

	Status    Status
	RankState RankState

	// RankPosition is the 1-based position among active reservations for the
	// item; nil until the first recompute.
	RankPosition *int
	// PreviousRankPosition is the last known position, kept so callers can
	// report up/down/same/new deltas.
	PreviousRankPosition *int
	// IsHighest is true iff RankPosition == 1 and the row is active.
	IsHighest bool
	// IsCurrent is false once the row left the ranking (withdrawn/expired).
	// A merely outranked row stays current.
	IsCurrent bool

	// SupersededBy points at the reservation that displaced this row from
	// rank 1. Only ever set on a row that previously held the top position.
	SupersededBy *id.ReservationID
	SupersededAt *time.Time

	// ExpiresAt is the optional deadline for weak reservations. Strong
	// reservations never expire.
	ExpiresAt *time.Time

	// Mint window, assigned externally once the pre-launch phase closes.
	MintWindowStartsAt *time.Time
	MintWindowEndsAt   *time.Time
	MintConfirmedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the row participates in ranking.
func (r *Reservation) Active() bool {
	return r.Status == StatusActive && r.IsCurrent
}

// Expirable reports whether the row can expire at the given instant.
// Strong reservations never expire, matching the marketplace rule that a
// fully-authenticated commitment holds until withdrawn or minted.
func (r *Reservation) Expirable(now time.Time) bool {
	if r.Kind == KindStrong || !r.Active() {
		return false
	}
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Rank returns the current rank position, or 0 if not yet ranked.
func (r *Reservation) Rank() int {
	if r.RankPosition == nil {
		return 0
	}
	return *r.RankPosition
}

// PreviousRank returns the previous rank position, or 0 if none.
func (r *Reservation) PreviousRank() int {
	if r.PreviousRankPosition == nil {
		return 0
	}
	return *r.PreviousRankPosition
}

// Clone returns a deep copy. Stores hand out clones so callers never mutate
// persisted rows outside a transaction.
func (r *Reservation) Clone() *Reservation {
	cp := *r
	cp.BidderID = clonePtr(r.BidderID)
	cp.RankPosition = clonePtr(r.RankPosition)
	cp.PreviousRankPosition = clonePtr(r.PreviousRankPosition)
	cp.SupersededBy = clonePtr(r.SupersededBy)
	cp.SupersededAt = clonePtr(r.SupersededAt)
	cp.ExpiresAt = clonePtr(r.ExpiresAt)
	cp.MintWindowStartsAt = clonePtr(r.MintWindowStartsAt)
	cp.MintWindowEndsAt = clonePtr(r.MintWindowEndsAt)
	cp.MintConfirmedAt = clonePtr(r.MintConfirmedAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Less is the total ranking order: amount descending, then creation time
// ascending (first-mover advantage), then ID ascending. The ID fallback makes
// the order total even when clock coarseness produces identical timestamps,
// so repeated recomputes are deterministic.
func Less(a, b *Reservation) bool {
	if c := a.AmountEUR.Cmp(b.AmountEUR); c != 0 {
		return c > 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
