// Package domain holds shared identifier types. IDs are distinct named types
// over uuid.UUID so the compiler rejects cross-type assignment (an item ID can
// never be passed where a reservation ID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "egireserve/pkg/domain-errors"
)

// ItemID identifies the digital good being reserved. The item itself is an
// external entity; this service only partitions work by its ID.
type ItemID uuid.UUID

// ReservationID identifies one monetary pre-order bid.
type ReservationID uuid.UUID

// BidderID identifies the user behind a reservation. Anonymous reservations
// carry no bidder ID at all (see models.Reservation.BidderID).
type BidderID uuid.UUID

func (id ItemID) String() string        { return uuid.UUID(id).String() }
func (id ReservationID) String() string { return uuid.UUID(id).String() }
func (id BidderID) String() string      { return uuid.UUID(id).String() }

func (id ItemID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ReservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BidderID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// NewReservationID mints a fresh reservation identity.
func NewReservationID() ReservationID { return ReservationID(uuid.New()) }

// ParseItemID validates and converts a string form item ID.
func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID(s)
	return ItemID(u), err
}

// ParseReservationID validates and converts a string form reservation ID.
func ParseReservationID(s string) (ReservationID, error) {
	u, err := parseUUID(s)
	return ReservationID(u), err
}

// ParseBidderID validates and converts a string form bidder ID.
func ParseBidderID(s string) (BidderID, error) {
	u, err := parseUUID(s)
	return BidderID(u), err
}

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil uuid")
	}
	return u, nil
}
