// Package store persists reservation rows. Two adapters exist: an in-memory
// store for development and unit tests, and a Postgres store for production.
// Both return sentinel errors so services can translate them uniformly.
package store

import (
	"context"
	"time"

	"egireserve/internal/reservation/models"
	id "egireserve/pkg/domain"
	"egireserve/pkg/platform/sentinel"
)

// ErrNotFound keeps store-level 404s consistent across implementations.
var ErrNotFound = sentinel.ErrNotFound

// Store is the persistence port for reservation rows. Insert, FetchActiveByItem
// and UpdateMany execute inside the per-item transaction the service controls;
// the read-only listings may run outside it.
type Store interface {
	// Insert persists a new row.
	Insert(ctx context.Context, r *models.Reservation) error

	// GetByID returns the row or ErrNotFound.
	GetByID(ctx context.Context, rid id.ReservationID) (*models.Reservation, error)

	// FetchActiveByItem returns every active, current row for the item.
	// Order is unspecified; the ranking engine sorts.
	FetchActiveByItem(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error)

	// UpdateMany persists the given rows as a single atomic write.
	UpdateMany(ctx context.Context, rows []*models.Reservation) error

	// ListByItem returns the full bid history for an item, including
	// withdrawn and expired rows, ordered by rank then amount.
	ListByItem(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error)

	// ListByBidder returns every reservation a bidder has placed.
	ListByBidder(ctx context.Context, bidderID id.BidderID) ([]*models.Reservation, error)

	// FindActiveByItemAndBidder returns the bidder's active row on the item,
	// or ErrNotFound.
	FindActiveByItemAndBidder(ctx context.Context, itemID id.ItemID, bidderID id.BidderID) (*models.Reservation, error)

	// ListExpiredItems returns the IDs of items holding at least one weak
	// active row whose deadline passed. The sweep then expires those rows
	// item by item under the item lock.
	ListExpiredItems(ctx context.Context, now time.Time) ([]id.ItemID, error)
}
