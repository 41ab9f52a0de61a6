package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"egireserve/internal/reservation/models"
	id "egireserve/pkg/domain"
	"egireserve/pkg/platform/sentinel"
)

// InMemoryStore keeps reservations in process memory. Rows are cloned on the
// way in and out so callers can only mutate persisted state through Insert and
// UpdateMany.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[id.ReservationID]*models.Reservation
	byItem map[id.ItemID][]id.ReservationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[id.ReservationID]*models.Reservation),
		byItem: make(map[id.ItemID][]id.ReservationID),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[r.ID] = r.Clone()
	s.byItem[r.ItemID] = append(s.byItem[r.ItemID], r.ID)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, rid id.ReservationID) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[rid]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) FetchActiveByItem(_ context.Context, itemID id.ItemID) ([]*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []*models.Reservation
	for _, rid := range s.byItem[itemID] {
		if r := s.byID[rid]; r.Active() {
			rows = append(rows, r.Clone())
		}
	}
	return rows, nil
}

func (s *InMemoryStore) UpdateMany(_ context.Context, rows []*models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate the whole batch before touching anything so the write stays
	// atomic from the caller's point of view.
	for _, r := range rows {
		if _, ok := s.byID[r.ID]; !ok {
			return ErrNotFound
		}
	}
	for _, r := range rows {
		s.byID[r.ID] = r.Clone()
	}
	return nil
}

func (s *InMemoryStore) ListByItem(_ context.Context, itemID id.ItemID) ([]*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]*models.Reservation, 0, len(s.byItem[itemID]))
	for _, rid := range s.byItem[itemID] {
		rows = append(rows, s.byID[rid].Clone())
	}
	sortForListing(rows)
	return rows, nil
}

func (s *InMemoryStore) ListByBidder(_ context.Context, bidderID id.BidderID) ([]*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []*models.Reservation
	for _, r := range s.byID {
		if r.BidderID != nil && *r.BidderID == bidderID {
			rows = append(rows, r.Clone())
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (s *InMemoryStore) FindActiveByItemAndBidder(_ context.Context, itemID id.ItemID, bidderID id.BidderID) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rid := range s.byItem[itemID] {
		r := s.byID[rid]
		if r.Active() && r.BidderID != nil && *r.BidderID == bidderID {
			return r.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListExpiredItems(_ context.Context, now time.Time) ([]id.ItemID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[id.ItemID]bool)
	var items []id.ItemID
	for _, r := range s.byID {
		if r.Expirable(now) && !seen[r.ItemID] {
			seen[r.ItemID] = true
			items = append(items, r.ItemID)
		}
	}
	return items, nil
}

// sortForListing orders history views: ranked active rows first by position,
// then everything else newest-first.
func sortForListing(rows []*models.Reservation) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		aRanked := a.Active() && a.RankPosition != nil
		bRanked := b.Active() && b.RankPosition != nil
		if aRanked != bRanked {
			return aRanked
		}
		if aRanked && bRanked && *a.RankPosition != *b.RankPosition {
			return *a.RankPosition < *b.RankPosition
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
