// Package service orchestrates the reservation lifecycle: creation,
// withdrawal, expiry and mint confirmation. Every mutation runs inside the
// per-item transaction and invokes the ranking engine before commit; ranking
// events are handed to the emitter only after the transaction succeeded.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"egireserve/internal/events"
	"egireserve/internal/reservation/metrics"
	"egireserve/internal/reservation/models"
	"egireserve/internal/reservation/ports"
	"egireserve/internal/reservation/ranking"
	"egireserve/internal/reservation/store"
	id "egireserve/pkg/domain"
	dErrors "egireserve/pkg/domain-errors"
	"egireserve/pkg/requestcontext"
)

// Emitter receives ranking events after the owning transaction committed.
type Emitter interface {
	Enqueue(evts ...events.Event)
}

// Service is the reservation lifecycle manager.
type Service struct {
	store   store.Store
	tx      ItemTx
	engine  *ranking.Engine
	items   ports.ItemReservability
	authz   ports.Authorization
	mint    ports.MintWindow
	emitter Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger

	// weakTTL is the deadline assigned to weak reservations at creation.
	// Zero disables expiry.
	weakTTL time.Duration
}

// Config bundles the service dependencies.
type Config struct {
	Store   store.Store
	Tx      ItemTx
	Items   ports.ItemReservability
	Authz   ports.Authorization
	Mint    ports.MintWindow
	Emitter Emitter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	WeakTTL time.Duration
}

// New validates the configuration and builds the service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("reservation store is required")
	}
	if cfg.Tx == nil {
		return nil, errors.New("item tx is required")
	}
	if cfg.Items == nil {
		return nil, errors.New("item reservability port is required")
	}
	if cfg.Authz == nil {
		return nil, errors.New("authorization port is required")
	}
	if cfg.Mint == nil {
		return nil, errors.New("mint window port is required")
	}
	if cfg.Emitter == nil {
		return nil, errors.New("event emitter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:   cfg.Store,
		tx:      cfg.Tx,
		engine:  ranking.NewEngine(),
		items:   cfg.Items,
		authz:   cfg.Authz,
		mint:    cfg.Mint,
		emitter: cfg.Emitter,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		weakTTL: cfg.WeakTTL,
	}, nil
}

// CreateRequest carries a new bid. BidderID is nil for anonymous reservations.
type CreateRequest struct {
	ItemID    id.ItemID
	BidderID  *id.BidderID
	AmountEUR decimal.Decimal
	Kind      models.Kind
}

// Create inserts a new active reservation and recomputes the item's ranking
// in the same transaction. The returned row carries its final rank. There is
// no minimum amount or minimum increment: any positive amount is accepted and
// simply ranks where it falls.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Reservation, error) {
	if req.ItemID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "item id is required")
	}
	if !req.AmountEUR.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if req.Kind != models.KindWeak && req.Kind != models.KindStrong {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "kind must be weak or strong")
	}

	reservable, err := s.items.IsReservable(ctx, req.ItemID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check item reservability")
	}
	if !reservable {
		return nil, dErrors.New(dErrors.CodeItemNotReservable, "item no longer accepts reservations")
	}

	now := requestcontext.Now(ctx)
	row := &models.Reservation{
		ID:        id.NewReservationID(),
		ItemID:    req.ItemID,
		BidderID:  req.BidderID,
		Kind:      req.Kind,
		AmountEUR: req.AmountEUR.Round(2),
		Status:    models.StatusActive,
		RankState: models.RankStatePending,
		IsCurrent: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Kind == models.KindWeak && s.weakTTL > 0 {
		deadline := now.Add(s.weakTTL)
		row.ExpiresAt = &deadline
	}

	var pending []events.Event
	err = s.runRanked(ctx, req.ItemID, func(ctx context.Context, st store.Store) error {
		if err := st.Insert(ctx, row); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "insert reservation")
		}
		result, err := s.engine.Recompute(ctx, st, req.ItemID)
		if err != nil {
			return err
		}
		for _, r := range result.Rows {
			if r.ID == row.ID {
				row = r
				break
			}
		}
		pending = result.Events
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Enqueue(pending...)
	s.count(func(m *metrics.Metrics) {
		m.ReservationsPlaced.Inc()
		for _, e := range pending {
			if e.Type == events.TypeSuperseded {
				m.Supersessions.Inc()
			}
		}
	})
	s.logger.InfoContext(ctx, "reservation placed",
		"reservation_id", row.ID,
		"item_id", row.ItemID,
		"amount_eur", row.AmountEUR.StringFixed(2),
		"rank", row.Rank(),
		"is_highest", row.IsHighest,
	)
	return row, nil
}

// Withdraw marks the reservation withdrawn and recomputes the ranking so a
// new highest can emerge. Rows whose rank improved receive a
// competitor-withdrew notification, except the one promoted to highest, which
// already gets became-highest.
func (s *Service) Withdraw(ctx context.Context, reservationID id.ReservationID, requesterID id.BidderID) error {
	return s.retire(ctx, reservationID, &requesterID, models.StatusWithdrawn, models.RankStateWithdrawn)
}

// Expire marks the reservation expired with the same ranking consequences as
// a withdrawal. Invoked by the time-based sweep; no ownership check.
func (s *Service) Expire(ctx context.Context, reservationID id.ReservationID) error {
	return s.retire(ctx, reservationID, nil, models.StatusExpired, models.RankStateExpired)
}

func (s *Service) retire(ctx context.Context, reservationID id.ReservationID, requesterID *id.BidderID, status models.Status, state models.RankState) error {
	// Resolve the item outside the lock; ownership and status are
	// re-verified on the locked re-read.
	probe, err := s.getByID(ctx, reservationID)
	if err != nil {
		return err
	}

	var pending []events.Event
	err = s.runRanked(ctx, probe.ItemID, func(ctx context.Context, st store.Store) error {
		row, err := st.GetByID(ctx, reservationID)
		if err != nil {
			return translateStoreErr(err)
		}
		if row.Status != models.StatusActive {
			return dErrors.New(dErrors.CodeNotFound, "reservation is not active")
		}
		if requesterID != nil {
			if err := s.authorizeWithdrawal(ctx, row, *requesterID); err != nil {
				return err
			}
		}

		before, err := activeRanks(ctx, st, row.ItemID, row.ID)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		row.Status = status
		row.RankState = state
		row.IsCurrent = false
		row.IsHighest = false
		row.PreviousRankPosition = row.RankPosition
		row.RankPosition = nil
		row.UpdatedAt = now
		if err := st.UpdateMany(ctx, []*models.Reservation{row}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist retirement")
		}

		result, err := s.engine.Recompute(ctx, st, row.ItemID)
		if err != nil {
			return err
		}
		pending = append(result.Events, competitorWithdrewEvents(result, before, now)...)
		return nil
	})
	if err != nil {
		return err
	}

	s.emitter.Enqueue(pending...)
	s.count(func(m *metrics.Metrics) {
		if status == models.StatusWithdrawn {
			m.ReservationsWithdrawn.Inc()
		} else {
			m.ReservationsExpired.Inc()
		}
	})
	s.logger.InfoContext(ctx, "reservation retired",
		"reservation_id", reservationID,
		"item_id", probe.ItemID,
		"status", status,
	)
	return nil
}

func (s *Service) authorizeWithdrawal(ctx context.Context, row *models.Reservation, requesterID id.BidderID) error {
	if row.BidderID != nil && *row.BidderID == requesterID {
		return nil
	}
	allowed, err := s.authz.CanWithdraw(ctx, requesterID, row.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check withdrawal authority")
	}
	if !allowed {
		return dErrors.New(dErrors.CodeUnauthorized, "only the owner or an admin may withdraw a reservation")
	}
	return nil
}

// ConfirmMint transitions the current highest reservation to confirmed.
// Rejected outside the mint window or for any non-highest holder; ranking is
// untouched because minting is a terminal action of the top holder.
func (s *Service) ConfirmMint(ctx context.Context, reservationID id.ReservationID, requesterID id.BidderID) (*models.Reservation, error) {
	probe, err := s.getByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	var confirmed *models.Reservation
	err = s.tx.RunInItemTx(ctx, probe.ItemID, func(ctx context.Context, st store.Store) error {
		row, err := st.GetByID(ctx, reservationID)
		if err != nil {
			return translateStoreErr(err)
		}
		if row.BidderID == nil || *row.BidderID != requesterID {
			return dErrors.New(dErrors.CodeUnauthorized, "only the reservation holder may confirm the mint")
		}
		if row.RankState == models.RankStateConfirmed {
			// Idempotent re-confirmation.
			confirmed = row
			return nil
		}
		if !row.Active() || !row.IsHighest || row.RankState != models.RankStateHighest {
			return dErrors.New(dErrors.CodeMintWindowClosed, "only the current highest reservation can confirm the mint")
		}

		now := requestcontext.Now(ctx)
		within, err := s.mint.IsWithin(ctx, reservationID, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check mint window")
		}
		if !within {
			return dErrors.New(dErrors.CodeMintWindowClosed, "mint window is not open")
		}

		row.RankState = models.RankStateConfirmed
		row.MintConfirmedAt = &now
		row.UpdatedAt = now
		if err := st.UpdateMany(ctx, []*models.Reservation{row}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist mint confirmation")
		}
		confirmed = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.count(func(m *metrics.Metrics) { m.MintConfirmations.Inc() })
	return confirmed, nil
}

// ExpireDue expires every weak reservation whose deadline passed, item by
// item under the item lock, and returns how many rows were expired.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	items, err := s.store.ListExpiredItems(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "list items with expired reservations")
	}

	total := 0
	for _, itemID := range items {
		var pending []events.Event
		expired := 0
		err := s.runRanked(ctx, itemID, func(ctx context.Context, st store.Store) error {
			rows, err := st.FetchActiveByItem(ctx, itemID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "fetch active reservations")
			}
			var due []*models.Reservation
			survivors := make(map[id.ReservationID]int)
			for _, row := range rows {
				if row.Expirable(now) {
					row.Status = models.StatusExpired
					row.RankState = models.RankStateExpired
					row.IsCurrent = false
					row.IsHighest = false
					row.PreviousRankPosition = row.RankPosition
					row.RankPosition = nil
					row.UpdatedAt = now
					due = append(due, row)
				} else if row.RankPosition != nil {
					survivors[row.ID] = *row.RankPosition
				}
			}
			if len(due) == 0 {
				return nil
			}
			if err := st.UpdateMany(ctx, due); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "persist expirations")
			}
			result, err := s.engine.Recompute(ctx, st, itemID)
			if err != nil {
				return err
			}
			pending = append(result.Events, competitorWithdrewEvents(result, survivors, now)...)
			expired = len(due)
			return nil
		})
		if err != nil {
			// One stuck item must not starve the rest of the sweep.
			s.logger.ErrorContext(ctx, "expiry sweep failed for item", "item_id", itemID, "error", err)
			continue
		}
		s.emitter.Enqueue(pending...)
		total += expired
		s.count(func(m *metrics.Metrics) {
			for i := 0; i < expired; i++ {
				m.ReservationsExpired.Inc()
			}
		})
	}
	return total, nil
}

// Ranking returns the item's active reservations in rank order.
func (s *Service) Ranking(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error) {
	rows, err := s.store.FetchActiveByItem(ctx, itemID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch active reservations")
	}
	sort.Slice(rows, func(i, j int) bool { return models.Less(rows[i], rows[j]) })
	return rows, nil
}

// History returns the full bid history of an item, retired rows included.
func (s *Service) History(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error) {
	rows, err := s.store.ListByItem(ctx, itemID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list reservations")
	}
	return rows, nil
}

// ListByBidder returns every reservation the bidder has placed.
func (s *Service) ListByBidder(ctx context.Context, bidderID id.BidderID) ([]*models.Reservation, error) {
	rows, err := s.store.ListByBidder(ctx, bidderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list reservations by bidder")
	}
	return rows, nil
}

// Get returns a single reservation row.
func (s *Service) Get(ctx context.Context, reservationID id.ReservationID) (*models.Reservation, error) {
	return s.getByID(ctx, reservationID)
}

// Stats summarizes an item's active reservation amounts.
type Stats struct {
	TotalReservations int
	HighestAmount     decimal.Decimal
	LowestAmount      decimal.Decimal
	AverageAmount     decimal.Decimal
	MedianAmount      decimal.Decimal
}

// Stats computes ranking statistics over the item's active reservations.
func (s *Service) Stats(ctx context.Context, itemID id.ItemID) (Stats, error) {
	rows, err := s.Ranking(ctx, itemID)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalReservations: len(rows)}
	if len(rows) == 0 {
		return st, nil
	}

	amounts := make([]decimal.Decimal, len(rows))
	sum := decimal.Zero
	for i, r := range rows {
		amounts[i] = r.AmountEUR
		sum = sum.Add(r.AmountEUR)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].LessThan(amounts[j]) })

	st.HighestAmount = amounts[len(amounts)-1]
	st.LowestAmount = amounts[0]
	st.AverageAmount = sum.Div(decimal.NewFromInt(int64(len(amounts)))).Round(2)
	mid := len(amounts) / 2
	if len(amounts)%2 == 1 {
		st.MedianAmount = amounts[mid]
	} else {
		st.MedianAmount = amounts[mid-1].Add(amounts[mid]).Div(decimal.NewFromInt(2)).Round(2)
	}
	return st, nil
}

// CanReserveResult is the pre-flight answer for a bidder and item.
type CanReserveResult struct {
	CanReserve  bool
	Reason      string
	HasExisting bool
	Existing    *models.Reservation
}

// CanReserve answers whether the bidder may place (or update) a reservation
// on the item, without taking the item lock.
func (s *Service) CanReserve(ctx context.Context, itemID id.ItemID, bidderID *id.BidderID) (CanReserveResult, error) {
	reservable, err := s.items.IsReservable(ctx, itemID)
	if err != nil {
		return CanReserveResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "check item reservability")
	}
	if !reservable {
		return CanReserveResult{Reason: "item_unavailable"}, nil
	}
	res := CanReserveResult{CanReserve: true}
	if bidderID != nil {
		existing, err := s.store.FindActiveByItemAndBidder(ctx, itemID, *bidderID)
		switch {
		case err == nil:
			res.HasExisting = true
			res.Existing = existing
		case errors.Is(err, store.ErrNotFound):
		default:
			return CanReserveResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "find existing reservation")
		}
	}
	return res, nil
}

// runRanked wraps RunInItemTx with recompute timing and contention counting.
func (s *Service) runRanked(ctx context.Context, itemID id.ItemID, fn func(ctx context.Context, st store.Store) error) error {
	start := time.Now()
	err := s.tx.RunInItemTx(ctx, itemID, fn)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeContention) {
			s.count(func(m *metrics.Metrics) { m.LockContention.Inc() })
		}
		return err
	}
	s.count(func(m *metrics.Metrics) {
		m.RecomputeDuration.Observe(time.Since(start).Seconds())
	})
	return nil
}

func (s *Service) getByID(ctx context.Context, reservationID id.ReservationID) (*models.Reservation, error) {
	row, err := s.store.GetByID(ctx, reservationID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return row, nil
}

func (s *Service) count(fn func(m *metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

func translateStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "reservation not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "reservation store failure")
}

// activeRanks snapshots rank positions of the item's active rows, excluding
// one row, keyed by reservation ID.
func activeRanks(ctx context.Context, st store.Store, itemID id.ItemID, exclude id.ReservationID) (map[id.ReservationID]int, error) {
	rows, err := st.FetchActiveByItem(ctx, itemID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch active reservations")
	}
	ranks := make(map[id.ReservationID]int, len(rows))
	for _, r := range rows {
		if r.ID == exclude || r.RankPosition == nil {
			continue
		}
		ranks[r.ID] = *r.RankPosition
	}
	return ranks, nil
}

// competitorWithdrewEvents builds one event per surviving row whose rank
// improved, skipping the row that became highest (it already gets its own
// event).
func competitorWithdrewEvents(result *ranking.Result, before map[id.ReservationID]int, now time.Time) []events.Event {
	promoted := make(map[id.ReservationID]bool)
	for _, e := range result.Events {
		if e.Type == events.TypeBecameHighest {
			promoted[e.ReservationID] = true
		}
	}
	var out []events.Event
	for _, row := range result.Rows {
		old, ok := before[row.ID]
		if !ok || promoted[row.ID] || row.Rank() >= old {
			continue
		}
		out = append(out, events.Event{
			Type:          events.TypeCompetitorWithdrew,
			ItemID:        row.ItemID,
			ReservationID: row.ID,
			BidderID:      row.BidderID,
			AmountEUR:     row.AmountEUR,
			OldRank:       old,
			NewRank:       row.Rank(),
			OccurredAt:    now,
		})
	}
	return out
}
