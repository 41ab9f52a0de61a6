// Package ranking implements the recompute algorithm: given the active
// reservations of one item, it assigns dense 1-based ranks, maintains the
// highest flag and the supersession chain, and reports every transition as an
// event for post-commit publication.
//
// Recompute is deterministic and idempotent: it compares against persisted
// state, writes only rows that changed, and emits nothing when called twice
// without an intervening write. That makes it safe to retry after a crash.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"egireserve/internal/events"
	"egireserve/internal/reservation/models"
	"egireserve/internal/reservation/store"
	id "egireserve/pkg/domain"
	dErrors "egireserve/pkg/domain-errors"
	"egireserve/pkg/requestcontext"
)

// Result reports the outcome of one recompute.
type Result struct {
	// Rows holds every active row in final rank order (index 0 is rank 1).
	Rows []*models.Reservation
	// Updated holds the subset of Rows whose rank fields changed and were
	// written back.
	Updated []*models.Reservation
	// Events holds one entry per observable transition, in a stable order:
	// superseded first, then became-highest, then rank changes.
	Events []events.Event
}

// Highest returns the rank-1 row, or nil when the item has no active rows.
func (r *Result) Highest() *models.Reservation {
	if len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Engine recomputes the ranking of one item. It holds no state of its own;
// all reads and writes go through the store inside the caller's transaction.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Recompute reads the item's active rows, assigns ranks by (amount DESC,
// createdAt ASC, id ASC), persists every changed row in a single atomic write,
// and returns the transitions. Must run inside the caller's per-item
// transaction; see the service's item tx.
func (e *Engine) Recompute(ctx context.Context, s store.Store, itemID id.ItemID) (*Result, error) {
	rows, err := s.FetchActiveByItem(ctx, itemID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch active reservations")
	}
	if err := verifyFetched(rows, itemID); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return models.Less(rows[i], rows[j]) })

	now := requestcontext.Now(ctx)
	result := &Result{Rows: rows}
	if len(rows) == 0 {
		return result, nil
	}

	newHighest := rows[0]
	var becameHighest, superseded []*models.Reservation
	var rankChanged []rankDelta

	for i, row := range rows {
		pos := i + 1
		posChanged := row.Rank() != pos
		wasRanked := row.RankPosition != nil
		changed := posChanged

		if posChanged {
			row.PreviousRankPosition = row.RankPosition
			p := pos
			row.RankPosition = &p
		}

		switch {
		case pos == 1:
			if !row.IsHighest || row.RankState == models.RankStatePending || row.RankState == models.RankStateSuperseded {
				transitioned := row.RankState == models.RankStatePending || row.RankState == models.RankStateSuperseded
				row.IsHighest = true
				// A confirmed holder that stays on top keeps its state.
				if transitioned {
					row.RankState = models.RankStateHighest
				}
				// Back on top: the supersession pointer no longer describes
				// this row's situation.
				row.SupersededBy = nil
				row.SupersededAt = nil
				if transitioned {
					becameHighest = append(becameHighest, row)
				}
				changed = true
			}
		case row.IsHighest:
			// Displaced from the top: record who took it and when. Older
			// superseded rows keep their original pointer so the chain stays
			// auditable.
			row.IsHighest = false
			row.RankState = models.RankStateSuperseded
			sb := newHighest.ID
			row.SupersededBy = &sb
			sa := now
			row.SupersededAt = &sa
			superseded = append(superseded, row)
			changed = true
		default:
			// A move between non-top positions is a plain rank change. Fresh
			// rows (never ranked before) get their rank in the create
			// response instead of an event.
			if posChanged && wasRanked {
				rankChanged = append(rankChanged, rankDelta{row: row, old: *row.PreviousRankPosition, new: pos})
			}
		}

		if changed {
			result.Updated = append(result.Updated, row)
		}
	}

	if len(result.Updated) > 0 {
		if err := s.UpdateMany(ctx, result.Updated); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist rank updates")
		}
	}

	for _, row := range superseded {
		result.Events = append(result.Events, eventFor(events.TypeSuperseded, row, now))
	}
	for _, row := range becameHighest {
		result.Events = append(result.Events, eventFor(events.TypeBecameHighest, row, now))
	}
	for _, d := range rankChanged {
		ev := eventFor(events.TypeRankChanged, d.row, now)
		ev.OldRank = d.old
		ev.NewRank = d.new
		result.Events = append(result.Events, ev)
	}

	return result, nil
}

type rankDelta struct {
	row *models.Reservation
	old int
	new int
}

func eventFor(t events.Type, row *models.Reservation, now time.Time) events.Event {
	ev := events.Event{
		Type:          t,
		ItemID:        row.ItemID,
		ReservationID: row.ID,
		BidderID:      row.BidderID,
		AmountEUR:     row.AmountEUR,
		OldRank:       row.PreviousRank(),
		NewRank:       row.Rank(),
		OccurredAt:    now,
	}
	if t == events.TypeSuperseded {
		ev.SupersededBy = row.SupersededBy
	}
	return ev
}

// verifyFetched rejects corrupt input rather than persisting a ranking built
// on it. Duplicate IDs, foreign rows, or duplicate persisted ranks indicate
// the per-item serialization was violated; the transaction must abort.
func verifyFetched(rows []*models.Reservation, itemID id.ItemID) error {
	seenID := make(map[id.ReservationID]bool, len(rows))
	seenRank := make(map[int]bool, len(rows))
	for _, row := range rows {
		if row.ItemID != itemID {
			return dErrors.New(dErrors.CodeInconsistentState,
				fmt.Sprintf("reservation %s belongs to item %s, not %s", row.ID, row.ItemID, itemID))
		}
		if seenID[row.ID] {
			return dErrors.New(dErrors.CodeInconsistentState,
				fmt.Sprintf("duplicate reservation %s in active set", row.ID))
		}
		seenID[row.ID] = true
		if row.RankPosition != nil {
			if seenRank[*row.RankPosition] {
				return dErrors.New(dErrors.CodeInconsistentState,
					fmt.Sprintf("duplicate rank %d in active set of item %s", *row.RankPosition, itemID))
			}
			seenRank[*row.RankPosition] = true
		}
	}
	return nil
}
