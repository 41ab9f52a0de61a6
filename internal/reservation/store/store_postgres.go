package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"egireserve/internal/reservation/models"
	id "egireserve/pkg/domain"
	platformtx "egireserve/pkg/platform/tx"
)

// Schema creates the reservations table. Applied by deployment tooling; the
// integration tests apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS reservations (
	id                    UUID PRIMARY KEY,
	item_id               UUID NOT NULL,
	bidder_id             UUID,
	kind                  TEXT NOT NULL,
	amount_eur            NUMERIC(12,2) NOT NULL,
	status                TEXT NOT NULL,
	rank_state            TEXT NOT NULL,
	rank_position         INTEGER,
	previous_rank         INTEGER,
	is_highest            BOOLEAN NOT NULL DEFAULT FALSE,
	is_current            BOOLEAN NOT NULL DEFAULT TRUE,
	superseded_by         UUID,
	superseded_at         TIMESTAMPTZ,
	expires_at            TIMESTAMPTZ,
	mint_window_starts_at TIMESTAMPTZ,
	mint_window_ends_at   TIMESTAMPTZ,
	mint_confirmed_at     TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reservations_item_active ON reservations (item_id, status, is_current);
CREATE INDEX IF NOT EXISTS idx_reservations_bidder ON reservations (bidder_id);
CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations (expires_at) WHERE expires_at IS NOT NULL;
`

const reservationColumns = `id, item_id, bidder_id, kind, amount_eur, status, rank_state,
	rank_position, previous_rank, is_highest, is_current, superseded_by, superseded_at,
	expires_at, mint_window_starts_at, mint_window_ends_at, mint_confirmed_at, created_at, updated_at`

// PostgresStore persists reservations in PostgreSQL. When the context carries
// a transaction (see pkg/platform/tx), all statements join it; the per-item
// advisory lock held by that transaction is what serializes ranking writes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := platformtx.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, r *models.Reservation) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID.String(), r.ItemID.String(), nullID(r.BidderID), string(r.Kind), r.AmountEUR.StringFixed(2),
		string(r.Status), string(r.RankState), nullInt(r.RankPosition), nullInt(r.PreviousRankPosition),
		r.IsHighest, r.IsCurrent, nullResID(r.SupersededBy), nullTime(r.SupersededAt),
		nullTime(r.ExpiresAt), nullTime(r.MintWindowStartsAt), nullTime(r.MintWindowEndsAt),
		nullTime(r.MintConfirmedAt), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, rid id.ReservationID) (*models.Reservation, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, rid.String())
	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FetchActiveByItem(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE item_id = $1 AND status = $2 AND is_current`,
		itemID.String(), string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("fetch active reservations: %w", err)
	}
	return collectReservations(rows)
}

func (s *PostgresStore) UpdateMany(ctx context.Context, updates []*models.Reservation) error {
	q := s.q(ctx)
	for _, r := range updates {
		res, err := q.ExecContext(ctx, `
			UPDATE reservations SET
				amount_eur = $2, status = $3, rank_state = $4, rank_position = $5,
				previous_rank = $6, is_highest = $7, is_current = $8, superseded_by = $9,
				superseded_at = $10, expires_at = $11, mint_window_starts_at = $12,
				mint_window_ends_at = $13, mint_confirmed_at = $14, updated_at = $15
			WHERE id = $1`,
			r.ID.String(), r.AmountEUR.StringFixed(2), string(r.Status), string(r.RankState),
			nullInt(r.RankPosition), nullInt(r.PreviousRankPosition), r.IsHighest, r.IsCurrent,
			nullResID(r.SupersededBy), nullTime(r.SupersededAt), nullTime(r.ExpiresAt),
			nullTime(r.MintWindowStartsAt), nullTime(r.MintWindowEndsAt), nullTime(r.MintConfirmedAt),
			r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update reservation %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update reservation %s: %w", r.ID, err)
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *PostgresStore) ListByItem(ctx context.Context, itemID id.ItemID) ([]*models.Reservation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE item_id = $1
		ORDER BY (status = 'active' AND is_current) DESC, rank_position ASC NULLS LAST, created_at DESC`,
		itemID.String())
	if err != nil {
		return nil, fmt.Errorf("list reservations by item: %w", err)
	}
	return collectReservations(rows)
}

func (s *PostgresStore) ListByBidder(ctx context.Context, bidderID id.BidderID) ([]*models.Reservation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE bidder_id = $1
		ORDER BY created_at DESC`,
		bidderID.String())
	if err != nil {
		return nil, fmt.Errorf("list reservations by bidder: %w", err)
	}
	return collectReservations(rows)
}

func (s *PostgresStore) FindActiveByItemAndBidder(ctx context.Context, itemID id.ItemID, bidderID id.BidderID) (*models.Reservation, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE item_id = $1 AND bidder_id = $2 AND status = $3 AND is_current
		LIMIT 1`,
		itemID.String(), bidderID.String(), string(models.StatusActive))
	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active reservation: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListExpiredItems(ctx context.Context, now time.Time) ([]id.ItemID, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT DISTINCT item_id FROM reservations
		WHERE status = $1 AND is_current AND kind = $2
		  AND expires_at IS NOT NULL AND expires_at < $3`,
		string(models.StatusActive), string(models.KindWeak), now)
	if err != nil {
		return nil, fmt.Errorf("list expired items: %w", err)
	}
	defer rows.Close()

	var items []id.ItemID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		itemID, err := id.ParseItemID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse item id %q: %w", raw, err)
		}
		items = append(items, itemID)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                                 models.Reservation
		rawID, rawItem, kind, status      string
		rankState, amount                 string
		bidder, supersededBy              sql.NullString
		rankPos, prevRank                 sql.NullInt64
		supersededAt, expiresAt           sql.NullTime
		mintStart, mintEnd, mintConfirmed sql.NullTime
	)
	err := row.Scan(&rawID, &rawItem, &bidder, &kind, &amount, &status, &rankState,
		&rankPos, &prevRank, &r.IsHighest, &r.IsCurrent, &supersededBy, &supersededAt,
		&expiresAt, &mintStart, &mintEnd, &mintConfirmed, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rid, err := id.ParseReservationID(rawID)
	if err != nil {
		return nil, err
	}
	itemID, err := id.ParseItemID(rawItem)
	if err != nil {
		return nil, err
	}
	r.ID = rid
	r.ItemID = itemID
	r.Kind = models.Kind(kind)
	r.Status = models.Status(status)
	r.RankState = models.RankState(rankState)
	r.AmountEUR, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if bidder.Valid {
		b, err := id.ParseBidderID(bidder.String)
		if err != nil {
			return nil, err
		}
		r.BidderID = &b
	}
	if supersededBy.Valid {
		sb, err := id.ParseReservationID(supersededBy.String)
		if err != nil {
			return nil, err
		}
		r.SupersededBy = &sb
	}
	if rankPos.Valid {
		v := int(rankPos.Int64)
		r.RankPosition = &v
	}
	if prevRank.Valid {
		v := int(prevRank.Int64)
		r.PreviousRankPosition = &v
	}
	r.SupersededAt = timePtr(supersededAt)
	r.ExpiresAt = timePtr(expiresAt)
	r.MintWindowStartsAt = timePtr(mintStart)
	r.MintWindowEndsAt = timePtr(mintEnd)
	r.MintConfirmedAt = timePtr(mintConfirmed)
	return &r, nil
}

func collectReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	defer rows.Close()
	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullID(v *id.BidderID) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullResID(v *id.ReservationID) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
