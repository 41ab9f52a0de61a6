package service

import (
	"context"
	"database/sql"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"egireserve/internal/reservation/store"
	id "egireserve/pkg/domain"
	dErrors "egireserve/pkg/domain-errors"
	platformtx "egireserve/pkg/platform/tx"
)

// postgresItemTx runs fn inside a SQL transaction holding a transaction-scoped
// advisory lock derived from the item ID. The lock is the item-level ranking
// anchor: two mutations of the same item serialize on it, while different
// items map to different keys and proceed in parallel.
type postgresItemTx struct {
	db      *sql.DB
	store   store.Store
	timeout time.Duration
}

// NewPostgresItemTx wraps a Postgres-backed store with per-item advisory
// locking. The store must resolve its transaction from context (see
// pkg/platform/tx).
func NewPostgresItemTx(db *sql.DB, s store.Store, timeout time.Duration) ItemTx {
	return &postgresItemTx{db: db, store: s, timeout: timeout}
}

func (t *postgresItemTx) RunInItemTx(ctx context.Context, itemID id.ItemID, fn func(ctx context.Context, s store.Store) error) error {
	timeout := t.timeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	deadline := time.Now().Add(timeout)

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin item transaction")
	}

	if err := acquireItemLock(ctx, sqlTx, itemID, deadline); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	txCtx := platformtx.WithTx(ctx, sqlTx)
	if err := fn(txCtx, t.store); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit item transaction")
	}
	return nil
}

// acquireItemLock polls pg_try_advisory_xact_lock until it wins or the
// deadline passes. The try-variant keeps the wait bounded; a blocking
// pg_advisory_xact_lock could stall past the caller's budget.
func acquireItemLock(ctx context.Context, sqlTx *sql.Tx, itemID id.ItemID, deadline time.Time) error {
	classID, objID := advisoryKeys(itemID)
	for {
		var locked bool
		if err := sqlTx.QueryRowContext(ctx,
			`SELECT pg_try_advisory_xact_lock($1, $2)`, classID, objID,
		).Scan(&locked); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "acquire item lock")
		}
		if locked {
			return nil
		}
		if time.Now().After(deadline) {
			return dErrors.New(dErrors.CodeContention, "item lock not acquired within timeout")
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeContention, "transaction aborted: context cancelled")
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// advisoryKeys folds the item UUID into the (int4, int4) advisory lock
// keyspace. Collisions only cost spurious serialization, never a correctness
// problem.
func advisoryKeys(itemID id.ItemID) (int32, int32) {
	u := uuid.UUID(itemID)
	hi := binary.BigEndian.Uint32(u[0:4]) ^ binary.BigEndian.Uint32(u[4:8])
	lo := binary.BigEndian.Uint32(u[8:12]) ^ binary.BigEndian.Uint32(u[12:16])
	return int32(hi), int32(lo)
}
