package service

import (
	"context"
	"time"

	"egireserve/internal/reservation/store"
	id "egireserve/pkg/domain"
	dErrors "egireserve/pkg/domain-errors"
)

// ItemTx provides the per-item transactional boundary every mutation runs in.
// All reads and writes for one item are serialized; different items never
// contend. Implementations: a sharded in-process lock table (memory store) and
// a Postgres transaction holding an item-scoped advisory lock.
type ItemTx interface {
	RunInItemTx(ctx context.Context, itemID id.ItemID, fn func(ctx context.Context, s store.Store) error) error
}

// numItemShards spreads item locks across a fixed table. 128 shards keeps
// the false-sharing probability low without a per-item map and its GC churn.
const numItemShards = 128

// defaultLockTimeout bounds how long a mutation waits for its item lock
// before failing with a retryable contention error.
const defaultLockTimeout = 5 * time.Second

// shardedItemTx serializes per-item work with channel semaphores so lock
// acquisition can honor a deadline, unlike a bare sync.Mutex.
type shardedItemTx struct {
	shards  [numItemShards]chan struct{}
	store   store.Store
	timeout time.Duration
}

// NewShardedItemTx wraps a store with per-item serialization for
// single-process deployments.
func NewShardedItemTx(s store.Store, timeout time.Duration) ItemTx {
	t := &shardedItemTx{store: s, timeout: timeout}
	for i := range t.shards {
		t.shards[i] = make(chan struct{}, 1)
	}
	return t
}

func (t *shardedItemTx) RunInItemTx(ctx context.Context, itemID id.ItemID, fn func(ctx context.Context, s store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeContention, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	shard := t.shards[shardFor(itemID)]
	select {
	case shard <- struct{}{}:
	case <-timer.C:
		return dErrors.New(dErrors.CodeContention, "item lock not acquired within timeout")
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeContention, "transaction aborted: context cancelled")
	}
	defer func() { <-shard }()

	return fn(ctx, t.store)
}

// shardFor hashes the item ID with FNV-1a for even shard distribution.
func shardFor(itemID id.ItemID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	s := itemID.String()
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h % numItemShards
}
