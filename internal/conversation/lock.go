package conversation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	sageerrors "github.com/contosowiki/sage/internal/errors"
)

// releaseScript only deletes the lock key if it still holds this holder's
// token, so a handler can never release a lock a different holder has
// since acquired after its own lease expired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock enforces the per-conversation write serialization, the same
// SETNX-plus-lease shape the Coalescer uses for dedup claims
// (internal/orchestrator Coalescer).
type Lock struct {
	rdb   *redis.Client
	lease time.Duration
}

// NewLock builds a Lock with the given lease duration. A nil rdb makes
// every Acquire a no-op, for single-process use and tests.
func NewLock(rdb *redis.Client, lease time.Duration) *Lock {
	return &Lock{rdb: rdb, lease: lease}
}

// Acquire claims the write lock for conversationID, returning a release
// func the caller must defer immediately. Returns ConversationBusy if
// another holder already has it.
func (l *Lock) Acquire(ctx context.Context, conversationID, holder string) (func(), error) {
	if l.rdb == nil {
		return func() {}, nil
	}
	key := "sage:convlock:" + conversationID
	ok, err := l.rdb.SetNX(ctx, key, holder, l.lease).Result()
	if err != nil {
		return nil, sageerrors.Wrap(sageerrors.InternalError, "conversation lock: redis error", err)
	}
	if !ok {
		return nil, sageerrors.New(sageerrors.ConversationBusy, "another request is already answering this conversation")
	}
	release := func() {
		releaseScript.Run(context.Background(), l.rdb, []string{key}, holder)
	}
	return release, nil
}
