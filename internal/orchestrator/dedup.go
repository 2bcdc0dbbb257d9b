package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contosowiki/sage/internal/logger"
)

// Coalescer implements in-flight request coalescing: identical (user_id,
// conversation_id, query_hash) requests within the dedup window share one
// Sink. The in-process map is what actually lets a second HTTP handler
// subscribe to the first's stream; the Redis key is a best-effort
// cross-instance guard so a second server in the fleet logs a warning
// instead of silently double-executing. True cross-instance frame fan-out
// would need a pub/sub bus and is not implemented here.
type Coalescer struct {
	mu     sync.Mutex
	active map[string]*Sink
	rdb    *redis.Client
	window time.Duration
}

func NewCoalescer(rdb *redis.Client, window time.Duration) *Coalescer {
	return &Coalescer{active: map[string]*Sink{}, rdb: rdb, window: window}
}

// Key derives the dedup key for (user_id, conversation_id, query).
func Key(userID, conversationID, query string) string {
	h := sha256.Sum256([]byte(userID + "\x00" + conversationID + "\x00" + query))
	return hex.EncodeToString(h[:16])
}

// Join returns the Sink for key, creating one and becoming its leader if
// none is active. Callers that are not the leader must not run the
// pipeline, only subscribe.
func (c *Coalescer) Join(ctx context.Context, key string, bufferCap int) (sink *Sink, isLeader bool) {
	c.mu.Lock()
	if s, ok := c.active[key]; ok {
		c.mu.Unlock()
		return s, false
	}
	s := NewSink(bufferCap)
	c.active[key] = s
	c.mu.Unlock()

	if c.rdb != nil {
		ok, err := c.rdb.SetNX(ctx, "sage:dedup:"+key, "1", c.window).Result()
		if err != nil {
			logger.Warnf(ctx, "dedup: redis claim failed, proceeding as local leader anyway: %v", err)
		} else if !ok {
			logger.Warnf(ctx, "dedup: another instance already claimed %s; this instance will execute independently", key)
		}
	}
	return s, true
}

// Leave removes key's Sink from the active set once its leader finishes
// (and the dedup window has elapsed, so very-late duplicate requests still
// coalesce against the tail of the buffered stream).
func (c *Coalescer) Leave(key string) {
	time.AfterFunc(c.window, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.active, key)
	})
}

// Invalidate removes key's Sink immediately, bypassing the dedup window
// delay that Leave applies on normal completion. Used when the leading
// run was cancelled by a client disconnect rather than finishing
// normally.
// Without this, a retry arriving inside the window would join the
// already-closed Sink via Join and receive a dead, immediately-closed
// stream instead of a fresh execution.
func (c *Coalescer) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.active, key)
	c.mu.Unlock()

	if c.rdb != nil {
		if err := c.rdb.Del(ctx, "sage:dedup:"+key).Err(); err != nil {
			logger.Warnf(ctx, "dedup: failed to clear cross-instance claim for %s: %v", key, err)
		}
	}
}
