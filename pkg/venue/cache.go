package venue

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ttlCache holds a single msgpack-encoded snapshot with an expiry. Venue adapters
// use it for GetBalance/GetPositions per the <=15s TTL allowance in §4.A; encoding
// through msgpack (rather than keeping the live Go value) keeps the cached blob
// immutable against accidental mutation by a concurrent caller within one cycle.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	expires time.Time
	blob    []byte
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl}
}

func (c *ttlCache) get(now time.Time, out any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blob == nil || now.After(c.expires) {
		return false
	}
	if err := msgpack.Unmarshal(c.blob, out); err != nil {
		return false
	}
	return true
}

func (c *ttlCache) set(now time.Time, v any) {
	blob, err := msgpack.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.blob = blob
	c.expires = now.Add(c.ttl)
	c.mu.Unlock()
}

func (c *ttlCache) invalidate() {
	c.mu.Lock()
	c.blob = nil
	c.mu.Unlock()
}

const balancePositionTTL = 15 * time.Second
