package engine

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// reportCache holds recent portfolio reports so quote bursts do not
// recompute them. Every Del advances a generation; SetIf only stores a value
// computed under the current generation.
type reportCache struct {
	c   *ristretto.Cache
	ttl time.Duration

	mu     sync.Mutex
	gen    uint64
	closed bool
}

func newReportCache(maxCost int64, ttl time.Duration) (*reportCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &reportCache{c: c, ttl: ttl}, nil
}

func (c *reportCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	return c.c.Get(key)
}

// Generation returns the current invalidation generation.
func (c *reportCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIf stores val when no Del happened since gen was read.
func (c *reportCache) SetIf(key string, val any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen {
		return false
	}
	c.c.SetWithTTL(key, val, 1, c.ttl)
	// make the value visible to the next Get
	c.c.Wait()
	return true
}

func (c *reportCache) Del(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if !c.closed {
		c.c.Del(key)
	}
}

func (c *reportCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.c.Close()
}
