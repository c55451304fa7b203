package backend

import (
	"fmt"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// memoryStore backs MEMORY cache mode: every mutating call becomes a
// no-op returning a synthesized JSON shell instead of reaching the runner.
// It keeps a short-lived call tally per action so tests and diagnostics
// can assert how many synthetic mutations occurred.
type memoryStore struct {
	calls *cache.Cache
	total int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{calls: cache.New(5*time.Minute, time.Minute)}
}

func (m *memoryStore) record(action string) {
	atomic.AddInt64(&m.total, 1)
	key := "count:" + action
	if n, found := m.calls.Get(key); found {
		m.calls.Set(key, n.(int)+1, cache.DefaultExpiration)
	} else {
		m.calls.Set(key, 1, cache.DefaultExpiration)
	}
}

// CallCount reports how many times action was recorded since it last
// expired out of the window (diagnostic only).
func (m *memoryStore) CallCount(action string) int {
	if n, found := m.calls.Get("count:" + action); found {
		return n.(int)
	}
	return 0
}

func (m *memoryStore) String() string {
	return fmt.Sprintf("memoryStore(total=%d)", atomic.LoadInt64(&m.total))
}

// syntheticItem is the fixed synthetic shell: empty ID, zero size, null
// modification times, regardless of the request's parameters.
func syntheticItem() ItemJSON {
	return ItemJSON{}
}
