package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type bucket struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
	// evicted is set once the sweeper has removed the bucket from the map.
	evicted bool
}

// MemoryStore keeps fixed-window counters in process memory. Only correct for a single instance.
type MemoryStore struct {
	windows sync.Map // map[string]*bucket
	clock   clockwork.Clock
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore starts a goroutine that evicts expired windows every sweep interval.
func NewMemoryStore(clock clockwork.Clock, sweep time.Duration) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sweep <= 0 {
		sweep = 10 * time.Minute
	}
	s := &MemoryStore{clock: clock, stop: make(chan struct{})}
	go s.cleanupLoop(sweep)
	return s
}

func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}
	now := s.clock.Now()

	for {
		val, _ := s.windows.LoadOrStore(key, &bucket{resetAt: now.Add(window)})
		w := val.(*bucket)

		w.mu.Lock()
		if w.evicted {
			// Lost a race with the sweeper; count on the bucket that replaces it.
			w.mu.Unlock()
			s.windows.CompareAndDelete(key, w)
			continue
		}

		if !now.Before(w.resetAt) {
			w.count = 0
			w.resetAt = now.Add(window)
		}
		w.count++
		c := Counter{Count: w.count, TTL: w.resetAt.Sub(now)}
		w.mu.Unlock()
		return c, nil
	}
}

func (s *MemoryStore) cleanupLoop(every time.Duration) {
	ticker := s.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.Chan():
			s.evictExpired()
		}
	}
}

func (s *MemoryStore) evictExpired() {
	now := s.clock.Now()
	s.windows.Range(func(key, value any) bool {
		w := value.(*bucket)
		w.mu.Lock()
		if !now.Before(w.resetAt) {
			w.evicted = true
			s.windows.CompareAndDelete(key, w)
		}
		w.mu.Unlock()
		return true
	})
}

func (s *MemoryStore) Len() int {
	n := 0
	s.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stop) })
}
