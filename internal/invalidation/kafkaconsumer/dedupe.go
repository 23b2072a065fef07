package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// eventDedupe drops re-delivered or replayed events: an event is
// applied only if its timestamp is newer than the last one seen for
// the same entity. Bounded so a long replay cannot grow it without
// limit.
type eventDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newEventDedupe(size int) *eventDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, int64](size)
	return &eventDedupe{lru: c}
}

// shouldApply reports whether ts is newer than the last applied
// timestamp for key. It does not record ts: call applied once the
// eviction actually succeeded, so a retried message is not mistaken
// for a duplicate.
func (d *eventDedupe) shouldApply(key string, ts int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return !ok || ts > last
}

func (d *eventDedupe) applied(key string, ts int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && ts <= last {
		return
	}
	d.lru.Add(key, ts)
}
