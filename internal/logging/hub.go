package logging

import (
	"sync"
	"sync/atomic"
)

// subscriberQueue bounds each live subscriber. When a queue is full the
// entry is dropped for that subscriber only and counted.
const subscriberQueue = 100

type subscriber struct {
	minLevel Level
	entries  chan LogEntry
}

// fanout hands every entry to the subscribers whose level it meets.
type fanout struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]subscriber
	dropped atomic.Int64
}

func newFanout() *fanout {
	return &fanout{subs: make(map[uint64]subscriber)}
}

func (f *fanout) subscribe(minLevel Level) (<-chan LogEntry, func()) {
	sub := subscriber{minLevel: minLevel, entries: make(chan LogEntry, subscriberQueue)}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	return sub.entries, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.entries)
		})
	}
}

// deliver never blocks the caller.
func (f *fanout) deliver(entry LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if !LevelAtLeast(entry.Level, sub.minLevel) {
			continue
		}
		select {
		case sub.entries <- entry:
		default:
			f.dropped.Add(1)
		}
	}
}

func (f *fanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
