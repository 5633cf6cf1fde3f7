// Package event is an in-process publish/subscribe bus for dialogue events.
package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"politerm/internal/logging"
)

const defaultSubscriberBufferSize = 128

// Recorder receives bus counters.
type Recorder interface {
	IncEventPublished(bus, eventType string)
	IncEventDropped(bus, eventType string)
	SetEventSubscriberCounts(bus string, filtered, unfiltered int)
}

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	HistorySize          int
	Recorder             Recorder
	Logger               *logging.Logger
}

// Bus fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event.
type Bus[T Event] struct {
	mu           sync.Mutex
	subscribers  map[uint64]subscription[T]
	nextSubID    uint64
	closed       bool
	closeOnce    sync.Once
	options      BusOptions
	published    atomic.Int64
	dropped      atomic.Int64
	history      []T
	historyNext  int
	historyCount int
}

type subscription[T Event] struct {
	id     uint64
	ch     chan T
	filter func(T) bool
}

func NewBus[T Event](ctx context.Context, opts BusOptions) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	if opts.Name == "" {
		opts.Name = "event_bus"
	}
	bus := &Bus[T]{
		subscribers: make(map[uint64]subscription[T]),
		options:     opts,
	}
	if opts.HistorySize > 0 {
		bus.history = make([]T, opts.HistorySize)
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan T, b.options.SubscriberBufferSize)
	id := atomic.AddUint64(&b.nextSubID, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = subscription[T]{id: id, ch: ch, filter: filter}
	filtered, unfiltered := b.countSubscribersLocked()
	b.mu.Unlock()

	b.setSubscriberCounts(filtered, unfiltered)
	return ch, func() { b.removeSubscriber(id) }
}

// SubscribeTypes delivers only events of the given types.
func (b *Bus[T]) SubscribeTypes(eventTypes ...string) (<-chan T, func()) {
	typeSet := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		if eventType != "" {
			typeSet[eventType] = struct{}{}
		}
	}
	return b.SubscribeFiltered(func(event T) bool {
		_, matched := typeSet[event.Type()]
		return matched
	})
}

func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.appendHistoryLocked(event)
	subscribers := make([]subscription[T], 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subscribers = append(subscribers, sub)
	}
	b.mu.Unlock()

	eventType := event.Type()
	b.published.Add(1)
	if b.options.Recorder != nil {
		b.options.Recorder.IncEventPublished(b.options.Name, eventType)
	}
	for _, sub := range subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		b.send(sub, event, eventType)
	}
}

func (b *Bus[T]) send(sub subscription[T], event T, eventType string) {
	delivered := func() (ok bool) {
		// The subscriber may have been removed and its channel closed.
		defer func() {
			if recover() != nil {
				ok = false
			}
		}()
		select {
		case sub.ch <- event:
			return true
		default:
			return false
		}
	}()
	if delivered {
		return
	}
	dropped := b.dropped.Add(1)
	if b.options.Recorder != nil {
		b.options.Recorder.IncEventDropped(b.options.Name, eventType)
	}
	b.options.Logger.Debug("event dropped", map[string]string{
		"bus":     b.options.Name,
		"type":    eventType,
		"dropped": strconv.FormatInt(dropped, 10),
	})
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribers := b.subscribers
		b.subscribers = make(map[uint64]subscription[T])
		b.mu.Unlock()

		for _, sub := range subscribers {
			close(sub.ch)
		}
		b.setSubscriberCounts(0, 0)
	})
}

// DumpHistory returns the retained events, oldest first.
func (b *Bus[T]) DumpHistory() []T {
	return b.historySnapshot(0)
}

// Recent returns up to count of the newest retained events, oldest first.
func (b *Bus[T]) Recent(count int) []T {
	return b.historySnapshot(count)
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped.
func (b *Bus[T]) Dropped() int64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

func (b *Bus[T]) removeSubscriber(id uint64) {
	b.mu.Lock()
	existing, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	filtered, unfiltered := b.countSubscribersLocked()
	b.mu.Unlock()

	if ok {
		close(existing.ch)
		b.setSubscriberCounts(filtered, unfiltered)
	}
}

func (b *Bus[T]) countSubscribersLocked() (filtered int, unfiltered int) {
	for _, sub := range b.subscribers {
		if sub.filter == nil {
			unfiltered++
		} else {
			filtered++
		}
	}
	return filtered, unfiltered
}

func (b *Bus[T]) setSubscriberCounts(filtered, unfiltered int) {
	if b.options.Recorder == nil {
		return
	}
	b.options.Recorder.SetEventSubscriberCounts(b.options.Name, filtered, unfiltered)
}

func (b *Bus[T]) appendHistoryLocked(event T) {
	if len(b.history) == 0 {
		return
	}
	b.history[b.historyNext] = event
	if b.historyCount < len(b.history) {
		b.historyCount++
	}
	b.historyNext = (b.historyNext + 1) % len(b.history)
}

func (b *Bus[T]) historySnapshot(count int) []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.historyCount == 0 {
		return nil
	}
	total := b.historyCount
	if count <= 0 || count > total {
		count = total
	}
	start := (b.historyNext - count + len(b.history)) % len(b.history)
	events := make([]T, 0, count)
	for i := 0; i < count; i++ {
		events = append(events, b.history[(start+i)%len(b.history)])
	}
	return events
}
