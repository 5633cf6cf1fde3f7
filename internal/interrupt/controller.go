// Package interrupt provides the cooperative cancellation token shared by the
// waiter and the dialogue engine. It is tripped once and observed only at
// loop checkpoints; it never preempts channel I/O already in flight.
package interrupt

import (
	"context"
	"sync"
	"sync/atomic"
)

type Controller struct {
	once    sync.Once
	done    chan struct{}
	tripped atomic.Bool
	reason  atomic.Value
}

func New() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Trip marks the controller as interrupted. Only the first call has effect.
func (c *Controller) Trip(reason string) bool {
	if c == nil {
		return false
	}
	first := false
	c.once.Do(func() {
		first = true
		c.reason.Store(reason)
		c.tripped.Store(true)
		close(c.done)
	})
	return first
}

// Tripped reports whether Trip has been called. A nil controller never trips.
func (c *Controller) Tripped() bool {
	if c == nil {
		return false
	}
	return c.tripped.Load()
}

// Done is closed when the controller trips. A nil controller returns a nil
// channel, which blocks forever in a select.
func (c *Controller) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.done
}

func (c *Controller) Reason() string {
	if c == nil {
		return ""
	}
	if value, ok := c.reason.Load().(string); ok {
		return value
	}
	return ""
}

// Context derives a context that is cancelled when the controller trips.
func (c *Controller) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	if c == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Interrupted reports whether work bound to ctx and c must stop.
func Interrupted(ctx context.Context, c *Controller) bool {
	if c.Tripped() {
		return true
	}
	return ctx != nil && ctx.Err() != nil
}
