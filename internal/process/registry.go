// Package process tracks the agent processes politerm launches itself and
// stops them as a group when the channel shuts down.
package process

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// DefaultStopTimeout bounds how long a stop waits for an agent to exit after
// SIGTERM when the caller's context carries no deadline.
const DefaultStopTimeout = 3 * time.Second

var ErrProcessNotFound = errors.New("process not running")

// WaitFunc blocks until the process exits or ctx ends.
type WaitFunc func(context.Context) error

// Agent is one launched agent process. Group is its process group id, zero
// when the agent shares politerm's group.
type Agent struct {
	Name  string
	PID   int
	Group int
	Wait  WaitFunc
}

type Registry struct {
	mu     sync.Mutex
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Track records an agent under its name, replacing any earlier agent with
// the same name.
func (r *Registry) Track(agent Agent) {
	if r == nil || agent.PID <= 0 || agent.Name == "" {
		return
	}
	r.mu.Lock()
	r.agents[agent.Name] = agent
	r.mu.Unlock()
}

func (r *Registry) Forget(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.agents, name)
	r.mu.Unlock()
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

// Stop terminates one agent. An agent that already exited is not an error.
func (r *Registry) Stop(ctx context.Context, name string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	agent, ok := r.agents[name]
	delete(r.agents, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return stopAgent(ctx, agent)
}

// StopAll terminates every tracked agent in name order and empties the
// registry.
func (r *Registry) StopAll(ctx context.Context) error {
	var stopErr error
	for _, name := range r.Names() {
		if err := r.Stop(ctx, name); err != nil {
			stopErr = errors.Join(stopErr, err)
		}
	}
	return stopErr
}

func stopAgent(ctx context.Context, agent Agent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultStopTimeout)
		defer cancel()
	}
	err := stopProcess(ctx, agent.PID, agent.Group, agent.Wait)
	if errors.Is(err, ErrProcessNotFound) {
		return nil
	}
	return err
}

// WaitOnce wraps cmd.Wait so it runs exactly once no matter how many callers
// wait. Every caller sees the same exit error.
func WaitOnce(cmd *exec.Cmd) WaitFunc {
	var (
		once   sync.Once
		done   = make(chan struct{})
		result error
	)
	start := func() {
		go func() {
			result = cmd.Wait()
			close(done)
		}()
	}
	return func(ctx context.Context) error {
		once.Do(start)
		select {
		case <-done:
			return result
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
