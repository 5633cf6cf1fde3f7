// Package dialogue drives the round-based conversation between the Planner
// and the Executer: it writes instructions, waits for tagged blocks and
// records every transition in the task store.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"politerm/internal/channel"
	"politerm/internal/event"
	"politerm/internal/interrupt"
	"politerm/internal/logging"
	"politerm/internal/metrics"
	polotel "politerm/internal/otel"
	"politerm/internal/prompt"
	"politerm/internal/protocol"
	"politerm/internal/state"
	"politerm/internal/waiter"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPlanTimeout = 180 * time.Second
	DefaultExecTimeout = 900 * time.Second
	DefaultMaxRounds   = 10
	defaultMonitorIdle = 500 * time.Millisecond
)

// WriteError reports a failed write to an agent. The task it belonged to is
// abandoned with its status unchanged.
type WriteError struct {
	Party protocol.Party
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.Party, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type Options struct {
	Channel   channel.Channel
	Store     *state.Store
	Interrupt *interrupt.Controller
	Logger    *logging.Logger
	Bus       *event.Bus[event.DialogueEvent]
	Metrics   *metrics.Registry
	Tracer    trace.Tracer
	Clock     waiter.Clock
	// Prompts renders agent instructions; nil uses the built-in templates.
	Prompts *prompt.Set

	PlanTimeout  time.Duration
	ExecTimeout  time.Duration
	PollInterval time.Duration
	CaptureLines int
	MaxRounds    int
	Nudge        bool
	// MonitorIdle is the pause between Planner polls in Monitor after a wait
	// times out.
	MonitorIdle time.Duration
	NewTaskID   func() string
}

// Outcome is the result of one task.
type Outcome struct {
	TaskID    string       `json:"task_id"`
	Status    state.Status `json:"status"`
	Rounds    int          `json:"rounds"`
	MaxRounds int          `json:"max_rounds"`
	Messages  int          `json:"messages"`
}

type Engine struct {
	channel   channel.Channel
	store     *state.Store
	interrupt *interrupt.Controller
	logger    *logging.Logger
	bus       *event.Bus[event.DialogueEvent]
	metrics   *metrics.Registry
	tracer    trace.Tracer
	clock     waiter.Clock
	waiter    *waiter.Waiter
	seen      *waiter.SeenSet
	prompts   *prompt.Set

	planTimeout time.Duration
	execTimeout time.Duration
	maxRounds   int
	nudge       bool
	monitorIdle time.Duration
	newTaskID   func() string

	activeTask atomic.Value
	cancelOnce sync.Once

	mu      sync.Mutex
	running map[string]struct{}
}

func New(options Options) *Engine {
	store := options.Store
	if store == nil {
		store = state.NewStore()
	}
	tracer := options.Tracer
	if tracer == nil {
		tracer = polotel.Tracer()
	}
	clock := options.Clock
	if clock == nil {
		clock = waiter.RealClock()
	}
	prompts := options.Prompts
	if prompts == nil {
		prompts = prompt.Default()
	}
	engine := &Engine{
		channel:     options.Channel,
		store:       store,
		interrupt:   options.Interrupt,
		logger:      options.Logger,
		bus:         options.Bus,
		metrics:     options.Metrics,
		tracer:      tracer,
		clock:       clock,
		seen:        waiter.NewSeenSet(),
		prompts:     prompts,
		planTimeout: positiveDuration(options.PlanTimeout, DefaultPlanTimeout),
		execTimeout: positiveDuration(options.ExecTimeout, DefaultExecTimeout),
		maxRounds:   options.MaxRounds,
		nudge:       options.Nudge,
		monitorIdle: positiveDuration(options.MonitorIdle, defaultMonitorIdle),
		newTaskID:   options.NewTaskID,
		running:     make(map[string]struct{}),
	}
	if engine.maxRounds <= 0 {
		engine.maxRounds = DefaultMaxRounds
	}
	if engine.newTaskID == nil {
		engine.newTaskID = uuid.NewString
	}
	engine.activeTask.Store("")
	engine.waiter = waiter.New(waiter.Options{
		Channel:      options.Channel,
		Interrupt:    options.Interrupt,
		Logger:       options.Logger,
		Clock:        clock,
		Observer:     engineObserver{engine: engine},
		PollInterval: options.PollInterval,
		CaptureLines: options.CaptureLines,
	})
	return engine
}

// Store returns the task store the engine writes to.
func (e *Engine) Store() *state.Store {
	return e.store
}

// MaxRounds returns the configured round limit.
func (e *Engine) MaxRounds() int {
	return e.maxRounds
}

func positiveDuration(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

type engineObserver struct {
	engine *Engine
}

func (o engineObserver) Nudged(party protocol.Party) {
	o.engine.metrics.Nudged(party)
	evt := event.NewDialogueEvent(event.TypeNudgeSent, o.engine.currentTask())
	evt.Party = party.String()
	o.engine.publish(evt)
}

func (o engineObserver) Skipped(party protocol.Party, msg protocol.Message, reason waiter.SkipReason) {
	o.engine.metrics.Skipped(party, msg, string(reason))
}

func (e *Engine) currentTask() string {
	value, _ := e.activeTask.Load().(string)
	return value
}

func (e *Engine) publish(evt event.DialogueEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(evt)
}

// begin registers a task and makes it the active one.
func (e *Engine) begin(taskID, request string) (state.TaskState, error) {
	task := e.store.GetOrCreate(taskID)
	if task.Status.Terminal() {
		return task, fmt.Errorf("%w: %s is %s", state.ErrTerminal, taskID, task.Status)
	}
	if request != "" {
		updated, err := e.store.Update(taskID, func(task *state.TaskState) error {
			task.Prompt = request
			return nil
		})
		if err != nil {
			return task, err
		}
		task = updated
	}
	e.activeTask.Store(taskID)
	e.setRunning(taskID, true)
	e.metrics.TaskStarted()
	e.publish(event.NewDialogueEvent(event.TypeTaskStarted, taskID))
	e.logger.Info("task started", map[string]string{
		"task_id":    taskID,
		"max_rounds": strconv.Itoa(e.maxRounds),
	})
	return task, nil
}

// send writes text to party unless the run was interrupted first.
func (e *Engine) send(ctx context.Context, taskID string, party protocol.Party, text, label string) error {
	if interrupt.Interrupted(ctx, e.interrupt) {
		return errInterrupted
	}
	if err := e.channel.Write(party, text); err != nil {
		e.logger.Error("write failed", map[string]string{
			"task_id": taskID,
			"party":   party.String(),
			"error":   err.Error(),
		})
		return &WriteError{Party: party, Err: err}
	}
	evt := event.NewDialogueEvent(event.TypeInstructionSent, taskID)
	evt.Party = party.String()
	evt.Detail = label
	e.publish(evt)
	polotel.RecordSpanEvent(ctx, "instruction_sent",
		attribute.String("party", party.String()),
		attribute.String("label", label),
	)
	return nil
}

var errInterrupted = errors.New("interrupted")

// wait blocks for the next qualifying block from party.
func (e *Engine) wait(ctx context.Context, taskID string, party protocol.Party, kinds []protocol.Kind, timeout time.Duration, nudge bool) waiter.Result {
	ctx, span := e.tracer.Start(ctx, "dialogue.wait", trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.String("party", party.String()),
	))
	recipient := protocol.PartyNone
	if party == protocol.Executer {
		recipient = protocol.Planner
	}
	result := e.waiter.Wait(ctx, waiter.Request{
		Party:     party,
		Seen:      e.seen,
		Timeout:   timeout,
		Kinds:     kinds,
		Recipient: recipient,
		Nudge:     nudge,
		TaskID:    taskID,
	})
	span.SetAttributes(
		attribute.String("outcome", result.Outcome.String()),
		attribute.Int("nudges", result.Nudges),
	)
	if result.Outcome == waiter.Received {
		span.SetAttributes(
			attribute.String("block.id", result.Message.ID),
			attribute.String("block.type", result.Message.Kind.String()),
		)
		e.metrics.BlockReceived(party, result.Message.Kind)
		evt := event.NewDialogueEvent(event.TypeBlockReceived, taskID)
		evt.Party = party.String()
		evt.Kind = result.Message.Kind.String()
		evt.MessageID = result.Message.ID
		evt.Detail = result.Message.Summary(120)
		e.publish(evt)
	}
	e.metrics.ObserveWait(party, result.Outcome.String(), result.Elapsed)
	span.End()
	return result
}

// update applies fn to the task and publishes the resulting status.
func (e *Engine) update(taskID string, fn func(*state.TaskState) error) (state.TaskState, error) {
	before, _ := e.store.Snapshot(taskID)
	task, err := e.store.Update(taskID, fn)
	if err != nil {
		return task, err
	}
	if task.Status != before.Status {
		evt := event.NewDialogueEvent(event.TypeStatusChanged, taskID)
		evt.Round = task.Round
		evt.Status = task.Status.String()
		e.publish(evt)
	}
	if task.Round != before.Round {
		e.metrics.RoundStarted()
	}
	return task, nil
}

// finish moves the task to a terminal status.
func (e *Engine) finish(taskID string, status state.Status, record *protocol.Message) Outcome {
	task, err := e.store.Update(taskID, func(task *state.TaskState) error {
		if record != nil {
			task.Record(*record)
		}
		task.Expect(protocol.PartyNone, protocol.KindUnknown)
		return task.Transition(status)
	})
	if err != nil {
		e.logger.Warn("cannot finish task", map[string]string{
			"task_id": taskID,
			"status":  status.String(),
			"error":   err.Error(),
		})
		task, _ = e.store.Snapshot(taskID)
		return e.outcome(task)
	}
	e.setRunning(taskID, false)
	e.metrics.TaskFinished(status.String())
	evt := event.NewDialogueEvent(event.TypeTaskFinished, taskID)
	evt.Round = task.Round
	evt.Status = status.String()
	e.publish(evt)
	fields := map[string]string{
		"task_id": taskID,
		"status":  status.String(),
		"round":   strconv.Itoa(task.Round),
	}
	if status == state.StatusCompleted {
		e.logger.Info("task finished", fields)
	} else {
		e.logger.Warn("task finished", fields)
	}
	return e.outcome(task)
}

func (e *Engine) outcome(task state.TaskState) Outcome {
	return Outcome{
		TaskID:    task.TaskID,
		Status:    task.Status,
		Rounds:    task.Round,
		MaxRounds: e.maxRounds,
		Messages:  len(task.History),
	}
}

// handleInterrupt broadcasts the cancel notice once per engine and marks
// every unfinished task interrupted.
func (e *Engine) handleInterrupt(taskID string) Outcome {
	e.cancelOnce.Do(func() {
		e.logger.Warn("interrupted, cancelling agents", map[string]string{
			"reason": e.interrupt.Reason(),
		})
		interrupter, canInterrupt := e.channel.(channel.Interrupter)
		for _, party := range protocol.Parties {
			if canInterrupt {
				if err := interrupter.Interrupt(party); err != nil {
					e.logger.Warn("cancel key failed", map[string]string{
						"party": party.String(),
						"error": err.Error(),
					})
				}
			}
			if err := e.channel.Write(party, CancelNotice); err != nil {
				e.logger.Warn("cancel notice failed", map[string]string{
					"party": party.String(),
					"error": err.Error(),
				})
			}
		}
	})
	for _, id := range e.store.Pending() {
		e.finish(id, state.StatusInterrupted, nil)
	}
	if taskID == "" {
		return Outcome{Status: state.StatusInterrupted, MaxRounds: e.maxRounds}
	}
	task, _ := e.store.Snapshot(taskID)
	return e.outcome(task)
}

// sendOrStop writes text and reports whether the task must stop, with the
// outcome and error to return when it does.
func (e *Engine) sendOrStop(ctx context.Context, taskID string, party protocol.Party, text, label string) (Outcome, bool, error) {
	err := e.send(ctx, taskID, party, text, label)
	switch {
	case err == nil:
		return Outcome{}, false, nil
	case errors.Is(err, errInterrupted):
		return e.handleInterrupt(taskID), true, nil
	default:
		e.abandon(taskID)
		task, _ := e.store.Snapshot(taskID)
		return e.outcome(task), true, err
	}
}

// setRunning adds or removes taskID from the tasks the engine is driving
// and reports the new count.
func (e *Engine) setRunning(taskID string, running bool) {
	e.mu.Lock()
	if running {
		e.running[taskID] = struct{}{}
	} else {
		delete(e.running, taskID)
	}
	count := len(e.running)
	e.mu.Unlock()
	e.metrics.SetActiveTasks(count)
}

// Running returns how many tasks are in progress.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// abandon stops driving a task after a failed write. Its status is left as
// it was, so Monitor can pick it up again.
func (e *Engine) abandon(taskID string) {
	e.setRunning(taskID, false)
	e.metrics.TaskAbandoned()
}
