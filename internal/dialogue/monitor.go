package dialogue

import (
	"context"
	"errors"
	"regexp"

	"politerm/internal/interrupt"
	"politerm/internal/protocol"
	"politerm/internal/state"
	"politerm/internal/waiter"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var roundSuffix = regexp.MustCompile(`^(.+)-R\d+$`)

// TaskIDFromBlock maps a block id to its task: round ids like "t1-R3"
// belong to task "t1".
func TaskIDFromBlock(id string) string {
	if match := roundSuffix.FindStringSubmatch(id); match != nil {
		return match[1]
	}
	return id
}

// Monitor passively watches the Planner, which the user talks to directly,
// and runs an execution round whenever it emits an instruction. The Planner
// is never nudged and a quiet Planner is not a failure. Tasks are handled
// one at a time. Monitor returns nil once the run is interrupted.
func (e *Engine) Monitor(ctx context.Context) error {
	e.logger.Info("monitoring planner", map[string]string{})
	for {
		if interrupt.Interrupted(ctx, e.interrupt) {
			e.handleInterrupt("")
			return nil
		}
		result := e.wait(ctx, "", protocol.Planner, protocol.PlannerKinds, e.planTimeout, false)
		switch result.Outcome {
		case waiter.Interrupted:
			e.handleInterrupt("")
			return nil
		case waiter.TimedOut:
			e.idle(ctx)
			continue
		}

		if err := e.monitorBlock(ctx, result.Message); err != nil {
			var writeErr *WriteError
			if !errors.As(err, &writeErr) {
				return err
			}
			e.logger.Error("task abandoned", map[string]string{
				"id":    result.Message.ID,
				"error": err.Error(),
			})
		}
	}
}

func (e *Engine) monitorBlock(ctx context.Context, msg protocol.Message) error {
	taskID := TaskIDFromBlock(msg.ID)
	if taskID == "" {
		taskID = e.newTaskID()
	}
	if existing, ok := e.store.Snapshot(taskID); ok {
		if existing.Status.Terminal() {
			e.logger.Info("ignoring block for finished task", map[string]string{
				"task_id": taskID,
				"status":  existing.Status.String(),
				"type":    msg.Kind.String(),
			})
			return nil
		}
		e.activeTask.Store(taskID)
		e.setRunning(taskID, true)
	} else if _, err := e.begin(taskID, ""); err != nil {
		return err
	}

	ctx, span := e.tracer.Start(ctx, "dialogue.monitor_block", trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.String("type", msg.Kind.String()),
	))
	defer span.End()

	if msg.Kind == protocol.KindComplete {
		e.finish(taskID, state.StatusCompleted, &msg)
		return nil
	}
	result, _, stop, err := e.runRound(ctx, taskID, msg)
	if stop {
		return err
	}
	task, _ := e.store.Snapshot(taskID)
	_, _, err = e.sendOrStop(ctx, taskID, protocol.Planner, e.reviewPrompt(taskID, task.Prompt, task.Round, result), "review")
	return err
}

func (e *Engine) idle(ctx context.Context) {
	select {
	case <-e.clock.After(e.monitorIdle):
	case <-e.interrupt.Done():
	case <-ctx.Done():
	}
}
