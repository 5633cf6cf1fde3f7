package dialogue

import (
	"context"
	"errors"

	"politerm/internal/interrupt"
	polotel "politerm/internal/otel"
	"politerm/internal/protocol"
	"politerm/internal/state"
	"politerm/internal/waiter"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RouteContinuous runs the full dialogue for one task: the Planner plans,
// the Executer executes, the Planner reviews, until the Planner completes
// the task, a wait times out, the round limit is hit or the run is
// interrupted. An empty taskID gets a generated one.
func (e *Engine) RouteContinuous(ctx context.Context, request, taskID string) (Outcome, error) {
	if taskID == "" {
		taskID = e.newTaskID()
	}
	ctx, span := e.tracer.Start(ctx, "dialogue.route_continuous", trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.Int("max_rounds", e.maxRounds),
	))
	outcome, err := e.routeContinuous(ctx, request, taskID)
	span.SetAttributes(
		attribute.String("status", outcome.Status.String()),
		attribute.Int("rounds", outcome.Rounds),
	)
	polotel.EndSpan(span, err)
	return outcome, err
}

func (e *Engine) routeContinuous(ctx context.Context, request, taskID string) (Outcome, error) {
	task, err := e.begin(taskID, request)
	if err != nil {
		return e.outcome(task), err
	}
	if out, stop, err := e.sendOrStop(ctx, taskID, protocol.Planner, e.openingPrompt(taskID, request), "opening"); stop {
		return out, err
	}

	for {
		msg, out, stop := e.awaitPlanner(ctx, taskID, e.nudge)
		if stop {
			return out, nil
		}
		if msg.Kind == protocol.KindComplete {
			return e.complete(ctx, taskID, msg, e.summaryPrompt(taskID))
		}

		result, out, stop, err := e.runRound(ctx, taskID, msg)
		if stop {
			return out, err
		}
		task, _ := e.store.Snapshot(taskID)
		review := e.reviewPrompt(taskID, request, task.Round, result)
		if out, stop, err := e.sendOrStop(ctx, taskID, protocol.Planner, review, "review"); stop {
			return out, err
		}
	}
}

// RouteOnce runs a single bounded cycle: one plan, one execution and a
// final summary request to the Planner.
func (e *Engine) RouteOnce(ctx context.Context, request, taskID string) (Outcome, error) {
	if taskID == "" {
		taskID = e.newTaskID()
	}
	ctx, span := e.tracer.Start(ctx, "dialogue.route_once", trace.WithAttributes(
		attribute.String("task_id", taskID),
	))
	outcome, err := e.routeOnce(ctx, request, taskID)
	span.SetAttributes(attribute.String("status", outcome.Status.String()))
	polotel.EndSpan(span, err)
	return outcome, err
}

func (e *Engine) routeOnce(ctx context.Context, request, taskID string) (Outcome, error) {
	task, err := e.begin(taskID, request)
	if err != nil {
		return e.outcome(task), err
	}
	if out, stop, err := e.sendOrStop(ctx, taskID, protocol.Planner, e.onceOpeningPrompt(taskID, request), "opening"); stop {
		return out, err
	}

	msg, out, stop := e.awaitPlanner(ctx, taskID, e.nudge)
	if stop {
		return out, nil
	}
	if msg.Kind == protocol.KindComplete {
		return e.complete(ctx, taskID, msg, e.summaryPrompt(taskID))
	}

	result, out, stop, err := e.runRound(ctx, taskID, msg)
	if stop {
		return out, err
	}
	if out, stop, err := e.sendOrStop(ctx, taskID, protocol.Planner, e.onceSummaryPrompt(taskID, result), "summary"); stop {
		return out, err
	}
	return e.finish(taskID, state.StatusCompleted, nil), nil
}

// awaitPlanner waits for the Planner's next instruction or verdict. When it
// returns stop, the task has already reached its final status.
func (e *Engine) awaitPlanner(ctx context.Context, taskID string, nudge bool) (protocol.Message, Outcome, bool) {
	result := e.wait(ctx, taskID, protocol.Planner, protocol.PlannerKinds, e.planTimeout, nudge)
	switch result.Outcome {
	case waiter.Interrupted:
		return protocol.Message{}, e.handleInterrupt(taskID), true
	case waiter.TimedOut:
		return protocol.Message{}, e.finish(taskID, state.StatusTimeout, nil), true
	}
	return result.Message, Outcome{}, false
}

// complete records the Planner's completion and asks once for a summary.
// No block is expected in reply.
func (e *Engine) complete(ctx context.Context, taskID string, msg protocol.Message, summary string) (Outcome, error) {
	out := e.finish(taskID, state.StatusCompleted, &msg)
	err := e.send(ctx, taskID, protocol.Planner, summary, "summary")
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, errInterrupted):
		return e.handleInterrupt(taskID), nil
	default:
		return out, err
	}
}

// runRound forwards a Planner instruction to the Executer and waits for its
// result. The round limit is checked before anything is sent.
func (e *Engine) runRound(ctx context.Context, taskID string, instruction protocol.Message) (protocol.Message, Outcome, bool, error) {
	current, _ := e.store.Snapshot(taskID)
	if current.Round >= e.maxRounds {
		e.logger.Warn("maximum rounds reached", map[string]string{
			"task_id": taskID,
			"type":    instruction.Kind.String(),
		})
		return protocol.Message{}, e.finish(taskID, state.StatusMaxRounds, &instruction), true, nil
	}
	if interrupt.Interrupted(ctx, e.interrupt) {
		return protocol.Message{}, e.handleInterrupt(taskID), true, nil
	}

	task, err := e.update(taskID, func(task *state.TaskState) error {
		task.Record(instruction)
		task.AdvanceRound()
		task.Expect(protocol.Executer, protocol.KindResult)
		return task.Transition(state.StatusExecuting)
	})
	if err != nil {
		return protocol.Message{}, e.outcome(current), true, err
	}
	ctx, span := e.tracer.Start(ctx, "dialogue.round", trace.WithAttributes(
		attribute.String("task_id", taskID),
		attribute.Int("round", task.Round),
		attribute.String("instruction", instruction.Kind.String()),
	))
	defer span.End()

	if out, stop, err := e.sendOrStop(ctx, taskID, protocol.Executer, e.executionPrompt(taskID, task.Round, instruction), "execute"); stop {
		return protocol.Message{}, out, true, err
	}

	result, out, stop := e.awaitResult(ctx, taskID)
	if stop {
		return protocol.Message{}, out, true, nil
	}
	if _, err := e.update(taskID, func(task *state.TaskState) error {
		task.Record(result)
		task.Expect(protocol.Planner, protocol.KindContinue)
		return task.Transition(state.StatusAwaitingReview)
	}); err != nil {
		current, _ := e.store.Snapshot(taskID)
		return protocol.Message{}, e.outcome(current), true, err
	}
	return result, Outcome{}, false, nil
}

// awaitResult waits for the Executer's result or error. Status blocks are
// recorded and the wait goes on within the same execution budget.
func (e *Engine) awaitResult(ctx context.Context, taskID string) (protocol.Message, Outcome, bool) {
	remaining := e.execTimeout
	for {
		result := e.wait(ctx, taskID, protocol.Executer, protocol.ExecuterKinds, remaining, e.nudge)
		switch result.Outcome {
		case waiter.Interrupted:
			return protocol.Message{}, e.handleInterrupt(taskID), true
		case waiter.TimedOut:
			return protocol.Message{}, e.finish(taskID, state.StatusExecTimeout, nil), true
		}
		msg := result.Message
		if msg.Kind.Outcome() {
			return msg, Outcome{}, false
		}

		e.logger.Info("executer status", map[string]string{
			"task_id": taskID,
			"id":      msg.ID,
			"summary": msg.Summary(120),
		})
		if _, err := e.update(taskID, func(task *state.TaskState) error {
			task.Record(msg)
			return nil
		}); err != nil {
			e.logger.Warn("cannot record status", map[string]string{"task_id": taskID, "error": err.Error()})
		}
		remaining -= result.Elapsed
		if remaining <= 0 {
			return protocol.Message{}, e.finish(taskID, state.StatusExecTimeout, nil), true
		}
	}
}
