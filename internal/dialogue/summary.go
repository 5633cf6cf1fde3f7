package dialogue

import (
	"fmt"
	"strings"

	"politerm/internal/state"
)

// Describe returns a one-line account of how a task ended.
func Describe(outcome Outcome) string {
	switch outcome.Status {
	case state.StatusCompleted:
		return fmt.Sprintf("task %s completed after %d round(s)", outcome.TaskID, outcome.Rounds)
	case state.StatusTimeout:
		return fmt.Sprintf("task %s stopped: PLANNER did not answer in time (round %d)", outcome.TaskID, outcome.Rounds)
	case state.StatusExecTimeout:
		return fmt.Sprintf("task %s stopped: EXECUTER did not report a result for round %d in time", outcome.TaskID, outcome.Rounds)
	case state.StatusMaxRounds:
		return fmt.Sprintf("task %s stopped: reached the maximum of %d rounds", outcome.TaskID, outcome.MaxRounds)
	case state.StatusInterrupted:
		return fmt.Sprintf("task %s interrupted by the user at round %d", outcome.TaskID, outcome.Rounds)
	default:
		return fmt.Sprintf("task %s ended with status %s after %d round(s)", outcome.TaskID, outcome.Status, outcome.Rounds)
	}
}

// Summary describes a set of outcomes, one line each.
func Summary(outcomes []Outcome) string {
	lines := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		lines = append(lines, Describe(outcome))
	}
	return strings.Join(lines, "\n")
}

// OutcomeOf converts a stored task to an outcome.
func OutcomeOf(task state.TaskState, maxRounds int) Outcome {
	return Outcome{
		TaskID:    task.TaskID,
		Status:    task.Status,
		Rounds:    task.Round,
		MaxRounds: maxRounds,
		Messages:  len(task.History),
	}
}
