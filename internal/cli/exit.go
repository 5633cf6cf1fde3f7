package cli

import "politerm/internal/state"

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitUnavailable = 3
	ExitInterrupted = 130
)

// ExitCodeForStatus maps a task's final status to the process exit code.
func ExitCodeForStatus(status state.Status) int {
	switch status {
	case state.StatusCompleted:
		return ExitOK
	case state.StatusInterrupted:
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
