//go:build windows

package process

import (
	"context"
	"os"
)

// GroupID is always zero on Windows; agents are stopped one by one.
func GroupID(pid int) int {
	return 0
}

func stopProcess(ctx context.Context, pid, _ int, wait WaitFunc) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessNotFound
	}
	_ = proc.Kill()
	if wait == nil {
		return nil
	}
	return wait(ctx)
}
