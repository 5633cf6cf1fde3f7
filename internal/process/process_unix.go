//go:build !windows

package process

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

const pollInterval = 50 * time.Millisecond

// GroupID returns the process group of pid, or zero when it cannot be read.
func GroupID(pid int) int {
	if pid <= 0 {
		return 0
	}
	group, err := syscall.Getpgid(pid)
	if err != nil {
		return 0
	}
	return group
}

// stopProcess sends SIGTERM to the agent's group and escalates to SIGKILL
// when the agent is still alive at the deadline.
func stopProcess(ctx context.Context, pid, group int, wait WaitFunc) error {
	if pid <= 0 {
		return nil
	}
	if !alive(pid) {
		return ErrProcessNotFound
	}
	termErr := ignoreGone(signalGroup(pid, group, syscall.SIGTERM))
	waitErr := waitForExit(ctx, pid, wait)
	if killedBySignal(waitErr) {
		waitErr = nil
	}
	if waitErr == nil {
		return termErr
	}
	killErr := ignoreGone(signalGroup(pid, group, syscall.SIGKILL))
	// The first deadline is spent; give the kill a short grace period.
	grace, cancel := context.WithTimeout(context.Background(), 10*pollInterval)
	defer cancel()
	if err := waitForExit(grace, pid, wait); err == nil || killedBySignal(err) {
		return termErr
	}
	return errors.Join(termErr, waitErr, killErr)
}

func signalGroup(pid, group int, sig syscall.Signal) error {
	target := pid
	if group > 0 {
		target = -group
	}
	return syscall.Kill(target, sig)
}

func ignoreGone(err error) error {
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func waitForExit(ctx context.Context, pid int, wait WaitFunc) error {
	if wait != nil {
		return wait(ctx)
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for alive(pid) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func killedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled()
}
