package tmuxsession

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultPlannerSession  = "planner"
	DefaultExecuterSession = "executer"
	DefaultWindow          = "tui"
)

// Client defines the tmux operations used by this package.
type Client interface {
	HasSession(name string) (bool, error)
}

// Options carries the configured targeting hints. Explicit targets win over
// session discovery.
type Options struct {
	PlannerTarget   string
	ExecuterTarget  string
	PlannerSession  string
	ExecuterSession string
	LegacySession   string
	Window          string
}

// Targets are the resolved tmux pane targets for both parties.
type Targets struct {
	Planner  string
	Executer string
}

// Sessions returns the distinct session names behind the targets.
func (t Targets) Sessions() []string {
	sessions := []string{}
	for _, target := range []string{t.Planner, t.Executer} {
		name := SessionFromTarget(target)
		if name == "" {
			continue
		}
		duplicate := false
		for _, existing := range sessions {
			if existing == name {
				duplicate = true
				break
			}
		}
		if !duplicate {
			sessions = append(sessions, name)
		}
	}
	return sessions
}

// Resolve picks pane targets in order: explicit targets; dedicated planner
// and executer sessions when both exist; a legacy single session split into
// panes .0 and .1; otherwise the configured names even if not running yet.
func Resolve(client Client, opts Options) (Targets, error) {
	plannerTarget := strings.TrimSpace(opts.PlannerTarget)
	executerTarget := strings.TrimSpace(opts.ExecuterTarget)
	if plannerTarget != "" && executerTarget != "" {
		return Targets{Planner: plannerTarget, Executer: executerTarget}, nil
	}
	if client == nil {
		return Targets{}, errors.New("tmux client unavailable")
	}

	window := strings.TrimSpace(opts.Window)
	if window == "" {
		window = DefaultWindow
	}
	plannerSession := strings.TrimSpace(opts.PlannerSession)
	executerSession := strings.TrimSpace(opts.ExecuterSession)
	legacy := strings.TrimSpace(opts.LegacySession)

	defaultPlanner := firstNonEmpty(plannerSession, DefaultPlannerSession)
	defaultExecuter := firstNonEmpty(executerSession, DefaultExecuterSession)

	plannerUp, err := client.HasSession(defaultPlanner)
	if err != nil {
		return Targets{}, err
	}
	executerUp := false
	if plannerUp {
		executerUp, err = client.HasSession(defaultExecuter)
		if err != nil {
			return Targets{}, err
		}
	}
	if plannerUp && executerUp {
		return Targets{
			Planner:  fmt.Sprintf("%s:%s.0", defaultPlanner, window),
			Executer: fmt.Sprintf("%s:%s.0", defaultExecuter, window),
		}, nil
	}

	if legacy != "" {
		legacyUp, err := client.HasSession(legacy)
		if err != nil {
			return Targets{}, err
		}
		if legacyUp {
			return Targets{Planner: legacy + ".0", Executer: legacy + ".1"}, nil
		}
	}

	fallbackPlanner := firstNonEmpty(plannerSession, legacy, DefaultPlannerSession)
	fallbackExecuter := firstNonEmpty(executerSession, legacy, DefaultExecuterSession)
	if fallbackPlanner == fallbackExecuter {
		return Targets{Planner: fallbackPlanner + ".0", Executer: fallbackExecuter + ".1"}, nil
	}
	return Targets{
		Planner:  fmt.Sprintf("%s:%s.0", fallbackPlanner, window),
		Executer: fmt.Sprintf("%s:%s.0", fallbackExecuter, window),
	}, nil
}

// SessionFromTarget extracts the session name from a tmux target such as
// "planner:tui.0" or "main.1".
func SessionFromTarget(target string) string {
	trimmed := strings.TrimSpace(target)
	if index := strings.Index(trimmed, ":"); index >= 0 {
		return trimmed[:index]
	}
	if index := strings.Index(trimmed, "."); index >= 0 {
		return trimmed[:index]
	}
	return trimmed
}

// AllRunning reports whether every session behind targets exists.
func AllRunning(client Client, targets Targets) (bool, error) {
	if client == nil {
		return false, errors.New("tmux client unavailable")
	}
	for _, name := range targets.Sessions() {
		ok, err := client.HasSession(name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
