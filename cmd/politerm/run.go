package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strings"

	"politerm/internal/cli"
	"politerm/internal/dialogue"
	"politerm/internal/state"
)

type routeFunc func(ctx context.Context, request, taskID string) (dialogue.Outcome, error)

func runRun(args []string, env environment) int {
	flagSet := flag.NewFlagSet("run", flag.ContinueOnError)
	flagSet.SetOutput(env.Stderr)
	common := addCommonFlags(flagSet)
	task := flagSet.String("task", "", "Task to route; without it tasks are read from stdin")
	taskID := flagSet.String("task-id", "", "Task id (generated when empty)")
	once := flagSet.Bool("once", false, "Run a single plan/execute/summary cycle")
	flagSet.IntVar(&common.MaxRounds, "max-rounds", 0, "Maximum execution rounds per task")
	if code, done := parseFlags(flagSet, common, args, env); done {
		return code
	}
	request := strings.TrimSpace(*task)
	if request == "" && flagSet.NArg() > 0 {
		request = strings.Join(flagSet.Args(), " ")
	}

	settings, err := loadSettings(common, env)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return cli.ExitUsage
	}
	rt, code := newRuntime(settings, env)
	if rt == nil {
		return code
	}
	defer rt.Close()

	route := routeFunc(rt.engine.RouteContinuous)
	if *once {
		route = rt.engine.RouteOnce
	}
	if request == "" {
		return interactive(rt, route, env)
	}

	outcome, err := route(rt.ctx, request, strings.TrimSpace(*taskID))
	fmt.Fprintln(env.Stdout, dialogue.Describe(outcome))
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeForError(err)
	}
	return cli.ExitCodeForStatus(outcome.Status)
}

// interactive reads one task per line until exit, end of input or an
// interrupt.
func interactive(rt *runtime, route routeFunc, env environment) int {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(env.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	fmt.Fprintln(env.Stdout, "Enter a task, or one of: status, state, exit")
	var outcomes []dialogue.Outcome
	for {
		fmt.Fprint(env.Stdout, "> ")
		var line string
		select {
		case <-rt.controller.Done():
			return cli.ExitInterrupted
		case next, ok := <-lines:
			if !ok {
				return cli.ExitOK
			}
			line = strings.TrimSpace(next)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return cli.ExitOK
		case "status":
			if len(outcomes) == 0 {
				fmt.Fprintln(env.Stdout, "no tasks yet")
			} else {
				fmt.Fprintln(env.Stdout, dialogue.Summary(outcomes))
			}
			continue
		case "state":
			if err := state.Export(env.Stdout, state.FormatJSON, rt.engine.Store().List()); err != nil {
				fmt.Fprintln(env.Stderr, err)
			}
			continue
		}

		outcome, err := route(rt.ctx, line, "")
		outcomes = append(outcomes, outcome)
		fmt.Fprintln(env.Stdout, dialogue.Describe(outcome))
		if err != nil {
			fmt.Fprintln(env.Stderr, err)
			if code := exitCodeForError(err); code == cli.ExitUnavailable {
				return code
			}
		}
		if outcome.Status == state.StatusInterrupted {
			return cli.ExitInterrupted
		}
	}
}
