package main

import (
	"flag"
	"fmt"

	"politerm/internal/cli"
	"politerm/internal/dialogue"
)

func runMonitor(args []string, env environment) int {
	flagSet := flag.NewFlagSet("monitor", flag.ContinueOnError)
	flagSet.SetOutput(env.Stderr)
	common := addCommonFlags(flagSet)
	flagSet.IntVar(&common.MaxRounds, "max-rounds", 0, "Maximum execution rounds per task")
	if code, done := parseFlags(flagSet, common, args, env); done {
		return code
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

	fmt.Fprintln(env.Stdout, "Monitoring PLANNER. Talk to it directly; press Ctrl-C to stop.")
	err = rt.engine.Monitor(rt.ctx)

	tasks := rt.engine.Store().List()
	outcomes := make([]dialogue.Outcome, 0, len(tasks))
	for _, task := range tasks {
		outcomes = append(outcomes, dialogue.OutcomeOf(task, rt.engine.MaxRounds()))
	}
	if len(outcomes) > 0 {
		fmt.Fprintln(env.Stdout, dialogue.Summary(outcomes))
	}
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeForError(err)
	}
	if rt.controller.Tripped() {
		return cli.ExitInterrupted
	}
	return cli.ExitOK
}
