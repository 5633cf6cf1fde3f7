package main

import (
	"fmt"
	"io"
	"os"

	"politerm/internal/cli"
	"politerm/internal/version"
)

const usageText = `usage: politerm <command> [flags]

commands:
  run       route a task between PLANNER and EXECUTER (interactive without --task)
  monitor   watch PLANNER and relay its instructions to EXECUTER
  check     resolve the agent sessions and report whether they are running
  state     print a task state export
  schema    print the JSON schema of block metadata

common flags: --config, --backend, --listen, --log-level, --state-file
run "politerm <command> -h" for command flags`

type command interface {
	Run(args []string) int
}

type commandDeps struct {
	Stdout     io.Writer
	Stderr     io.Writer
	RunRun     func(args []string) int
	RunMonitor func(args []string) int
	RunCheck   func(args []string) int
	RunState   func(args []string) int
	RunSchema  func(args []string) int
}

func defaultCommandDeps() commandDeps {
	env := defaultEnvironment()
	return commandDeps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		RunRun:     func(args []string) int { return runRun(args, env) },
		RunMonitor: func(args []string) int { return runMonitor(args, env) },
		RunCheck:   func(args []string) int { return runCheck(args, env) },
		RunState:   func(args []string) int { return runState(args, env) },
		RunSchema:  func(args []string) int { return runSchema(args, env) },
	}
}

type funcCommand func(args []string) int

func (c funcCommand) Run(args []string) int {
	return c(args)
}

type usageCommand struct {
	out  io.Writer
	code int
	note string
}

func (c usageCommand) Run([]string) int {
	if c.note != "" {
		fmt.Fprintln(c.out, c.note)
	}
	fmt.Fprintln(c.out, usageText)
	return c.code
}

type versionCommand struct {
	out io.Writer
}

func (c versionCommand) Run([]string) int {
	fmt.Fprintln(c.out, version.GetVersionInfo().String())
	return cli.ExitOK
}

func resolveCommand(args []string, deps commandDeps) (command, []string) {
	if len(args) == 0 {
		return usageCommand{out: deps.Stderr, code: cli.ExitUsage}, nil
	}
	rest := args[1:]
	switch args[0] {
	case "run":
		return funcCommand(deps.RunRun), rest
	case "monitor":
		return funcCommand(deps.RunMonitor), rest
	case "check":
		return funcCommand(deps.RunCheck), rest
	case "state":
		return funcCommand(deps.RunState), rest
	case "schema":
		return funcCommand(deps.RunSchema), rest
	case "help", "-h", "--help":
		return usageCommand{out: deps.Stdout, code: cli.ExitOK}, nil
	case "version", "-v", "--version":
		return versionCommand{out: deps.Stdout}, nil
	default:
		return usageCommand{out: deps.Stderr, code: cli.ExitUsage, note: fmt.Sprintf("unknown command %q", args[0])}, nil
	}
}
