package main

import (
	"errors"
	"flag"
	"fmt"
	"os/exec"
	"strings"

	"politerm/internal/cli"
	"politerm/internal/config"
)

// runCheck reports how the agents would be reached without writing to them.
func runCheck(args []string, env environment) int {
	flagSet := flag.NewFlagSet("check", flag.ContinueOnError)
	flagSet.SetOutput(env.Stderr)
	common := addCommonFlags(flagSet)
	if code, done := parseFlags(flagSet, common, args, env); done {
		return code
	}
	settings, err := loadSettings(common, env)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return cli.ExitUsage
	}

	fmt.Fprintf(env.Stdout, "backend: %s\n", settings.Channel.Backend)
	if settings.Channel.Backend == "pty" {
		return checkCommands(settings.Channel, env)
	}

	fmt.Fprintf(env.Stdout, "tmux socket: %s\n", settings.Tmux.Socket)
	targets, err := resolveRunningTargets(env.SessionClient(settings.Tmux.Socket), settings.Tmux)
	if targets.Planner != "" {
		fmt.Fprintf(env.Stdout, "PLANNER target: %s\n", targets.Planner)
		fmt.Fprintf(env.Stdout, "EXECUTER target: %s\n", targets.Executer)
	}
	if settings.Channel.Backend == "file" {
		fmt.Fprintf(env.Stdout, "transcripts: %s\n", settings.Channel.TranscriptDir)
	}
	if err != nil {
		fmt.Fprintln(env.Stdout, "sessions: unavailable")
		fmt.Fprintln(env.Stderr, err)
		if errors.Is(err, errChannelUnavailable) {
			return cli.ExitUnavailable
		}
		return cli.ExitFailure
	}
	fmt.Fprintln(env.Stdout, "sessions: running")
	return cli.ExitOK
}

func checkCommands(settings config.ChannelSettings, env environment) int {
	code := cli.ExitOK
	for _, entry := range []struct {
		name    string
		command []string
	}{
		{"PLANNER", settings.PlannerCommand},
		{"EXECUTER", settings.ExecuterCommand},
	} {
		path, err := exec.LookPath(entry.command[0])
		if err != nil {
			fmt.Fprintf(env.Stdout, "%s command: %s (not found)\n", entry.name, strings.Join(entry.command, " "))
			code = cli.ExitUnavailable
			continue
		}
		fmt.Fprintf(env.Stdout, "%s command: %s (%s)\n", entry.name, strings.Join(entry.command, " "), path)
	}
	return code
}
