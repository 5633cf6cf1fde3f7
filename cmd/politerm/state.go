package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"politerm/internal/cli"
	"politerm/internal/state"

	"gopkg.in/yaml.v3"
)

// runState prints a state export written by an earlier run.
func runState(args []string, env environment) int {
	flagSet := flag.NewFlagSet("state", flag.ContinueOnError)
	flagSet.SetOutput(env.Stderr)
	common := addCommonFlags(flagSet)
	file := flagSet.String("file", "", "Export to read (defaults to state.file)")
	format := flagSet.String("format", "table", "Output format: table, json or yaml")
	if code, done := parseFlags(flagSet, common, args, env); done {
		return code
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		settings, err := loadSettings(common, env)
		if err != nil {
			fmt.Fprintln(env.Stderr, err)
			return cli.ExitUsage
		}
		path = settings.State.File
	}
	if path == "" {
		fmt.Fprintln(env.Stderr, "no state file: pass --file or set state.file")
		return cli.ExitUsage
	}

	records, err := state.ReadExportFile(path)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return cli.ExitFailure
	}

	switch strings.ToLower(*format) {
	case "json":
		encoder := json.NewEncoder(env.Stdout)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(records)
	case "yaml":
		encoder := yaml.NewEncoder(env.Stdout)
		encoder.SetIndent(2)
		err = encoder.Encode(records)
		if err == nil {
			err = encoder.Close()
		}
	case "table":
		err = writeStateTable(env, records)
	default:
		fmt.Fprintf(env.Stderr, "unknown format %q\n", *format)
		return cli.ExitUsage
	}
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return cli.ExitFailure
	}
	return cli.ExitOK
}

func writeStateTable(env environment, records map[string]state.ExportRecord) error {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	writer := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "TASK\tSTATUS\tROUNDS\tMESSAGES\tEXPECTED\tUPDATED")
	for _, id := range ids {
		record := records[id]
		expected := record.Expected
		if expected == "" {
			expected = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\t%s\n",
			id, record.Status, record.Round, record.Messages, expected, record.UpdatedAt.Format(time.RFC3339))
	}
	return writer.Flush()
}
