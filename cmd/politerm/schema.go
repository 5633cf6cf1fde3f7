package main

import (
	"flag"
	"fmt"

	"politerm/internal/cli"
	"politerm/internal/protocol"
)

// runSchema prints the JSON schema agents can use to validate block
// metadata.
func runSchema(args []string, env environment) int {
	flagSet := flag.NewFlagSet("schema", flag.ContinueOnError)
	flagSet.SetOutput(env.Stderr)
	help := cli.AddHelpVersionFlags(flagSet, "", "")
	if err := flagSet.Parse(args); err != nil {
		return cli.ExitUsage
	}
	if help.Help {
		fmt.Fprintln(env.Stdout, "usage: politerm schema")
		return cli.ExitOK
	}
	schema, err := protocol.MetadataSchema()
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return cli.ExitFailure
	}
	fmt.Fprintln(env.Stdout, string(schema))
	return cli.ExitOK
}
