package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

// HelpVersionFlags are the -h/--help and -v/--version switches every
// politerm subcommand accepts.
type HelpVersionFlags struct {
	Help    bool
	Version bool
}

func AddHelpVersionFlags(flagSet *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	flags := &HelpVersionFlags{}
	if flagSet == nil {
		return flags
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	for _, name := range []string{"help", "h"} {
		flagSet.BoolVar(&flags.Help, name, false, helpDesc)
	}
	for _, name := range []string{"version", "v"} {
		flagSet.BoolVar(&flags.Version, name, false, versionDesc)
	}
	return flags
}

// Parse parses args into flagSet and handles help and version requests.
// When done is true the command should exit with code without running.
func Parse(flagSet *flag.FlagSet, flags *HelpVersionFlags, args []string, out io.Writer, banner string) (code int, done bool) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK, true
		}
		return ExitUsage, true
	}
	if flags == nil {
		return ExitOK, false
	}
	switch {
	case flags.Help:
		flagSet.SetOutput(out)
		flagSet.Usage()
		return ExitOK, true
	case flags.Version:
		fmt.Fprintln(out, banner)
		return ExitOK, true
	}
	return ExitOK, false
}
