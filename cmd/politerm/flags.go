package main

import (
	"flag"
	"fmt"
	"io/fs"
	"strings"

	"politerm"
	"politerm/internal/cli"
	"politerm/internal/config"
	"politerm/internal/version"
)

type commonFlags struct {
	ConfigPath string
	Backend    string
	Listen     string
	LogLevel   string
	StateFile  string
	MaxRounds  int
	help       *cli.HelpVersionFlags
}

func addCommonFlags(flagSet *flag.FlagSet) *commonFlags {
	flags := &commonFlags{}
	flagSet.StringVar(&flags.ConfigPath, "config", config.DefaultPath, "Config file (missing file is ignored)")
	flagSet.StringVar(&flags.Backend, "backend", "", "Channel backend: tmux, file or pty")
	flagSet.StringVar(&flags.Listen, "listen", "", "Serve the status API on this address")
	flagSet.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warning or error")
	flagSet.StringVar(&flags.StateFile, "state-file", "", "Export task state here on exit (.json, .yaml, optionally .zst)")
	flags.help = cli.AddHelpVersionFlags(flagSet, "", "")
	return flags
}

// overrides returns the settings given on the command line. They win over
// the config file and the environment.
func (f *commonFlags) overrides() map[string]any {
	overrides := map[string]any{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			overrides[key] = value
		}
	}
	set("channel.backend", f.Backend)
	set("api.listen", f.Listen)
	set("log.level", f.LogLevel)
	set("state.file", f.StateFile)
	if f.MaxRounds > 0 {
		overrides["dialogue.max-rounds"] = int64(f.MaxRounds)
	}
	return overrides
}

// parseFlags parses args and reports whether the command is already done,
// with its exit code.
func parseFlags(flagSet *flag.FlagSet, flags *commonFlags, args []string, env environment) (int, bool) {
	return cli.Parse(flagSet, flags.help, args, env.Stdout, version.GetVersionInfo().String())
}

func loadSettings(flags *commonFlags, env environment) (config.Settings, error) {
	defaults, err := fs.ReadFile(politerm.EmbeddedConfigFS, politerm.DefaultsPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("read built-in defaults: %w", err)
	}
	return config.LoadSettings(flags.ConfigPath, defaults, config.EnvOverrides(env.LookupEnv), flags.overrides())
}
