// Package config loads layered settings: embedded defaults, an optional TOML
// file, POLI_* environment variables and explicit overrides, later layers
// winning.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"politerm/internal/config/tomlkeys"
)

const DefaultPath = ".politerm/config.toml"

type Settings struct {
	Tmux     TmuxSettings
	Channel  ChannelSettings
	Dialogue DialogueSettings
	Log      LogSettings
	State    StateSettings
	API      APISettings
	OTel     OTelSettings
}

type TmuxSettings struct {
	Socket          string
	PlannerTarget   string
	ExecuterTarget  string
	PlannerSession  string
	ExecuterSession string
	LegacySession   string
	Window          string
}

type ChannelSettings struct {
	Backend         string
	PlannerCommand  []string
	ExecuterCommand []string
	TranscriptDir   string
}

type DialogueSettings struct {
	PlanTimeout  time.Duration
	ExecTimeout  time.Duration
	PollInterval time.Duration
	CaptureLines int
	MaxRounds    int
	Nudge        bool
	// PromptDir holds prompt files that replace the built-in ones.
	PromptDir string
}

type LogSettings struct {
	Level string
	File  string
}

type StateSettings struct {
	File string
}

// APISettings configures the status API. When Token is set every request
// must carry it; AllowedOrigins lists the browser origins allowed to open
// websockets besides the API's own host.
type APISettings struct {
	Listen         string
	Token          string
	AllowedOrigins []string
}

type OTelSettings struct {
	Endpoint string
}

// envKeys maps environment variables to setting keys.
var envKeys = map[string]string{
	"POLI_TMUX_SOCKET":           "tmux.socket",
	"POLI_PLANNER_TARGET":        "tmux.planner-target",
	"POLI_EXECUTER_TARGET":       "tmux.executer-target",
	"POLI_TMUX_PLANNER_SESSION":  "tmux.planner-session",
	"POLI_TMUX_EXECUTER_SESSION": "tmux.executer-session",
	"POLI_TMUX_SESSION":          "tmux.legacy-session",
	"POLI_TMUX_ROLE_WINDOW":      "tmux.window",
	"POLI_BACKEND":               "channel.backend",
	"POLI_PLANNER_COMMAND":       "channel.planner-command",
	"POLI_EXECUTER_COMMAND":      "channel.executer-command",
	"POLI_TRANSCRIPT_DIR":        "channel.transcript-dir",
	"POLI_PLAN_TIMEOUT":          "dialogue.plan-timeout",
	"POLI_EXEC_TIMEOUT":          "dialogue.exec-timeout",
	"POLI_POLL_INTERVAL":         "dialogue.poll-interval",
	"POLI_CAPTURE_LINES":         "dialogue.capture-lines",
	"POLI_MAX_ROUNDS":            "dialogue.max-rounds",
	"POLI_NUDGE":                 "dialogue.nudge",
	"POLI_LOG_LEVEL":             "log.level",
	"POLI_LOG_FILE":              "log.file",
	"POLI_STATE_FILE":            "state.file",
	"POLI_API_LISTEN":            "api.listen",
	"POLI_API_TOKEN":             "api.token",
	"POLI_API_ALLOWED_ORIGINS":   "api.allowed-origins",
	"POLI_PROMPT_DIR":            "dialogue.prompt-dir",
	"POLI_OTEL_ENDPOINT":         "otel.endpoint",
}

// EnvOverrides collects the POLI_* variables that are set.
func EnvOverrides(lookup func(string) (string, bool)) map[string]any {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	overrides := map[string]any{}
	for name, key := range envKeys {
		if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
			overrides[key] = value
		}
	}
	return overrides
}

// LoadSettings merges defaults, the file at path (missing files are
// ignored) and overrides. Each override map is applied in order.
func LoadSettings(path string, defaultsPayload []byte, overrides ...map[string]any) (Settings, error) {
	defaults, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return Settings{}, fmt.Errorf("decode defaults: %w", err)
	}
	values := defaults.Clone()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := tomlkeys.Decode(payload)
			if err != nil {
				return Settings{}, fmt.Errorf("decode %s: %w", path, err)
			}
			values.Merge(store)
		}
	}

	for _, layer := range overrides {
		for key, value := range layer {
			values.Set(key, value)
		}
	}

	settings := Settings{}
	settings.Tmux.Socket = stringSetting(values, "tmux.socket", "")
	settings.Tmux.PlannerTarget = stringSetting(values, "tmux.planner-target", "")
	settings.Tmux.ExecuterTarget = stringSetting(values, "tmux.executer-target", "")
	settings.Tmux.PlannerSession = stringSetting(values, "tmux.planner-session", "")
	settings.Tmux.ExecuterSession = stringSetting(values, "tmux.executer-session", "")
	settings.Tmux.LegacySession = stringSetting(values, "tmux.legacy-session", "")
	settings.Tmux.Window = stringSetting(values, "tmux.window", "")

	settings.Channel.Backend = strings.ToLower(stringSetting(values, "channel.backend", ""))
	settings.Channel.PlannerCommand = stringsSetting(values, "channel.planner-command")
	settings.Channel.ExecuterCommand = stringsSetting(values, "channel.executer-command")
	settings.Channel.TranscriptDir = stringSetting(values, "channel.transcript-dir", "")

	settings.Dialogue.PlanTimeout = durationSetting(values, "dialogue.plan-timeout", 0)
	settings.Dialogue.ExecTimeout = durationSetting(values, "dialogue.exec-timeout", 0)
	settings.Dialogue.PollInterval = durationSetting(values, "dialogue.poll-interval", 0)
	settings.Dialogue.CaptureLines = int(intSetting(values, "dialogue.capture-lines", 0))
	settings.Dialogue.MaxRounds = int(intSetting(values, "dialogue.max-rounds", 0))
	settings.Dialogue.Nudge = boolSetting(values, "dialogue.nudge", boolSetting(defaults, "dialogue.nudge", true))
	settings.Dialogue.PromptDir = stringSetting(values, "dialogue.prompt-dir", "")

	settings.Log.Level = strings.ToLower(stringSetting(values, "log.level", ""))
	settings.Log.File = stringSetting(values, "log.file", "")
	settings.State.File = stringSetting(values, "state.file", "")
	settings.API.Listen = stringSetting(values, "api.listen", "")
	settings.API.Token = stringSetting(values, "api.token", "")
	settings.API.AllowedOrigins = stringsSetting(values, "api.allowed-origins")
	settings.OTel.Endpoint = stringSetting(values, "otel.endpoint", "")

	settings = normalizeSettings(settings, defaults)
	return settings, settings.Validate()
}

func normalizeSettings(settings Settings, defaults tomlkeys.Store) Settings {
	if settings.Tmux.Socket == "" {
		settings.Tmux.Socket = stringSetting(defaults, "tmux.socket", "poli")
	}
	if settings.Tmux.Window == "" {
		settings.Tmux.Window = stringSetting(defaults, "tmux.window", "tui")
	}
	if settings.Channel.Backend == "" {
		settings.Channel.Backend = stringSetting(defaults, "channel.backend", "tmux")
	}
	if settings.Channel.TranscriptDir == "" {
		settings.Channel.TranscriptDir = stringSetting(defaults, "channel.transcript-dir", "")
	}
	if settings.Dialogue.PlanTimeout <= 0 {
		settings.Dialogue.PlanTimeout = durationSetting(defaults, "dialogue.plan-timeout", 180*time.Second)
	}
	if settings.Dialogue.ExecTimeout <= 0 {
		settings.Dialogue.ExecTimeout = durationSetting(defaults, "dialogue.exec-timeout", 900*time.Second)
	}
	if settings.Dialogue.PollInterval <= 0 {
		settings.Dialogue.PollInterval = durationSetting(defaults, "dialogue.poll-interval", 400*time.Millisecond)
	}
	if settings.Dialogue.CaptureLines <= 0 {
		settings.Dialogue.CaptureLines = int(intSetting(defaults, "dialogue.capture-lines", 400))
	}
	if settings.Dialogue.MaxRounds <= 0 {
		settings.Dialogue.MaxRounds = int(intSetting(defaults, "dialogue.max-rounds", 10))
	}
	if settings.Log.Level == "" {
		settings.Log.Level = stringSetting(defaults, "log.level", "info")
	}
	return settings
}

// Validate reports settings that cannot drive a run.
func (s Settings) Validate() error {
	switch s.Channel.Backend {
	case "tmux", "file":
	case "pty":
		if len(s.Channel.PlannerCommand) == 0 || len(s.Channel.ExecuterCommand) == 0 {
			return fmt.Errorf("channel.backend pty requires channel.planner-command and channel.executer-command")
		}
	default:
		return fmt.Errorf("unknown channel.backend %q", s.Channel.Backend)
	}
	return nil
}

func intSetting(values tomlkeys.Store, key string, fallback int64) int64 {
	if parsed, ok := values.GetInt(key); ok {
		return parsed
	}
	return fallback
}

func stringSetting(values tomlkeys.Store, key string, fallback string) string {
	if parsed, ok := values.GetString(key); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

func boolSetting(values tomlkeys.Store, key string, fallback bool) bool {
	if parsed, ok := values.GetBool(key); ok {
		return parsed
	}
	return fallback
}

func durationSetting(values tomlkeys.Store, key string, fallback time.Duration) time.Duration {
	if parsed, ok := values.GetDuration(key); ok {
		return parsed
	}
	return fallback
}

func stringsSetting(values tomlkeys.Store, key string) []string {
	parsed, _ := values.GetStrings(key)
	return parsed
}
