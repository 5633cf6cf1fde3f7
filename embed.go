package politerm

import "embed"

// EmbeddedConfigFS provides the built-in configuration defaults.
//
//go:embed config
var EmbeddedConfigFS embed.FS

// DefaultsPath is the location of the defaults inside EmbeddedConfigFS.
const DefaultsPath = "config/politerm.toml"
