// Package prompt renders the instructions the orchestrator writes to its
// agents. The built-in templates live in config/prompts; a prompt directory
// may replace any of them by file name.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"text/template"

	"politerm"
)

const (
	Opening     = "opening"
	OnceOpening = "once-opening"
	Execution   = "execution"
	Review      = "review"
	Summary     = "summary"
	OnceSummary = "once-summary"
)

const (
	embeddedDir = "config/prompts"
	extension   = ".tmpl"
)

// Names lists every template a Set must provide.
var Names = []string{Opening, OnceOpening, Execution, Review, Summary, OnceSummary}

// Data is the value every template renders against. Fields that do not apply
// to a prompt are left empty.
type Data struct {
	TaskID    string
	Request   string
	Round     int
	MaxRounds int
	// Kind is the block type being relayed and Subject the word used for it.
	Kind    string
	Subject string
	Quoted  string
	ReplyID string
}

type Set struct {
	templates map[string]*template.Template
	sources   map[string]string
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
)

// Default returns the built-in templates.
func Default() *Set {
	defaultOnce.Do(func() {
		set, err := Load(politerm.EmbeddedConfigFS, "")
		if err != nil {
			panic(fmt.Sprintf("built-in prompts: %v", err))
		}
		defaultSet = set
	})
	return defaultSet
}

// Load reads the templates from embedded, preferring files in overrideDir
// when it is set. A template that fails to parse or render sample data is
// rejected so bad overrides surface at startup.
func Load(embedded fs.FS, overrideDir string) (*Set, error) {
	var override fs.FS
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("prompt directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("prompt directory %q is not a directory", dir)
		}
		override = os.DirFS(dir)
	}

	set := &Set{
		templates: make(map[string]*template.Template, len(Names)),
		sources:   make(map[string]string, len(Names)),
	}
	for _, name := range Names {
		text, source, err := readTemplate(embedded, override, name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", source, err)
		}
		set.templates[name] = tmpl
		set.sources[name] = source
		if _, err := set.Render(name, sampleData); err != nil {
			return nil, fmt.Errorf("prompt %s: %w", source, err)
		}
	}
	return set, nil
}

var sampleData = Data{
	TaskID:    "t1",
	Request:   "request",
	Round:     1,
	MaxRounds: 1,
	Kind:      "plan",
	Subject:   "plan",
	Quoted:    "quoted",
	ReplyID:   "t1-R1",
}

func readTemplate(embedded, override fs.FS, name string) (string, string, error) {
	file := name + extension
	if override != nil {
		data, err := fs.ReadFile(override, file)
		if err == nil {
			return string(data), file, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("read prompt %s: %w", file, err)
		}
	}
	embeddedPath := path.Join(embeddedDir, file)
	data, err := fs.ReadFile(embedded, embeddedPath)
	if err != nil {
		return "", "", fmt.Errorf("read prompt %s: %w", embeddedPath, err)
	}
	return string(data), embeddedPath, nil
}

// Render executes the named template. The trailing newline of the file is
// not part of the prompt.
func (s *Set) Render(name string, data Data) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// Source reports where the named template was read from.
func (s *Set) Source(name string) string {
	return s.sources[name]
}
