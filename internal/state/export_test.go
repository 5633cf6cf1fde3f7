package state

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"politerm/internal/protocol"

	"github.com/stretchr/testify/require"
)

func sampleTasks(t *testing.T) []TaskState {
	t.Helper()
	store := NewStore()
	store.GetOrCreate("t1")
	_, err := store.Update("t1", func(task *TaskState) error {
		task.AdvanceRound()
		task.Record(protocol.Message{ID: "t1", Type: "plan", Body: "do it"})
		task.Record(protocol.Message{ID: "t1-R1", Type: "result", Body: "done"})
		return task.Transition(StatusCompleted)
	})
	require.NoError(t, err)
	store.GetOrCreate("t2")
	return store.List()
}

func TestExportJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Export(&out, FormatJSON, sampleTasks(t)))

	text := out.String()
	require.Contains(t, text, `"t1": {`)
	require.Contains(t, text, `"status": "completed"`)
	require.Contains(t, text, `"rounds": 1`)
	require.Contains(t, text, `"messages": 2`)
	require.Contains(t, text, `"expected": "PLANNER/plan"`)
}

func TestExportYAML(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Export(&out, FormatYAML, sampleTasks(t)))
	require.Contains(t, out.String(), "t1:\n  status: completed\n  rounds: 1\n  messages: 2\n")
}

func TestExportUnknownFormat(t *testing.T) {
	require.Error(t, Export(&bytes.Buffer{}, Format("xml"), nil))
}

func TestExportFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tasks := sampleTasks(t)

	for _, name := range []string{"state.json", "state.yaml", "state.json.zst", "nested/state.yml.zst"} {
		path := filepath.Join(dir, name)
		require.NoError(t, ExportFile(path, tasks), name)

		records, err := ReadExportFile(path)
		require.NoError(t, err, name)
		require.Equal(t, StatusCompleted, records["t1"].Status, name)
		require.Equal(t, 2, records["t1"].Messages, name)
		require.Equal(t, StatusActive, records["t2"].Status, name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "state.json.zst"))
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "completed"), "expected compressed payload")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.False(t, strings.HasPrefix(entry.Name(), ".politerm-state-"), "temp file left behind")
	}
}

func TestFormatForPath(t *testing.T) {
	cases := map[string]Format{
		"a.json":     FormatJSON,
		"a.yaml":     FormatYAML,
		"a.YML":      FormatYAML,
		"a.yaml.zst": FormatYAML,
		"a":          FormatJSON,
	}
	for path, expected := range cases {
		if got := FormatForPath(path); got != expected {
			t.Fatalf("%s: expected %s, got %s", path, expected, got)
		}
	}
}
