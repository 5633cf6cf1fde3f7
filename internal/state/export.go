package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ExportRecord is the exported view of one task.
type ExportRecord struct {
	Status    Status    `json:"status" yaml:"status"`
	Round     int       `json:"rounds" yaml:"rounds"`
	Messages  int       `json:"messages" yaml:"messages"`
	Expected  string    `json:"expected,omitempty" yaml:"expected,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Records converts snapshots to export records keyed by task id.
func Records(tasks []TaskState) map[string]ExportRecord {
	records := make(map[string]ExportRecord, len(tasks))
	for _, task := range tasks {
		record := ExportRecord{
			Status:    task.Status,
			Round:     task.Round,
			Messages:  len(task.History),
			UpdatedAt: task.UpdatedAt,
		}
		if !task.Status.Terminal() {
			record.Expected = task.ExpectedSender.String() + "/" + task.ExpectedKind.String()
		}
		records[task.TaskID] = record
	}
	return records
}

// FormatForPath picks the format from the file extension, ignoring a
// trailing .zst.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".zst"))) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func Export(w io.Writer, format Format, tasks []TaskState) error {
	records := Records(tasks)
	switch format {
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(records); err != nil {
			return err
		}
		return encoder.Close()
	case FormatJSON, "":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportFile writes the snapshot to path, replacing it atomically. Paths
// ending in .zst are zstd compressed.
func ExportFile(path string, tasks []TaskState) error {
	var payload bytes.Buffer
	if err := Export(&payload, FormatForPath(path), tasks); err != nil {
		return err
	}
	data := payload.Bytes()
	if strings.HasSuffix(path, ".zst") {
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		data = encoder.EncodeAll(data, nil)
		_ = encoder.Close()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	temp, err := os.CreateTemp(dir, ".politerm-state-*")
	if err != nil {
		return err
	}
	tempName := temp.Name()
	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempName)
		return err
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)
		return err
	}
	return nil
}

// ReadExportFile loads a file written by ExportFile.
func ReadExportFile(path string) (map[string]ExportRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".zst") {
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer decoder.Close()
		data, err = decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
	}
	records := map[string]ExportRecord{}
	switch FormatForPath(path) {
	case FormatYAML:
		err = yaml.Unmarshal(data, &records)
	default:
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}
