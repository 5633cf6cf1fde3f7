package terminal

import (
	"bytes"
	"reflect"
	"testing"
)

func collectAnsiWrites(filter OutputFilter, chunks ...[]byte) []byte {
	var out []byte
	for _, chunk := range chunks {
		out = append(out, filter.Write(chunk)...)
	}
	return out
}

func TestANSIStripFilterRemovesCSI(t *testing.T) {
	t.Parallel()

	filter := NewANSIStripFilter()
	out := collectAnsiWrites(filter,
		[]byte("ok\x1b["),
		[]byte("31mred\x1b[0m done"),
	)
	if !bytes.Equal(out, []byte("okred done")) {
		t.Fatalf("expected stripped output, got %q", out)
	}
}

func TestANSIStripFilterRemovesOSCAndDCS(t *testing.T) {
	t.Parallel()

	filter := NewANSIStripFilter()
	out := collectAnsiWrites(filter, []byte("before\x1b]0;title\x07middle\x1bPdata\x1b\\after"))
	if !bytes.Equal(out, []byte("beforemiddleafter")) {
		t.Fatalf("expected stripped output, got %q", out)
	}
}

func TestANSIStripFilterPreservesWhitespaceAndUTF8(t *testing.T) {
	t.Parallel()

	filter := NewANSIStripFilter()
	out := collectAnsiWrites(filter, []byte("line1\r\n\tçalışma\bX"))
	if !bytes.Equal(out, []byte("line1\r\n\tçalışmaX")) {
		t.Fatalf("expected preserved text, got %q", out)
	}
	stats := filter.Stats()
	if stats.DroppedBytes != 1 || stats.FilterName != "ansi-strip" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestStripANSIKeepsBlockMarkers(t *testing.T) {
	t.Parallel()

	raw := "\x1b[1m[[POLI:MSG {\"id\":\"t1\"}]]\x1b[0m\nbody\n[[/POLI:MSG]]"
	if got := StripANSI(raw); got != "[[POLI:MSG {\"id\":\"t1\"}]]\nbody\n[[/POLI:MSG]]" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestLineAssembler(t *testing.T) {
	t.Parallel()

	var assembler LineAssembler
	lines := assembler.Write([]byte("first\r\nsecond"))
	lines = append(lines, assembler.Write([]byte(" half\nprogress 10%\rprogress 90%\ntail"))...)
	expected := []string{"first", "second half", "progress 90%"}
	if !reflect.DeepEqual(lines, expected) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if assembler.Partial() != "tail" {
		t.Fatalf("unexpected partial: %q", assembler.Partial())
	}
}
