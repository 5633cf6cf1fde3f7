// Package terminal turns raw terminal output into plain transcript text.
package terminal

// OutputFilter transforms terminal output into a transcript-friendly stream.
// Filters are stateful so escape sequences split across writes are handled.
type OutputFilter interface {
	Write([]byte) []byte
	Reset()
	Stats() OutputFilterStats
}

// OutputFilterStats records byte counts and a stable filter name.
type OutputFilterStats struct {
	InBytes      uint64
	OutBytes     uint64
	DroppedBytes uint64
	FilterName   string
}

// StripANSI removes escape sequences from a complete string.
func StripANSI(text string) string {
	return string(NewANSIStripFilter().Write([]byte(text)))
}
