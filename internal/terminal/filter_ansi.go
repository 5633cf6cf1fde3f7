package terminal

// NewANSIStripFilter removes 7-bit ANSI escape sequences and control bytes.
// Bytes >= 0x80 pass through untouched so UTF-8 text survives.
func NewANSIStripFilter() OutputFilter {
	return &ansiStripFilter{
		stats: OutputFilterStats{FilterName: "ansi-strip"},
	}
}

type ansiState int

const (
	ansiText ansiState = iota
	ansiEsc
	ansiCSI
	ansiString
	ansiStringEsc
)

type ansiStripFilter struct {
	state ansiState
	// OSC strings may end with BEL; DCS, PM and APC only with ST.
	belTerminates bool
	stats         OutputFilterStats
}

func (f *ansiStripFilter) Write(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	f.stats.InBytes += uint64(len(data))

	out := make([]byte, 0, len(data))
	var dropped uint64
	for _, b := range data {
		switch f.state {
		case ansiText:
			switch {
			case b == 0x1b:
				f.state = ansiEsc
				dropped++
			case b == '\n' || b == '\r' || b == '\t':
				out = append(out, b)
			case b < 0x20 || b == 0x7f:
				dropped++
			default:
				out = append(out, b)
			}
		case ansiEsc:
			switch b {
			case '[':
				f.state = ansiCSI
			case ']':
				f.state = ansiString
				f.belTerminates = true
			case 'P', '^', '_':
				f.state = ansiString
				f.belTerminates = false
			default:
				f.state = ansiText
			}
			dropped++
		case ansiCSI:
			if b >= 0x40 && b <= 0x7e {
				f.state = ansiText
			}
			dropped++
		case ansiString:
			if b == 0x07 && f.belTerminates {
				f.state = ansiText
			} else if b == 0x1b {
				f.state = ansiStringEsc
			}
			dropped++
		case ansiStringEsc:
			if b == '\\' {
				f.state = ansiText
			} else {
				f.state = ansiString
			}
			dropped++
		}
	}
	f.stats.OutBytes += uint64(len(out))
	f.stats.DroppedBytes += dropped
	if len(out) == 0 {
		return nil
	}
	return out
}

func (f *ansiStripFilter) Reset() {
	f.state = ansiText
	f.belTerminates = false
	f.stats = OutputFilterStats{FilterName: "ansi-strip"}
}

func (f *ansiStripFilter) Stats() OutputFilterStats {
	return f.stats
}
