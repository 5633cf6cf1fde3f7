package channel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"politerm/internal/logging"
	"politerm/internal/protocol"
	"politerm/internal/runner/tmuxsession"
	"politerm/internal/terminal"

	"github.com/fsnotify/fsnotify"
)

const (
	tailBytesPerLine = 512
	maxTailBytes     = 4 << 20
)

// PaneClient drives panes whose output is mirrored into log files.
type PaneClient interface {
	TmuxClient
	PipePane(target, command string) error
}

// FileTail writes through tmux but reads agent output from files that tmux
// appends pane output to. Unlike a pane capture, the files keep the full
// history.
type FileTail struct {
	*Tmux
	paths   map[protocol.Party]string
	watcher *fsnotify.Watcher
	changes map[protocol.Party]chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewFileTail starts mirroring each pane into dir/<party>.log and watches the
// files for growth.
func NewFileTail(client PaneClient, targets tmuxsession.Targets, dir string, logger *logging.Logger) (*FileTail, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	channel := &FileTail{
		Tmux:    NewTmux(client, targets, logger),
		paths:   make(map[protocol.Party]string, 2),
		watcher: watcher,
		changes: make(map[protocol.Party]chan struct{}, 2),
		done:    make(chan struct{}),
	}
	for _, party := range protocol.Parties {
		path := filepath.Join(dir, strings.ToLower(party.String())+".log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			_ = watcher.Close()
			return nil, err
		}
		_ = file.Close()
		target, err := channel.Target(party)
		if err != nil {
			_ = watcher.Close()
			return nil, err
		}
		if err := client.PipePane(target, "cat >> "+shellQuote(path)); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("pipe pane %s: %w", target, err)
		}
		channel.paths[party] = path
		channel.changes[party] = make(chan struct{}, 1)
	}
	// Watch the directory so truncation and recreation are seen too.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	go channel.watch()
	return channel, nil
}

func (f *FileTail) watch() {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			for party, path := range f.paths {
				if filepath.Clean(event.Name) != path {
					continue
				}
				select {
				case f.changes[party] <- struct{}{}:
				default:
				}
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("transcript watch error", map[string]string{"error": err.Error()})
		case <-f.done:
			return
		}
	}
}

// ReadSnapshot reads the end of the party's transcript file with terminal
// control sequences removed.
func (f *FileTail) ReadSnapshot(party protocol.Party, maxLines int) (string, error) {
	path, ok := f.paths[party]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownParty, party)
	}
	limit := int64(maxTailBytes)
	if maxLines > 0 && int64(maxLines)*tailBytesPerLine < limit {
		limit = int64(maxLines) * tailBytesPerLine
	}
	data, err := readTail(path, limit)
	if err != nil {
		return "", err
	}
	var assembler terminal.LineAssembler
	lines := assembler.Write(terminal.NewANSIStripFilter().Write(data))
	if partial := assembler.Partial(); partial != "" {
		lines = append(lines, partial)
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func (f *FileTail) Changes(party protocol.Party) <-chan struct{} {
	return f.changes[party]
}

// Path returns the transcript file of a party.
func (f *FileTail) Path(party protocol.Party) string {
	return f.paths[party]
}

// Close stops watching. The pane pipes stay open until tmux closes them.
func (f *FileTail) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.watcher.Close()
	})
	return err
}

func readTail(path string, limit int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	offset := info.Size() - limit
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		// Drop the partial first line.
		if index := strings.IndexByte(string(data), '\n'); index >= 0 {
			data = data[index+1:]
		}
	}
	return data, nil
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
