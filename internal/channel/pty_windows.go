//go:build windows

package channel

import (
	"errors"

	"politerm/internal/logging"
	"politerm/internal/protocol"
)

var errPTYUnsupported = errors.New("pty channel is not supported on windows")

type PTYOptions struct {
	PlannerCommand  []string
	ExecuterCommand []string
	Dir             string
	Scrollback      int
	Logger          *logging.Logger
}

type PTY struct{}

func NewPTY(PTYOptions) (*PTY, error) {
	return nil, errPTYUnsupported
}

func (p *PTY) Write(protocol.Party, string) error {
	return errPTYUnsupported
}

func (p *PTY) ReadSnapshot(protocol.Party, int) (string, error) {
	return "", errPTYUnsupported
}

func (p *PTY) Close() error {
	return nil
}
