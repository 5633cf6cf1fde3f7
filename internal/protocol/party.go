package protocol

import (
	"fmt"
	"strings"
)

// Party is one of the two coordinated agents.
type Party int

const (
	PartyNone Party = iota
	Planner
	Executer
)

// Parties lists both agents in dialogue order.
var Parties = []Party{Planner, Executer}

func ParseParty(value string) (Party, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "PLANNER":
		return Planner, true
	case "EXECUTER", "EXECUTOR":
		return Executer, true
	default:
		return PartyNone, false
	}
}

func (p Party) String() string {
	switch p {
	case Planner:
		return "PLANNER"
	case Executer:
		return "EXECUTER"
	default:
		return "NONE"
	}
}

func (p Party) Valid() bool {
	return p == Planner || p == Executer
}

// Opposite returns the party that should receive a message from p.
func (p Party) Opposite() Party {
	switch p {
	case Planner:
		return Executer
	case Executer:
		return Planner
	default:
		return PartyNone
	}
}

// MarshalText renders the wire name. PartyNone marshals as an empty string.
func (p Party) MarshalText() ([]byte, error) {
	switch {
	case p == PartyNone:
		return []byte{}, nil
	case !p.Valid():
		return nil, fmt.Errorf("invalid party %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Party) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*p = PartyNone
		return nil
	}
	parsed, ok := ParseParty(string(text))
	if !ok {
		return fmt.Errorf("unknown party %q", string(text))
	}
	*p = parsed
	return nil
}
