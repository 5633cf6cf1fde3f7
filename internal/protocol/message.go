package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Message is one decoded block.
type Message struct {
	To         string         `json:"to" yaml:"to"`
	Recipient  Party          `json:"-" yaml:"-"`
	Kind       Kind           `json:"-" yaml:"-"`
	Type       string         `json:"type" yaml:"type"`
	ID         string         `json:"id" yaml:"id"`
	Body       string         `json:"body" yaml:"body"`
	Meta       map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
	ObservedAt time.Time      `json:"observed_at,omitzero" yaml:"observed_at,omitempty"`
}

// Key identifies a block for deduplication. One id may legitimately appear
// with several kinds (a status and a result sharing a round id).
type Key struct {
	ID   string
	Type string
}

func (k Key) String() string {
	return k.ID + "/" + k.Type
}

// Key returns the dedup identity. Blocks without an id are keyed by a digest
// of their body.
func (m Message) Key() Key {
	id := m.ID
	if strings.TrimSpace(id) == "" {
		id = "sha256:" + BodyDigest(m.Body)
	}
	kind := m.Type
	if m.Kind.Known() {
		kind = string(m.Kind)
	}
	return Key{ID: id, Type: strings.ToLower(strings.TrimSpace(kind))}
}

// BodyDigest returns a short stable digest of a block body.
func BodyDigest(body string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(body)))
	return hex.EncodeToString(sum[:6])
}

// Clone returns a copy that shares no metadata map with m.
func (m Message) Clone() Message {
	clone := m
	if m.Meta != nil {
		clone.Meta = make(map[string]any, len(m.Meta))
		for key, value := range m.Meta {
			clone.Meta[key] = value
		}
	}
	return clone
}

// Summary returns the body truncated to limit runes for log lines.
func (m Message) Summary(limit int) string {
	body := strings.Join(strings.Fields(m.Body), " ")
	runes := []rune(body)
	if limit <= 0 || len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}
