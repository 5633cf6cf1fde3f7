package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"politerm/internal/logging"
)

const (
	OpenMarker  = "[[POLI:MSG"
	CloseMarker = "[[/POLI:MSG]]"
)

var headerPattern = regexp.MustCompile(`(?s)^\s+(\{.*?\})\s*\]\](.*)$`)

// ErrMissingMetadata is wrapped by a MalformedBlockError when the opening
// marker is not followed by a braced metadata object.
var ErrMissingMetadata = errors.New("opening marker has no metadata object")

// MalformedBlockError reports a block whose metadata is missing or is not a
// JSON object.
type MalformedBlockError struct {
	Offset   int
	Metadata string
	Err      error
}

func (e *MalformedBlockError) Error() string {
	return fmt.Sprintf("malformed block at offset %d: %v", e.Offset, e.Err)
}

func (e *MalformedBlockError) Unwrap() error {
	return e.Err
}

// ParseBlocks returns every complete block in transcript order together with
// the errors for blocks that had to be dropped. A block is complete when an
// opening marker is followed by a closing marker; an unterminated block is
// ignored without error.
func ParseBlocks(transcript string) ([]Message, []error) {
	var messages []Message
	var errs []error

	pos := 0
	for pos < len(transcript) {
		closeIdx := strings.Index(transcript[pos:], CloseMarker)
		if closeIdx < 0 {
			break
		}
		segment := transcript[pos : pos+closeIdx]
		segmentStart := pos
		pos += closeIdx + len(CloseMarker)

		// The nearest opening marker wins so an unterminated block earlier in
		// the segment never swallows a complete one.
		openIdx := strings.LastIndex(segment, OpenMarker)
		if openIdx < 0 {
			continue
		}
		header := segment[openIdx+len(OpenMarker):]
		match := headerPattern.FindStringSubmatch(header)
		if match == nil {
			errs = append(errs, &MalformedBlockError{
				Offset:   segmentStart + openIdx,
				Metadata: rawHeader(header),
				Err:      ErrMissingMetadata,
			})
			continue
		}
		msg, err := decodeBlock(match[1], match[2])
		if err != nil {
			errs = append(errs, &MalformedBlockError{
				Offset:   segmentStart + openIdx,
				Metadata: match[1],
				Err:      err,
			})
			continue
		}
		messages = append(messages, msg)
	}
	return messages, errs
}

// rawHeader returns the text between the opening marker and its "]]", or
// the first line when the marker is never closed.
func rawHeader(header string) string {
	if end := strings.Index(header, "]]"); end >= 0 {
		return strings.TrimSpace(header[:end])
	}
	line, _, _ := strings.Cut(header, "\n")
	return strings.TrimSpace(line)
}

// Decoder applies the last-wins policy and reports dropped blocks.
type Decoder struct {
	Logger *logging.Logger
}

// Decode returns at most one message: the last decodable block in the
// transcript. Earlier blocks are assumed to be re-renders of older output.
func (d Decoder) Decode(transcript string) []Message {
	messages, errs := ParseBlocks(transcript)
	for _, err := range errs {
		d.Logger.Warn("dropping malformed block", map[string]string{
			"error": err.Error(),
		})
	}
	if len(messages) > 1 {
		d.Logger.Debug("multiple blocks found, using last", map[string]string{
			"count": strconv.Itoa(len(messages)),
		})
		return messages[len(messages)-1:]
	}
	return messages
}

// Decode is Decoder{}.Decode.
func Decode(transcript string) []Message {
	return Decoder{}.Decode(transcript)
}

func decodeBlock(rawMeta, rawBody string) (Message, error) {
	decoder := json.NewDecoder(strings.NewReader(rawMeta))
	decoder.UseNumber()
	meta := map[string]any{}
	if err := decoder.Decode(&meta); err != nil {
		return Message{}, err
	}

	to := metaString(meta, "to")
	recipient, _ := ParseParty(to)
	rawType := metaString(meta, "type")
	return Message{
		To:        to,
		Recipient: recipient,
		Kind:      ParseKind(rawType),
		Type:      strings.ToLower(strings.TrimSpace(rawType)),
		ID:        strings.TrimSpace(metaString(meta, "id")),
		Body:      strings.TrimSpace(rawBody),
		Meta:      meta,
	}, nil
}

func metaString(meta map[string]any, key string) string {
	value, ok := meta[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

// Encode renders a block addressed to recipient.
func Encode(recipient Party, kind Kind, id, body string) string {
	return EncodeMeta(map[string]any{
		"to":   recipient.String(),
		"type": string(kind),
		"id":   id,
	}, body)
}

// Quote re-renders a received block with its original metadata so it can be
// embedded in an instruction to the other party.
func Quote(msg Message) string {
	meta := msg.Meta
	if len(meta) == 0 {
		meta = map[string]any{"to": msg.To, "type": msg.Type, "id": msg.ID}
	}
	return EncodeMeta(meta, msg.Body)
}

// EncodeMeta renders a block from an arbitrary metadata object.
func EncodeMeta(meta map[string]any, body string) string {
	var payload bytes.Buffer
	encoder := json.NewEncoder(&payload)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(meta); err != nil {
		payload.Reset()
		payload.WriteString("{}")
	}
	var builder strings.Builder
	builder.WriteString(OpenMarker)
	builder.WriteString(" ")
	builder.WriteString(strings.TrimSpace(payload.String()))
	builder.WriteString("]]\n")
	builder.WriteString(strings.TrimSpace(body))
	builder.WriteString("\n")
	builder.WriteString(CloseMarker)
	return builder.String()
}
