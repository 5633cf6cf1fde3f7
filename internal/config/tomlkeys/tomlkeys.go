// Package tomlkeys flattens TOML documents into dotted, normalized keys so
// `[dialogue] max_rounds` and `dialogue.max-rounds` address the same value.
package tomlkeys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Store struct {
	flat map[string]any
}

func (s Store) Flat() map[string]any {
	flat := make(map[string]any, len(s.flat))
	for key, value := range s.flat {
		flat[key] = value
	}
	return flat
}

// Clone returns a copy that can be changed without affecting s.
func (s Store) Clone() Store {
	return Store{flat: s.Flat()}
}

// Set stores value under the normalized form of key. Empty keys are
// ignored.
func (s *Store) Set(key string, value any) {
	normalized := NormalizeKey(key)
	if normalized == "" {
		return
	}
	if s.flat == nil {
		s.flat = make(map[string]any)
	}
	s.flat[normalized] = value
}

// Merge copies every key of other into s, replacing existing values.
func (s *Store) Merge(other Store) {
	for key, value := range other.flat {
		s.Set(key, value)
	}
}

func DecodeMap(data []byte) (map[string]any, error) {
	raw := map[string]any{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func Decode(data []byte) (Store, error) {
	raw, err := DecodeMap(data)
	if err != nil {
		return Store{}, err
	}
	return FromRaw(raw), nil
}

func FromRaw(raw map[string]any) Store {
	flat := make(map[string]any)
	flattenMap("", raw, flat)

	normalized := make(map[string]any, len(flat))
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		normalizedKey := NormalizeKey(key)
		if _, exists := normalized[normalizedKey]; exists {
			continue
		}
		normalized[normalizedKey] = flat[key]
	}
	return Store{flat: normalized}
}

func (s Store) GetBool(key string) (bool, bool) {
	return AsBool(s.flat[NormalizeKey(key)])
}

func (s Store) GetInt(key string) (int64, bool) {
	return AsInt(s.flat[NormalizeKey(key)])
}

func (s Store) GetString(key string) (string, bool) {
	value, ok := s.flat[NormalizeKey(key)].(string)
	return value, ok
}

func (s Store) GetDuration(key string) (time.Duration, bool) {
	return AsDuration(s.flat[NormalizeKey(key)])
}

func (s Store) GetStrings(key string) ([]string, bool) {
	return AsStrings(s.flat[NormalizeKey(key)])
}

// AsBool accepts TOML booleans and the strings understood by
// strconv.ParseBool.
func AsBool(value any) (bool, bool) {
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return parsed, err == nil
	default:
		return false, false
	}
}

func AsInt(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		return parsed, err == nil
	}
	return 0, false
}

// AsDuration accepts Go duration strings ("90s") or a number of seconds,
// which may be fractional.
func AsDuration(value any) (time.Duration, bool) {
	switch typed := value.(type) {
	case time.Duration:
		return typed, true
	case int64:
		return time.Duration(typed) * time.Second, true
	case int:
		return time.Duration(typed) * time.Second, true
	case float64:
		return time.Duration(typed * float64(time.Second)), true
	case string:
		trimmed := strings.TrimSpace(typed)
		if parsed, err := time.ParseDuration(trimmed); err == nil {
			return parsed, true
		}
		if seconds, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return time.Duration(seconds * float64(time.Second)), true
		}
	}
	return 0, false
}

// AsStrings accepts a TOML array of strings or a single whitespace separated
// string.
func AsStrings(value any) ([]string, bool) {
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...), true
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			out = append(out, fmt.Sprint(item))
		}
		return out, true
	case string:
		return strings.Fields(typed), true
	default:
		return nil, false
	}
}

func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	parts := strings.Split(key, ".")
	for i, part := range parts {
		lowered := strings.ToLower(part)
		parts[i] = strings.ReplaceAll(lowered, "_", "-")
	}
	return strings.Join(parts, ".")
}

func flattenMap(prefix string, raw map[string]any, out map[string]any) {
	for key, value := range raw {
		flattenValue(joinKey(prefix, key), value, out)
	}
}

func flattenValue(key string, value any, out map[string]any) {
	switch typed := value.(type) {
	case map[string]any:
		flattenMap(key, typed, out)
	default:
		out[key] = value
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
