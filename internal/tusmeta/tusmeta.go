// Package tusmeta implements the Upload-Metadata wire format used by
// resumable (TUS-style) uploads: comma-separated pairs where each pair is
// either a bare key or a key and base64 value separated by a single space.
package tusmeta

import (
	"encoding/base64"
	"strings"
)

// Entry is a single metadata pair. Value holds the base64 text exactly as it
// appears on the wire; it is empty for bare keys.
type Entry struct {
	Key   string
	Value string
}

// Set is an ordered collection of metadata entries keyed by Entry.Key. Keys
// are unique; insertion order is preserved by Encode.
type Set struct {
	entries []Entry
	index   map[string]int
}

// NewSet returns an empty metadata set.
func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Parse decodes the wire representation into a Set. Segments with an empty
// key are dropped silently, and the first occurrence of a key wins. An empty
// input yields an empty set; Parse never fails.
func Parse(raw string) *Set {
	set := NewSet()
	if strings.TrimSpace(raw) == "" {
		return set
	}
	for _, segment := range strings.Split(raw, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key := segment
		value := ""
		if idx := strings.Index(segment, " "); idx >= 0 {
			key = segment[:idx]
			value = segment[idx+1:]
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, exists := set.index[key]; exists {
			continue
		}
		set.index[key] = len(set.entries)
		set.entries = append(set.entries, Entry{Key: key, Value: strings.TrimSpace(value)})
	}
	return set
}

// Len reports the number of entries in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Has reports whether the key is present.
func (s *Set) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[key]
	return ok
}

// Get returns the stored base64 value for the key.
func (s *Set) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	idx, ok := s.index[key]
	if !ok {
		return "", false
	}
	return s.entries[idx].Value, true
}

// Value returns the decoded value for the key. Bare keys decode to an empty
// string.
func (s *Set) Value(key string) (string, error) {
	encoded, ok := s.Get(key)
	if !ok || encoded == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// Set stores the base64 value under key, replacing any existing entry while
// keeping its original position.
func (s *Set) Set(key, encoded string) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if idx, ok := s.index[key]; ok {
		s.entries[idx].Value = encoded
		return
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Value: encoded})
}

// SetDefault base64-encodes raw and stores it under key only when the key is
// absent. It reports whether the entry was inserted, so repeated calls with
// the same key never change an existing value.
func (s *Set) SetDefault(key, raw string) bool {
	if s.Has(key) {
		return false
	}
	s.Set(key, base64.StdEncoding.EncodeToString([]byte(raw)))
	return true
}

// Entries returns a copy of the entries in insertion order.
func (s *Set) Entries() []Entry {
	if s == nil || len(s.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Encode renders the set in wire format: entries joined by commas, each as
// "key" or "key value", in insertion order.
func (s *Set) Encode() string {
	if s == nil || len(s.entries) == 0 {
		return ""
	}
	var builder strings.Builder
	for i, entry := range s.entries {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(entry.Key)
		if entry.Value != "" {
			builder.WriteByte(' ')
			builder.WriteString(entry.Value)
		}
	}
	return builder.String()
}
