// internal/models/tagset.go
package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// TagSet is an unordered set of normalized (trimmed, lower-case) strings.
// It serializes as a sorted JSON array.
type TagSet map[string]struct{}

// NewTagSet builds a set, dropping blanks and duplicates.
func NewTagSet(items ...string) TagSet {
	s := make(TagSet, len(items))
	for _, item := range items {
		s.Add(item)
	}
	return s
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func (s TagSet) Add(tag string) {
	if t := normalizeTag(tag); t != "" {
		s[t] = struct{}{}
	}
}

func (s TagSet) Contains(tag string) bool {
	_, ok := s[normalizeTag(tag)]
	return ok
}

func (s TagSet) Len() int {
	return len(s)
}

// IntersectionCount returns |s ∩ other|.
func (s TagSet) IntersectionCount(other TagSet) int {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for tag := range small {
		if _, ok := large[tag]; ok {
			n++
		}
	}
	return n
}

// Sorted returns the members in ascending order.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for tag := range s {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TagSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewTagSet(items...)
	return nil
}
