package model

import (
	"encoding/json"
	"sort"
)

// HeroSet is a set of hero identifiers. It marshals to a sorted JSON array so
// persisted documents stay stable across writes.
type HeroSet map[string]struct{}

// NewHeroSet returns a set holding ids.
func NewHeroSet(ids ...string) HeroSet {
	s := make(HeroSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was not already present.
func (s HeroSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports membership. A nil set contains nothing.
func (s HeroSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of members.
func (s HeroSet) Len() int { return len(s) }

// Union returns a new set containing the members of s and every other set.
func (s HeroSet) Union(others ...HeroSet) HeroSet {
	out := make(HeroSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	for _, o := range others {
		for id := range o {
			out[id] = struct{}{}
		}
	}
	return out
}

// Merge adds the members of o to s in place.
func (s HeroSet) Merge(o HeroSet) {
	for id := range o {
		s[id] = struct{}{}
	}
}

// Clone returns a copy of s. Cloning nil yields an empty, non-nil set.
func (s HeroSet) Clone() HeroSet { return s.Union() }

// IsSuperset reports whether every member of o is in s.
func (s HeroSet) IsSuperset(o HeroSet) bool {
	for id := range o {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Slice returns the members sorted ascending.
func (s HeroSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s HeroSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *HeroSet) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewHeroSet(ids...)
	return nil
}
