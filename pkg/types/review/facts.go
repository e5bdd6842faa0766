package review

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SourceRef points back to where a fact was extracted from.
type SourceRef struct {
	Document string `json:"document" yaml:"document" jsonschema:"description=Source document, page URL or 'user answer'"`
	Page     string `json:"page,omitempty" yaml:"page,omitempty"`
	Quote    string `json:"quote,omitempty" yaml:"quote,omitempty"`
}

// String renders the reference as document[:page]
func (s SourceRef) String() string {
	if s.Page == "" {
		return s.Document
	}
	return fmt.Sprintf("%s:%s", s.Document, s.Page)
}

// Fact is an atomic, sourced piece of information. Facts are never
// modified after extraction.
type Fact struct {
	Key    string    `json:"key" yaml:"key"`
	Value  string    `json:"value" yaml:"value"`
	Source SourceRef `json:"source" yaml:"source"`
}

// FactSet is a read-only collection of facts keyed by field key. It is
// shared by every section of a run; additions produce a new set.
type FactSet struct {
	facts map[string]Fact
}

// NewFactSet builds a fact set. Later duplicates of a key are ignored.
func NewFactSet(facts ...Fact) FactSet {
	m := make(map[string]Fact, len(facts))
	for _, f := range facts {
		if f.Key == "" {
			continue
		}
		if _, exists := m[f.Key]; exists {
			continue
		}
		m[f.Key] = f
	}
	return FactSet{facts: m}
}

// Get returns the fact stored under key
func (s FactSet) Get(key string) (Fact, bool) {
	f, ok := s.facts[key]
	return f, ok
}

// Has reports whether key is present
func (s FactSet) Has(key string) bool {
	_, ok := s.facts[key]
	return ok
}

// Len returns the number of facts
func (s FactSet) Len() int {
	return len(s.facts)
}

// Keys returns all keys in sorted order
func (s FactSet) Keys() []string {
	keys := make([]string, 0, len(s.facts))
	for k := range s.facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns the facts ordered by key
func (s FactSet) All() []Fact {
	keys := s.Keys()
	out := make([]Fact, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.facts[k])
	}
	return out
}

// Missing returns the keys from required that are absent from the set,
// preserving the order of required.
func (s FactSet) Missing(required []string) []string {
	var missing []string
	for _, k := range required {
		if !s.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// With returns a new set holding the existing facts plus the given ones.
// Existing keys win; the receiver is left untouched.
func (s FactSet) With(facts ...Fact) FactSet {
	merged := make([]Fact, 0, len(s.facts)+len(facts))
	merged = append(merged, s.All()...)
	merged = append(merged, facts...)
	return NewFactSet(merged...)
}

// MarshalJSON encodes the set as an ordered list of facts
func (s FactSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.All())
}

// UnmarshalJSON decodes a list of facts
func (s *FactSet) UnmarshalJSON(data []byte) error {
	var facts []Fact
	if err := json.Unmarshal(data, &facts); err != nil {
		return err
	}
	*s = NewFactSet(facts...)
	return nil
}
