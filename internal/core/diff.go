package core

import (
	"encoding/json"
	"sort"
	"strings"
)

// ObservedSet is the set of identities in the tracked state as of one tick.
type ObservedSet map[Identity]struct{}

// NewObservedSet builds a set from identities, skipping blanks.
func NewObservedSet(ids ...Identity) ObservedSet {
	set := make(ObservedSet, len(ids))
	for _, id := range ids {
		id = Identity(strings.TrimSpace(string(id)))
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s ObservedSet) Has(id Identity) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of members.
func (s ObservedSet) Len() int {
	return len(s)
}

// Sorted returns members in lexical order.
func (s ObservedSet) Sorted() []Identity {
	out := make([]Identity, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s ObservedSet) Clone() ObservedSet {
	out := make(ObservedSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s ObservedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of identities.
func (s *ObservedSet) UnmarshalJSON(data []byte) error {
	var ids []Identity
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewObservedSet(ids...)
	return nil
}

// UnmarshalYAML decodes a YAML sequence of identities.
func (s *ObservedSet) UnmarshalYAML(unmarshal func(any) error) error {
	var ids []Identity
	if err := unmarshal(&ids); err != nil {
		return err
	}
	*s = NewObservedSet(ids...)
	return nil
}

// TransitionBatch holds boundary crossings between two consecutive snapshots.
type TransitionBatch struct {
	Entered []Identity `json:"entered"`
	Exited  []Identity `json:"exited"`
}

// Empty reports whether nothing changed.
func (b TransitionBatch) Empty() bool {
	return len(b.Entered) == 0 && len(b.Exited) == 0
}

// Diff computes entered = current - previous and exited = previous - current.
// Both slices are sorted. Diff never mutates its inputs.
func Diff(previous, current ObservedSet) TransitionBatch {
	batch := TransitionBatch{
		Entered: []Identity{},
		Exited:  []Identity{},
	}
	for id := range current {
		if !previous.Has(id) {
			batch.Entered = append(batch.Entered, id)
		}
	}
	for id := range previous {
		if !current.Has(id) {
			batch.Exited = append(batch.Exited, id)
		}
	}
	sort.Slice(batch.Entered, func(i, j int) bool { return batch.Entered[i] < batch.Entered[j] })
	sort.Slice(batch.Exited, func(i, j int) bool { return batch.Exited[i] < batch.Exited[j] })
	return batch
}
