package rtdb

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Snapshot is an immutable copy of the data at a location, as of the time it
// was read or the change it reports.
type Snapshot struct {
	key   string
	value interface{}
	// order holds child keys in query order; nil means key order.
	order []string
}

// NewSnapshot returns a snapshot of tree stored under key, with children in
// key order.
func NewSnapshot(key string, tree interface{}) *Snapshot {
	return &Snapshot{key: key, value: tree}
}

func newQuerySnapshot(key string, tree interface{}, p Params) *Snapshot {
	if p.IsZero() {
		return NewSnapshot(key, tree)
	}
	value, order := apply(tree, p)
	return &Snapshot{key: key, value: value, order: order}
}

// Key returns the last key of the snapshot's location; empty for the root.
func (s *Snapshot) Key() string {
	return s.key
}

// Exists reports whether the location holds any data.
func (s *Snapshot) Exists() bool {
	return s.value != nil
}

// Raw returns the value as plain Go data: maps, slices, float64, string and
// bool, or nil if the location is empty.
func (s *Snapshot) Raw() interface{} {
	return Export(s.value)
}

// Value decodes the snapshot into dst through its JSON encoding. A missing
// value leaves dst untouched.
func (s *Snapshot) Value(dst interface{}) error {
	if s.value == nil {
		return nil
	}
	data, err := json.Marshal(Export(s.value))
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	return errors.Wrapf(json.Unmarshal(data, dst), "decode snapshot %q", s.key)
}

// MarshalJSON encodes the snapshot's value.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Raw())
}

// Child returns a snapshot of the location at the relative path. Invalid
// paths yield an empty snapshot.
func (s *Snapshot) Child(path string) *Snapshot {
	segs, err := SplitPath(path)
	if err != nil || len(segs) == 0 {
		return &Snapshot{key: s.key, value: nil}
	}
	return NewSnapshot(segs[len(segs)-1], Lookup(s.value, segs))
}

// HasChild reports whether the relative path holds data.
func (s *Snapshot) HasChild(path string) bool {
	return s.Child(path).Exists()
}

// HasChildren reports whether the snapshot is a non-empty object.
func (s *Snapshot) HasChildren() bool {
	return s.ChildrenCount() > 0
}

// ChildrenCount returns the number of direct children.
func (s *Snapshot) ChildrenCount() int {
	m, _ := s.value.(map[string]interface{})
	return len(m)
}

// Children returns the direct children in query order.
func (s *Snapshot) Children() []*Snapshot {
	m, ok := s.value.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := s.order
	if keys == nil {
		keys = Keys(m)
	}
	children := make([]*Snapshot, len(keys))
	for i, k := range keys {
		children[i] = NewSnapshot(k, m[k])
	}
	return children
}

func (s *Snapshot) equal(other *Snapshot) bool {
	if other == nil || !equalTrees(s.value, other.value) || len(s.order) != len(other.order) {
		return false
	}
	for i := range s.order {
		if s.order[i] != other.order[i] {
			return false
		}
	}
	return true
}
