// Package model maps realtime database data onto typed Go values.
//
// A model is a struct embedding Base, which tracks the key the model is
// stored under and the parent it belongs to. Parents decide where their
// children live (see Parent.ChildReference); child data is usually not nested
// under the parent's own node.
//
//	type Deck struct {
//		model.Base
//		Name string `json:"name"`
//	}
//
//	func (*Deck) Kind() model.Kind { return "deck" }
//
// Models are read with FetchChild, FetchChildren or Watch, which keep
// delivering fresh objects until the listener is cleaned up, and written with
// Save, Delete or a MultiWrite.
package model

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/GaoLiaoLiao/delern/rtdb"
)

// Kind names a class of models, such as "deck" or "card".
type Kind string

var (
	// ErrNoParent is returned when a model's location depends on a parent it
	// does not have.
	ErrNoParent = errors.New("model has no parent")
	// ErrNotExist is returned when a model without a key is used where a
	// stored model is required.
	ErrNotExist = errors.New("model has no key")
)

// Model is implemented by all persistent objects, usually by embedding Base
// and adding a Kind method.
type Model interface {
	Key() string
	SetKey(key string)
	Exists() bool
	Parent() Parent
	SetParent(parent Parent)
	Kind() Kind
}

// Parent is a model that other models belong to.
type Parent interface {
	Model
	// ChildReference returns the location holding all children of the given
	// kind that belong to this parent. There may be further levels between
	// that location and the children themselves.
	ChildReference(kind Kind) (rtdb.Ref, error)
}

// Valuer may be implemented by models that store something other than
// themselves, for instance a trivial model holding a single value.
type Valuer interface {
	FirebaseValue() interface{}
}

// Base carries the key and parent of a model. Neither is serialized.
type Base struct {
	key    string
	parent Parent
}

// NewBase returns a Base for a model belonging to parent. key is empty for a
// model that has not been stored yet.
func NewBase(parent Parent, key string) Base {
	return Base{key: key, parent: parent}
}

// Key returns the key assigned when fetching from or saving to the database.
func (b *Base) Key() string {
	return b.key
}

// SetKey sets the key. Besides internal use when saving, this lets a child
// model share its parent's key.
func (b *Base) SetKey(key string) {
	b.key = key
}

// Exists reports whether the model (supposedly) exists in the database, that
// is whether it has a key.
func (b *Base) Exists() bool {
	return b.key != ""
}

// Parent returns the model this one belongs to.
func (b *Base) Parent() Parent {
	return b.parent
}

// SetParent sets the parent. Models are normally given a parent when built;
// this is used when decoding from a snapshot.
func (b *Base) SetParent(parent Parent) {
	b.parent = parent
}

func (b *Base) String() string {
	return fmt.Sprintf("parent=%v, key='%s'", b.parent, b.key)
}

// Value returns what should be written to the database for m.
func Value(m Model) interface{} {
	if v, ok := m.(Valuer); ok {
		return v.FirebaseValue()
	}
	return m
}

// ChildRef returns the location of a specific child of parent, or the root of
// grandchildren belonging to that child.
func ChildRef(parent Parent, kind Kind, key string) (rtdb.Ref, error) {
	if parent == nil {
		return rtdb.Ref{}, ErrNoParent
	}
	ref, err := parent.ChildReference(kind)
	if err != nil {
		return rtdb.Ref{}, err
	}
	ref = ref.Child(key)
	return ref, errors.Wrapf(ref.Err(), "%s %q", kind, key)
}

// Reference returns the location where m is stored.
func Reference(m Model) (rtdb.Ref, error) {
	if !m.Exists() {
		return rtdb.Ref{}, errors.Wrapf(ErrNotExist, "%s", m.Kind())
	}
	if m.Parent() == nil {
		return rtdb.Ref{}, errors.Wrapf(ErrNoParent, "%s %q", m.Kind(), m.Key())
	}
	return ChildRef(m.Parent(), m.Kind(), m.Key())
}

// ptrModel is satisfied by *T when *T is a Model.
type ptrModel[T any] interface {
	*T
	Model
}

// FromSnapshot decodes a snapshot of a single model (not a list) into a new
// *T with its key and parent set. It returns nil if the snapshot is empty.
func FromSnapshot[T any, PT ptrModel[T]](snap *rtdb.Snapshot, parent Parent) (PT, error) {
	if !snap.Exists() {
		return nil, nil
	}
	m := PT(new(T))
	if err := snap.Value(m); err != nil {
		return nil, errors.Wrapf(err, "%s %q", m.Kind(), snap.Key())
	}
	m.SetKey(snap.Key())
	m.SetParent(parent)
	return m, nil
}
