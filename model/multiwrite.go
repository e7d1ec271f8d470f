package model

import (
	"context"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/GaoLiaoLiao/delern/rtdb"
)

// MultiWrite collects changes to several locations and commits them in a
// single update, so either all of them are applied or none.
type MultiWrite struct {
	db      *rtdb.DB
	updates map[string]interface{}
	err     error
}

// NewMultiWrite returns an empty batch for db.
func NewMultiWrite(db *rtdb.DB) *MultiWrite {
	return &MultiWrite{
		db:      db,
		updates: make(map[string]interface{}),
	}
}

func (w *MultiWrite) fail(err error) *MultiWrite {
	w.err = multierror.Append(w.err, err)
	return w
}

func (w *MultiWrite) checkDB(ref rtdb.Ref) error {
	if ref.DB() != w.db {
		return errors.Errorf("%s belongs to another database", ref)
	}
	return nil
}

// Save writes m to its location. A model without a key is assigned a new
// key under its parent's child reference first.
func (w *MultiWrite) Save(m Model) *MultiWrite {
	if !m.Exists() {
		if m.Parent() == nil {
			return w.fail(errors.Wrapf(ErrNoParent, "save: %s", m.Kind()))
		}
		root, err := m.Parent().ChildReference(m.Kind())
		if err != nil {
			return w.fail(errors.Wrap(err, "save"))
		}
		m.SetKey(root.Push().Key())
	}
	ref, err := Reference(m)
	if err != nil {
		return w.fail(errors.Wrap(err, "save"))
	}
	return w.Set(ref, Value(m))
}

// Delete removes m from the database.
func (w *MultiWrite) Delete(m Model) *MultiWrite {
	ref, err := Reference(m)
	if err != nil {
		return w.fail(errors.Wrap(err, "delete"))
	}
	return w.Set(ref, nil)
}

// Set writes value to ref, which need not belong to a model. A nil value
// removes the location.
func (w *MultiWrite) Set(ref rtdb.Ref, value interface{}) *MultiWrite {
	if err := ref.Err(); err != nil {
		return w.fail(err)
	}
	if err := w.checkDB(ref); err != nil {
		return w.fail(err)
	}
	w.updates[ref.Path()] = value
	return w
}

// Len returns the number of locations to be written.
func (w *MultiWrite) Len() int {
	return len(w.updates)
}

// Write commits the batch. It fails without writing anything if any change
// could not be added.
func (w *MultiWrite) Write(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if len(w.updates) == 0 {
		return nil
	}
	defer profile(fmt.Sprintf("multi-write of %d locations", len(w.updates)))()
	return errors.Wrap(w.db.Root().Update(ctx, w.updates), "multi-write")
}

// Save writes the model to the database, creating a new node if it does not
// exist yet.
func Save(ctx context.Context, m Model) error {
	db, err := modelDB(m)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	return NewMultiWrite(db).Save(m).Write(ctx)
}

// Delete removes the model from the database.
func Delete(ctx context.Context, m Model) error {
	db, err := modelDB(m)
	if err != nil {
		return errors.Wrap(err, "delete")
	}
	return NewMultiWrite(db).Delete(m).Write(ctx)
}

func modelDB(m Model) (*rtdb.DB, error) {
	if m.Parent() == nil {
		return nil, errors.Wrapf(ErrNoParent, "%s", m.Kind())
	}
	ref, err := m.Parent().ChildReference(m.Kind())
	if err != nil {
		return nil, err
	}
	return ref.DB(), nil
}
