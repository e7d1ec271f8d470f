package model

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/GaoLiaoLiao/delern/rtdb"
	"github.com/GaoLiaoLiao/delern/rtdb/memory"
)

const (
	userKind Kind = "user"
	deckKind Kind = "deck"
	cardKind Kind = "card"
)

type testUser struct {
	Base
	Name string `json:"name"`
}

var _ Parent = &testUser{}

func (*testUser) Kind() Kind { return userKind }

func (u *testUser) ChildReference(kind Kind) (rtdb.Ref, error) {
	root, ok := u.Parent().(*Root)
	if !ok {
		return rtdb.Ref{}, ErrNoParent
	}
	if kind != deckKind {
		return rtdb.Ref{}, errors.Errorf("user has no %s children", kind)
	}
	return root.DB().Ref("decks").Child(u.Key()), nil
}

type testDeck struct {
	Base
	Name     string `json:"name"`
	Markdown bool   `json:"markdown,omitempty"`
}

var _ Parent = &testDeck{}

func (*testDeck) Kind() Kind { return deckKind }

func (d *testDeck) ChildReference(kind Kind) (rtdb.Ref, error) {
	if kind != cardKind {
		return rtdb.Ref{}, errors.Errorf("deck has no %s children", kind)
	}
	ref, err := Reference(d)
	if err != nil {
		return rtdb.Ref{}, err
	}
	return ref.Root().Child("cards").Child(d.Key()), nil
}

type testCard struct {
	Base
	Front string `json:"front"`
	Back  string `json:"back,omitempty"`
}

func (*testCard) Kind() Kind { return cardKind }

// testLevel is stored as a bare string.
type testLevel struct {
	Base
	Level string
}

func (*testLevel) Kind() Kind                   { return "level" }
func (l *testLevel) FirebaseValue() interface{} { return l.Level }

type fixture struct {
	db   *rtdb.DB
	root *Root
	user *testUser
}

func newFixture(t *testing.T) *fixture {
	db := memory.NewDB()
	t.Cleanup(func() { _ = db.Close() })
	root := NewRoot(db, map[Kind]string{userKind: "users"})
	user := &testUser{Base: NewBase(root, "uid1"), Name: "Alice"}
	return &fixture{db: db, root: root, user: user}
}

func (f *fixture) deck(key, name string) *testDeck {
	return &testDeck{Base: NewBase(f.user, key), Name: name}
}

type collector[T any] struct {
	data chan T
	errs chan error
	l    *DataAvailableListener[T]
}

func newCollector[T any]() *collector[T] {
	c := &collector[T]{
		data: make(chan T, 16),
		errs: make(chan error, 16),
	}
	c.l = NewListener(func(v T) { c.data <- v }, func(err error) { c.errs <- err })
	return c
}

func (c *collector[T]) next(t *testing.T) T {
	t.Helper()
	select {
	case v := <-c.data:
		return v
	case err := <-c.errs:
		t.Fatalf("Unexpected error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for data")
	}
	var zero T
	return zero
}

func (c *collector[T]) nextErr(t *testing.T) error {
	t.Helper()
	select {
	case err := <-c.errs:
		return err
	case v := <-c.data:
		t.Fatalf("Unexpected data: %v", v)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for an error")
	}
	return nil
}

func (c *collector[T]) quiet(t *testing.T) {
	t.Helper()
	select {
	case v := <-c.data:
		t.Fatalf("Unexpected data: %v", v)
	case err := <-c.errs:
		t.Fatalf("Unexpected error: %s", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func checkErr(t *testing.T, expected interface{}, err error) {
	t.Helper()
	var expectedMsg, errMsg string
	switch e := expected.(type) {
	case error:
		if e == errors.Cause(err) {
			return
		}
		if e != nil {
			expectedMsg = e.Error()
		}
	case string:
		expectedMsg = e
	default:
		t.Fatalf("Unexpected type error type %T", expected)
	}
	if err != nil {
		errMsg = err.Error()
	}
	if expectedMsg != errMsg {
		t.Errorf("Unexpected error: %s", errMsg)
	}
}
