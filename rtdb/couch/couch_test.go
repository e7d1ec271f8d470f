package couch

import (
	"context"
	"testing"
	"time"

	"github.com/flimzy/diff"
	"github.com/pkg/errors"
	"gitlab.com/flimzy/testy"

	"github.com/GaoLiaoLiao/delern/rtdb"
)

func testDB(t *testing.T) (*rtdb.DB, *mockDB) {
	mock := newMockDB()
	db := rtdb.New(newDriver(mock))
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestNewInvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "http://foo.com/%xx", "delern")
	if err == nil {
		t.Fatal("Expected an error")
	}
}

func TestSetGet(t *testing.T) {
	db, mock := testDB(t)
	ctx := context.Background()
	err := db.Root().Update(ctx, map[string]interface{}{
		"decks/uid1/d1": map[string]interface{}{"name": "Spanish"},
		"decks/uid1/d2": map[string]interface{}{"name": "French"},
		"cards/d1/c1":   map[string]interface{}{"front": "hola"},
	})
	testy.Error(t, "", err)
	if ids := mock.docIDs(); ids != "cards,decks" {
		t.Errorf("Unexpected documents: %s", ids)
	}

	type getTest struct {
		path     string
		expected interface{}
	}
	tests := []getTest{
		{path: "decks/uid1/d2/name", expected: "French"},
		{path: "cards", expected: map[string]interface{}{
			"d1": map[string]interface{}{"c1": map[string]interface{}{"front": "hola"}},
		}},
		{path: "views", expected: nil},
		{path: "", expected: map[string]interface{}{
			"cards": map[string]interface{}{
				"d1": map[string]interface{}{"c1": map[string]interface{}{"front": "hola"}},
			},
			"decks": map[string]interface{}{
				"uid1": map[string]interface{}{
					"d1": map[string]interface{}{"name": "Spanish"},
					"d2": map[string]interface{}{"name": "French"},
				},
			},
		}},
	}
	for _, test := range tests {
		t.Run("/"+test.path, func(t *testing.T) {
			snap, err := db.Ref(test.path).Get(ctx)
			testy.Error(t, "", err)
			if d := diff.Interface(test.expected, snap.Raw()); d != nil {
				t.Error(d)
			}
		})
	}
}

func TestQueryGet(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()
	err := db.Ref("decks/uid1").Set(ctx, map[string]interface{}{
		"d1": map[string]interface{}{"name": "Spanish"},
		"d2": map[string]interface{}{"name": "French"},
		"d3": map[string]interface{}{"name": "German"},
	})
	testy.Error(t, "", err)
	snap, err := db.Ref("decks/uid1").OrderByChild("name").LimitToFirst(2).Get(ctx)
	testy.Error(t, "", err)
	var keys []string
	for _, c := range snap.Children() {
		keys = append(keys, c.Key())
	}
	if d := diff.Interface([]string{"d2", "d3"}, keys); d != nil {
		t.Error(d)
	}
}

func TestRemoveDeletesDocument(t *testing.T) {
	db, mock := testDB(t)
	ctx := context.Background()
	testy.Error(t, "", db.Ref("views/d1/v1").Set(ctx, true))
	testy.Error(t, "", db.Ref("learning/d1/c1").Set(ctx, "L1"))
	testy.Error(t, "", db.Ref("views/d1/v1").Remove(ctx))
	if ids := mock.docIDs(); ids != "learning" {
		t.Errorf("Unexpected documents: %s", ids)
	}
	// Removing a missing location is a no-op.
	testy.Error(t, "", db.Ref("views/d1").Remove(ctx))
}

func TestSetRoot(t *testing.T) {
	db, mock := testDB(t)
	ctx := context.Background()
	testy.Error(t, "", db.Ref("a/x").Set(ctx, 1))
	testy.Error(t, "", db.Ref("b/y").Set(ctx, 2))
	testy.Error(t, "", db.Root().Set(ctx, map[string]interface{}{"b": "new", "c": true}))
	if ids := mock.docIDs(); ids != "b,c" {
		t.Errorf("Unexpected documents: %s", ids)
	}
	snap, err := db.Root().Get(ctx)
	testy.Error(t, "", err)
	if d := diff.Interface(map[string]interface{}{"b": "new", "c": true}, snap.Raw()); d != nil {
		t.Error(d)
	}
	testy.Error(t, "", db.Root().Remove(ctx))
	if ids := mock.docIDs(); ids != "" {
		t.Errorf("Unexpected documents: %s", ids)
	}
}

func TestSetRootLeaf(t *testing.T) {
	db, _ := testDB(t)
	err := db.Root().Set(context.Background(), "leaf")
	testy.Error(t, "set /: the root can only hold objects", err)
}

func TestConflictRetry(t *testing.T) {
	ctx := context.Background()
	t.Run("Recovers", func(t *testing.T) {
		mock := newMockDB()
		d := newDriver(mock)
		mock.conflicts = 2
		err := d.Update(ctx, map[string]interface{}{"a": "x"})
		testy.Error(t, "", err)
		v, err := d.Get(ctx, "a", rtdb.Params{})
		testy.Error(t, "", err)
		if v != "x" {
			t.Errorf("Unexpected value: %v", v)
		}
	})
	t.Run("GivesUp", func(t *testing.T) {
		mock := newMockDB()
		d := newDriver(mock)
		d.Retries = 1
		mock.conflicts = 3
		err := d.Update(ctx, map[string]interface{}{"a": "x", "b": "y"})
		testy.Error(t, "1 error occurred:\n\t* update \"a\": document update conflict\n\n", err)
	})
}

func TestGetError(t *testing.T) {
	mock := newMockDB()
	mock.getErr = errors.New("connection refused")
	d := newDriver(mock)
	_, err := d.Get(context.Background(), "a/b", rtdb.Params{})
	testy.Error(t, "connection refused", err)
}

func TestReservedKey(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()
	err := db.Ref("_design/x").Set(ctx, 1)
	if errors.Cause(err) != rtdb.ErrInvalidPath {
		t.Errorf("Unexpected error: %v", err)
	}
	_, err = db.Ref("_users").Get(ctx)
	if errors.Cause(err) != rtdb.ErrInvalidPath {
		t.Errorf("Unexpected error: %v", err)
	}
}

type recorder struct {
	data chan *rtdb.Snapshot
	errs chan error
}

func newRecorder() *recorder {
	return &recorder{
		data: make(chan *rtdb.Snapshot, 16),
		errs: make(chan error, 1),
	}
}

func (r *recorder) OnDataChange(s *rtdb.Snapshot) { r.data <- s }
func (r *recorder) OnCancelled(err error)         { r.errs <- err }

func (r *recorder) next(t *testing.T) *rtdb.Snapshot {
	t.Helper()
	select {
	case s := <-r.data:
		return s
	case err := <-r.errs:
		t.Fatalf("Unexpected cancellation: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for data")
	}
	return nil
}

func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case s := <-r.data:
		t.Fatalf("Unexpected data: %v", s.Raw())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatch(t *testing.T) {
	db, mock := testDB(t)
	ctx := context.Background()
	rec := newRecorder()
	reg := db.Ref("decks/uid1").AddValueListener(rec)
	defer reg.Remove()

	if s := rec.next(t); s.Exists() {
		t.Errorf("Unexpected initial value: %v", s.Raw())
	}
	testy.Error(t, "", db.Ref("decks/uid1/d1/name").Set(ctx, "Spanish"))
	if d := diff.Interface(map[string]interface{}{"d1": map[string]interface{}{"name": "Spanish"}}, rec.next(t).Raw()); d != nil {
		t.Error(d)
	}
	// Other documents, and other users in the same document.
	testy.Error(t, "", db.Ref("cards/d1/c1/front").Set(ctx, "hola"))
	testy.Error(t, "", db.Ref("decks/uid2/d1/name").Set(ctx, "French"))
	rec.quiet(t)

	mock.mu.Lock()
	ids, _ := mock.lastOpt["doc_ids"].([]string)
	mock.mu.Unlock()
	if d := diff.Interface([]string{"decks"}, ids); d != nil {
		t.Error(d)
	}

	reg.Remove()
	deadline := time.Now().Add(2 * time.Second)
	for mock.feedCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := mock.feedCount(); n != 0 {
		t.Errorf("Changes feed still open after removal: %d", n)
	}
}

func TestWatchClose(t *testing.T) {
	db, _ := testDB(t)
	rec := newRecorder()
	db.Root().AddValueListener(rec)
	rec.next(t)
	testy.Error(t, "", db.Close())
	select {
	case err := <-rec.errs:
		testy.Error(t, "listen /: database closed", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for cancellation")
	}
}
