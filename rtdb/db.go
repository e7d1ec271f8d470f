package rtdb

import (
	"context"
	"reflect"
	"sync"

	"github.com/pkg/errors"

	"github.com/GaoLiaoLiao/delern/logging"
)

// WatchFunc receives the tree at a watched location. A non-nil error ends the
// watch; no further calls are made after it.
type WatchFunc func(tree interface{}, err error)

// Driver stores the tree and reports changes. Paths are normalized and never
// have leading slashes; the root is "".
type Driver interface {
	// Get returns the tree at path. Drivers may use p to reduce the data
	// returned, but must return at least the children p selects.
	Get(ctx context.Context, path string, p Params) (interface{}, error)
	// Update atomically, where the backend allows, writes each value to its
	// path. Values are normalized trees; nil deletes.
	Update(ctx context.Context, updates map[string]interface{}) error
	// Watch calls fn with the tree at path as soon as it is known, and again
	// whenever it may have changed. Calls for a single watch are serial.
	Watch(path string, p Params, fn WatchFunc) (stop func())
	Close() error
}

// DB is a handle to a realtime database.
type DB struct {
	driver Driver
}

// New returns a DB backed by driver.
func New(driver Driver) *DB {
	return &DB{driver: driver}
}

// Ref returns a reference to path.
func (db *DB) Ref(path string) Ref {
	segs, err := SplitPath(path)
	return Ref{Query{db: db, path: JoinPath(segs...), err: err}}
}

// Root returns a reference to the root of the database.
func (db *DB) Root() Ref {
	return Ref{Query{db: db}}
}

// Close releases the driver.
func (db *DB) Close() error {
	return db.driver.Close()
}

// ValueListener receives the data at an observed location.
type ValueListener interface {
	// OnDataChange is called with the initial data and after every change.
	OnDataChange(*Snapshot)
	// OnCancelled is called once if the listener can no longer be served.
	OnCancelled(error)
}

// ValueListenerFuncs adapts a pair of functions to ValueListener. Either may
// be nil.
type ValueListenerFuncs struct {
	DataChange func(*Snapshot)
	Cancelled  func(error)
}

var _ ValueListener = ValueListenerFuncs{}

// OnDataChange calls f.DataChange.
func (f ValueListenerFuncs) OnDataChange(s *Snapshot) {
	if f.DataChange != nil {
		f.DataChange(s)
	}
}

// OnCancelled calls f.Cancelled.
func (f ValueListenerFuncs) OnCancelled(err error) {
	if f.Cancelled != nil {
		f.Cancelled(err)
	}
}

// Registration is returned when a listener is added.
type Registration interface {
	// Remove detaches the listener. It is safe to call more than once,
	// including from the listener's own callbacks. After Remove returns, an
	// event already being delivered on another goroutine may still arrive;
	// no later ones do.
	Remove()
}

// Listenable is implemented by Ref and Query.
type Listenable interface {
	AddValueListener(ValueListener) Registration
}

var (
	_ Listenable = Query{}
	_ Listenable = Ref{}
)

// Query reads a location, optionally narrowed by Params. Query values are
// immutable; every modifier returns a new Query.
type Query struct {
	db     *DB
	path   string
	params Params
	err    error
}

// Ref returns the location the query reads.
func (q Query) Ref() Ref {
	return Ref{Query{db: q.db, path: q.path, err: q.err}}
}

// Params returns the query's parameters.
func (q Query) Params() Params {
	return q.params
}

// OrderByKey sorts children by key.
func (q Query) OrderByKey() Query {
	q.params.OrderBy = ByKey
	q.params.Child = ""
	return q
}

// OrderByValue sorts children by their value.
func (q Query) OrderByValue() Query {
	q.params.OrderBy = ByValue
	q.params.Child = ""
	return q
}

// OrderByChild sorts children by the value at path inside each child.
func (q Query) OrderByChild(path string) Query {
	segs, err := SplitPath(path)
	if err != nil && q.err == nil {
		q.err = err
	}
	q.params.OrderBy = ByChild
	q.params.Child = JoinPath(segs...)
	return q
}

// StartAt keeps children whose ordering value is at least v.
func (q Query) StartAt(v interface{}) Query {
	q.params.Start, q.params.HasStart = v, true
	return q
}

// EndAt keeps children whose ordering value is at most v.
func (q Query) EndAt(v interface{}) Query {
	q.params.End, q.params.HasEnd = v, true
	return q
}

// EqualTo keeps children whose ordering value equals v.
func (q Query) EqualTo(v interface{}) Query {
	return q.StartAt(v).EndAt(v)
}

// LimitToFirst keeps the first n children.
func (q Query) LimitToFirst(n int) Query {
	q.params.LimitFirst = n
	q.params.LimitLast = 0
	return q
}

// LimitToLast keeps the last n children.
func (q Query) LimitToLast(n int) Query {
	q.params.LimitLast = n
	q.params.LimitFirst = 0
	return q
}

// Get reads the query result once.
func (q Query) Get(ctx context.Context) (*Snapshot, error) {
	if q.err != nil {
		return nil, q.err
	}
	tree, err := q.db.driver.Get(ctx, q.path, q.params)
	if err != nil {
		return nil, errors.Wrapf(err, "get /%s", q.path)
	}
	return newQuerySnapshot(q.Ref().Key(), tree, q.params), nil
}

// AddValueListener reports the query result to l now and after every change,
// until the returned Registration is removed.
func (q Query) AddValueListener(l ValueListener) Registration {
	reg := &registration{}
	if q.err != nil {
		reg.removed = true
		l.OnCancelled(q.err)
		return reg
	}
	key := q.Ref().Key()
	var last *Snapshot
	stop := q.db.driver.Watch(q.path, q.params, func(tree interface{}, err error) {
		if reg.isRemoved() {
			return
		}
		if err != nil {
			reg.Remove()
			logging.Debugf("listener on /%s cancelled: %s", q.path, err)
			l.OnCancelled(errors.Wrapf(err, "listen /%s", q.path))
			return
		}
		snap := newQuerySnapshot(key, tree, q.params)
		if last != nil && last.equal(snap) {
			return
		}
		last = snap
		l.OnDataChange(snap)
	})
	reg.setStop(stop)
	return reg
}

type registration struct {
	mu      sync.Mutex
	stop    func()
	removed bool
}

func (r *registration) setStop(stop func()) {
	r.mu.Lock()
	if r.removed {
		r.mu.Unlock()
		stop()
		return
	}
	r.stop = stop
	r.mu.Unlock()
}

func (r *registration) isRemoved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removed
}

func (r *registration) Remove() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.removed = true
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Ref is a reference to a location in the database.
type Ref struct {
	Query
}

// DB returns the database the reference belongs to.
func (r Ref) DB() *DB {
	return r.db
}

// Path returns the normalized path, without a leading slash.
func (r Ref) Path() string {
	return r.path
}

// Err returns the error, if any, from building this reference.
func (r Ref) Err() error {
	return r.err
}

// Key returns the last key of the path; empty for the root.
func (r Ref) Key() string {
	for i := len(r.path) - 1; i >= 0; i-- {
		if r.path[i] == '/' {
			return r.path[i+1:]
		}
	}
	return r.path
}

// IsRoot reports whether r refers to the root.
func (r Ref) IsRoot() bool {
	return r.path == ""
}

// Parent returns the enclosing location. The root is its own parent.
func (r Ref) Parent() Ref {
	for i := len(r.path) - 1; i >= 0; i-- {
		if r.path[i] == '/' {
			return Ref{Query{db: r.db, path: r.path[:i], err: r.err}}
		}
	}
	return Ref{Query{db: r.db, err: r.err}}
}

// Root returns the root of the database.
func (r Ref) Root() Ref {
	return Ref{Query{db: r.db, err: r.err}}
}

// Child returns a reference to the relative path.
func (r Ref) Child(path string) Ref {
	segs, err := SplitPath(path)
	if r.err != nil {
		err = r.err
	}
	if err == nil && len(segs) == 0 {
		err = errors.Wrap(ErrInvalidPath, "empty child path")
	}
	return Ref{Query{db: r.db, path: JoinPath(r.path, JoinPath(segs...)), err: err}}
}

// Push returns a reference to a new child with a generated, chronologically
// ordered key. Nothing is written.
func (r Ref) Push() Ref {
	return r.Child(NextPushID())
}

// Set replaces the data at the location with v. A nil v removes it.
func (r Ref) Set(ctx context.Context, v interface{}) error {
	if r.err != nil {
		return r.err
	}
	tree, err := Normalize(v)
	if err != nil {
		return errors.Wrapf(err, "set /%s", r.path)
	}
	return errors.Wrapf(r.db.driver.Update(ctx, map[string]interface{}{r.path: tree}), "set /%s", r.path)
}

// Remove deletes the data at the location.
func (r Ref) Remove(ctx context.Context) error {
	return r.Set(ctx, nil)
}

// Update writes each value to its path relative to r in one operation. Paths
// may be nested ("a/b/c") but may not overlap.
func (r Ref) Update(ctx context.Context, values map[string]interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(values) == 0 {
		return nil
	}
	updates := make(map[string]interface{}, len(values))
	for rel, v := range values {
		segs, err := SplitPath(rel)
		if err != nil {
			return errors.Wrapf(err, "update /%s", r.path)
		}
		path := JoinPath(r.path, JoinPath(segs...))
		tree, err := Normalize(v)
		if err != nil {
			return errors.Wrapf(err, "update /%s", path)
		}
		if _, dup := updates[path]; dup {
			return errors.Wrapf(ErrOverlappingUpdate, "path /%s given twice", path)
		}
		updates[path] = tree
	}
	for path := range updates {
		if a, ok := ancestorIn(updates, path); ok {
			return errors.Wrapf(ErrOverlappingUpdate, "/%s contains /%s", a, path)
		}
	}
	return errors.Wrapf(r.db.driver.Update(ctx, updates), "update /%s", r.path)
}

// String returns the path with a leading slash.
func (r Ref) String() string {
	return "/" + r.path
}

// ancestorIn returns a proper ancestor of path that is also a key of updates.
func ancestorIn(updates map[string]interface{}, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if _, ok := updates[""]; ok {
		return "", true
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if _, ok := updates[path[:i]]; ok {
				return path[:i], true
			}
		}
	}
	return "", false
}

func equalTrees(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
