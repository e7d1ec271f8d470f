// Package memory is an in-process rtdb driver. Writes are applied
// atomically, and listeners are notified in write order from a single
// delivery goroutine, so listeners may write back to the database.
package memory

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/GaoLiaoLiao/delern/logging"
	"github.com/GaoLiaoLiao/delern/rtdb"
)

// Driver holds the whole tree in memory.
type Driver struct {
	mu      sync.Mutex
	root    interface{}
	watches map[*watch]struct{}
	closed  bool

	queue *queue
}

var _ rtdb.Driver = &Driver{}

type watch struct {
	path string
	segs []string
	fn   rtdb.WatchFunc
	last interface{}

	stopped atomic.Bool
}

// deliver runs on the queue goroutine only.
func (w *watch) deliver(tree interface{}, err error) {
	if w.stopped.Load() {
		return
	}
	if err != nil {
		w.stopped.Store(true)
	}
	w.fn(tree, err)
}

// New returns an empty database driver.
func New() *Driver {
	d := &Driver{
		watches: make(map[*watch]struct{}),
		queue:   newQueue(),
	}
	go d.queue.run()
	return d
}

// NewDB returns an rtdb.DB over a new, empty in-memory driver.
func NewDB() *rtdb.DB {
	return rtdb.New(New())
}

// Get returns the tree at path. Query parameters are applied by the caller.
func (d *Driver) Get(_ context.Context, path string, _ rtdb.Params) (interface{}, error) {
	segs, err := rtdb.SplitPath(path)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, rtdb.ErrClosed
	}
	return rtdb.Lookup(d.root, segs), nil
}

// Update applies all updates as a single change.
func (d *Driver) Update(ctx context.Context, updates map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	split := make(map[string][]string, len(updates))
	for path := range updates {
		segs, err := rtdb.SplitPath(path)
		if err != nil {
			return err
		}
		split[path] = segs
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return rtdb.ErrClosed
	}
	root := d.root
	for path, value := range updates {
		root = rtdb.SetAt(root, split[path], value)
	}
	d.root = root

	for w := range d.watches {
		if !touches(w.path, updates) {
			continue
		}
		v := rtdb.Lookup(root, w.segs)
		if reflect.DeepEqual(v, w.last) {
			continue
		}
		w.last = v
		d.queue.push(w, v, nil)
	}
	return nil
}

// touches reports whether any updated path is above or below path.
func touches(path string, updates map[string]interface{}) bool {
	for p := range updates {
		if rtdb.IsAncestor(p, path) || rtdb.IsAncestor(path, p) {
			return true
		}
	}
	return false
}

// Watch reports the tree at path, then every change to it.
func (d *Driver) Watch(path string, _ rtdb.Params, fn rtdb.WatchFunc) func() {
	w := &watch{path: path, fn: fn}
	segs, err := rtdb.SplitPath(path)
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case err != nil:
		d.queue.push(w, nil, err)
	case d.closed:
		d.queue.push(w, nil, rtdb.ErrClosed)
	default:
		w.segs = segs
		w.last = rtdb.Lookup(d.root, segs)
		d.watches[w] = struct{}{}
		d.queue.push(w, w.last, nil)
		logging.Debugf("memory: watching /%s", path)
	}
	return func() {
		w.stopped.Store(true)
		d.mu.Lock()
		delete(d.watches, w)
		d.mu.Unlock()
	}
}

// Close cancels all watches and rejects further use.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for w := range d.watches {
		d.queue.push(w, nil, rtdb.ErrClosed)
	}
	d.watches = nil
	d.mu.Unlock()
	d.queue.close()
	return nil
}

type event struct {
	w    *watch
	tree interface{}
	err  error
}

// queue is an unbounded FIFO drained by one goroutine.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []event
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(w *watch, tree interface{}, err error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		go w.deliver(tree, err)
		return
	}
	q.events = append(q.events, event{w: w, tree: tree, err: err})
	q.mu.Unlock()
	q.cond.Signal()
}

// close lets run deliver what is already queued and then return.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *queue) run() {
	for {
		q.mu.Lock()
		for len(q.events) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.events) == 0 {
			q.mu.Unlock()
			return
		}
		e := q.events[0]
		q.events[0] = event{}
		q.events = q.events[1:]
		q.mu.Unlock()
		e.w.deliver(e.tree, e.err)
	}
}
