// Package couch is an rtdb driver storing the tree in a CouchDB database.
//
// Each top-level key of the tree is one document, holding the subtree in its
// "value" field. Writes touching several top-level keys are applied document
// by document, so they are not atomic across documents. Changes are picked up
// from the database's continuous changes feed.
package couch

import (
	"context"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // CouchDB driver
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/GaoLiaoLiao/delern/logging"
	"github.com/GaoLiaoLiao/delern/rtdb"
)

// DefaultRetries is how many times a conflicting document write is retried.
const DefaultRetries = 5

// node is the document stored for one top-level key.
type node struct {
	ID    string      `json:"_id"`
	Rev   string      `json:"_rev,omitempty"`
	Value interface{} `json:"value"`
}

type closer interface {
	Close() error
}

// Driver implements rtdb.Driver over CouchDB.
type Driver struct {
	db     kivikDB
	client closer
	// Retries is how many times a write is retried after a document update
	// conflict.
	Retries int

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

var _ rtdb.Driver = &Driver{}

func newDriver(db kivikDB) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		db:      db,
		Retries: DefaultRetries,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// New connects to the CouchDB server at dsn and opens dbName, creating it if
// necessary.
func New(ctx context.Context, dsn, dbName string) (*Driver, error) {
	client, err := kivik.New("couch", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if err := client.CreateDB(ctx, dbName); err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
		_ = client.Close()
		return nil, errors.Wrapf(err, "create database %q", dbName)
	}
	db := client.DB(dbName)
	if err := db.Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "open database %q", dbName)
	}
	d := newDriver(wrapDB(db))
	d.client = client
	logging.Debugf("couch: using database %q", dbName)
	return d, nil
}

// NewDB is like New, but returns an rtdb.DB.
func NewDB(ctx context.Context, dsn, dbName string) (*rtdb.DB, error) {
	d, err := New(ctx, dsn, dbName)
	if err != nil {
		return nil, err
	}
	return rtdb.New(d), nil
}

func (d *Driver) closed() bool {
	return d.ctx.Err() != nil
}

func docID(key string) (string, error) {
	if strings.HasPrefix(key, "_") {
		return "", errors.Wrapf(rtdb.ErrInvalidPath, "top-level key %q is reserved", key)
	}
	return key, nil
}

func notFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

// getDoc returns the document for id, or an empty one if it does not exist.
func (d *Driver) getDoc(ctx context.Context, id string) (*node, error) {
	doc := &node{}
	if err := d.db.Get(ctx, id).ScanDoc(doc); err != nil {
		if notFound(err) {
			return &node{ID: id}, nil
		}
		return nil, err
	}
	return doc, nil
}

func (d *Driver) allDocs(ctx context.Context) (map[string]interface{}, error) {
	rows := d.db.AllDocs(ctx, kivik.Param("include_docs", true))
	defer rows.Close() // nolint: errcheck
	tree := make(map[string]interface{})
	for rows.Next() {
		id, err := rows.ID()
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(id, "_") {
			continue
		}
		doc := &node{}
		if err := rows.ScanDoc(doc); err != nil {
			return nil, errors.Wrapf(err, "document %q", id)
		}
		if doc.Value != nil {
			tree[id] = doc.Value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tree) == 0 {
		return nil, nil
	}
	return tree, nil
}

// Get returns the tree at path. Query parameters are applied by the caller.
func (d *Driver) Get(ctx context.Context, path string, _ rtdb.Params) (interface{}, error) {
	if d.closed() {
		return nil, rtdb.ErrClosed
	}
	segs, err := rtdb.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		tree, err := d.allDocs(ctx)
		if err != nil {
			return nil, err
		}
		if tree == nil {
			return nil, nil
		}
		return tree, nil
	}
	id, err := docID(segs[0])
	if err != nil {
		return nil, err
	}
	doc, err := d.getDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return rtdb.Lookup(doc.Value, segs[1:]), nil
}

type change struct {
	segs  []string
	value interface{}
}

// Update applies updates one document at a time. Documents that could not be
// written are reported together.
func (d *Driver) Update(ctx context.Context, updates map[string]interface{}) error {
	if d.closed() {
		return rtdb.ErrClosed
	}
	if value, ok := updates[""]; ok {
		expanded, err := d.expandRoot(ctx, value)
		if err != nil {
			return err
		}
		updates = expanded
	}
	docs := make(map[string][]change)
	for path, value := range updates {
		segs, err := rtdb.SplitPath(path)
		if err != nil {
			return err
		}
		id, err := docID(segs[0])
		if err != nil {
			return err
		}
		docs[id] = append(docs[id], change{segs: segs[1:], value: value})
	}
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var result error
	for _, id := range ids {
		if err := d.updateDoc(ctx, id, docs[id]); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "update %q", id))
		}
	}
	return result
}

// expandRoot turns a write of the whole tree into writes of every top-level
// document, old and new.
func (d *Driver) expandRoot(ctx context.Context, value interface{}) (map[string]interface{}, error) {
	tree, ok := value.(map[string]interface{})
	if value != nil && !ok {
		return nil, errors.New("the root can only hold objects")
	}
	existing, err := d.allDocs(ctx)
	if err != nil {
		return nil, err
	}
	updates := make(map[string]interface{}, len(tree)+len(existing))
	for k := range existing {
		updates[k] = nil
	}
	for k, v := range tree {
		updates[k] = v
	}
	return updates, nil
}

func (d *Driver) updateDoc(ctx context.Context, id string, changes []change) error {
	for attempt := 0; ; attempt++ {
		err := d.tryUpdateDoc(ctx, id, changes)
		if err == nil || kivik.HTTPStatus(err) != http.StatusConflict || attempt >= d.Retries {
			return err
		}
		logging.Debugf("couch: conflict writing %q, retrying", id)
	}
}

func (d *Driver) tryUpdateDoc(ctx context.Context, id string, changes []change) error {
	doc, err := d.getDoc(ctx, id)
	if err != nil {
		return err
	}
	value := doc.Value
	for _, c := range changes {
		value = rtdb.SetAt(value, c.segs, c.value)
	}
	if reflect.DeepEqual(value, doc.Value) {
		return nil
	}
	if value == nil {
		_, err = d.db.Delete(ctx, id, doc.Rev)
		return err
	}
	doc.Value = value
	_, err = d.db.Put(ctx, id, doc)
	return err
}

// Watch follows the changes feed, re-reading path whenever a relevant
// document changes.
func (d *Driver) Watch(path string, _ rtdb.Params, fn rtdb.WatchFunc) func() {
	ctx, cancel := context.WithCancel(d.ctx)
	var stopped atomic.Bool
	go d.watch(ctx, path, &stopped, fn)
	return func() {
		stopped.Store(true)
		cancel()
	}
}

func (d *Driver) watch(ctx context.Context, path string, stopped *atomic.Bool, fn rtdb.WatchFunc) {
	report := func(err error) {
		if stopped.Load() {
			return
		}
		if d.closed() {
			err = rtdb.ErrClosed
		}
		fn(nil, err)
	}
	if d.closed() {
		report(rtdb.ErrClosed)
		return
	}
	segs, err := rtdb.SplitPath(path)
	if err != nil {
		report(err)
		return
	}
	params := map[string]interface{}{
		"feed":      "continuous",
		"since":     "now",
		"heartbeat": 30000,
	}
	if len(segs) > 0 {
		id, err := docID(segs[0])
		if err != nil {
			report(err)
			return
		}
		params["filter"] = "_doc_ids"
		params["doc_ids"] = []string{id}
	}
	changes := d.db.Changes(ctx, kivik.Params(params))
	defer changes.Close() // nolint: errcheck
	if err := changes.Err(); err != nil {
		report(errors.Wrap(err, "changes feed"))
		return
	}

	last, err := d.Get(ctx, path, rtdb.Params{})
	if err != nil {
		report(err)
		return
	}
	if stopped.Load() {
		return
	}
	fn(last, nil)
	logging.Debugf("couch: watching /%s", path)

	for changes.Next() {
		logging.Debugf("couch: document %q changed", changes.ID())
		tree, err := d.Get(ctx, path, rtdb.Params{})
		if err != nil {
			report(err)
			return
		}
		if reflect.DeepEqual(tree, last) || stopped.Load() {
			continue
		}
		last = tree
		fn(tree, nil)
	}
	err = changes.Err()
	if err == nil {
		err = errors.New("feed ended")
	}
	report(errors.Wrap(err, "changes feed"))
}

// Close stops all watches and disconnects.
func (d *Driver) Close() error {
	var err error
	d.once.Do(func() {
		d.cancel()
		if d.client != nil {
			err = d.client.Close()
		}
	})
	return err
}
