package couch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	kivik "github.com/go-kivik/kivik/v4"
)

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) HTTPStatus() int { return e.status }

var (
	errNotFound = &statusError{status: http.StatusNotFound, msg: "not found"}
	errConflict = &statusError{status: http.StatusConflict, msg: "document update conflict"}
)

type mockDoc struct {
	rev   int
	value json.RawMessage
}

func (d mockDoc) revString() string {
	return fmt.Sprintf("%d-x", d.rev)
}

// mockDB is an in-memory stand-in for a CouchDB database.
type mockDB struct {
	mu   sync.Mutex
	docs map[string]mockDoc
	// conflicts is the number of upcoming writes to reject.
	conflicts int
	// getErr is returned by every Get.
	getErr  error
	feeds   map[*mockChanges]struct{}
	lastOpt map[string]interface{}
}

var _ kivikDB = &mockDB{}

func newMockDB() *mockDB {
	return &mockDB{
		docs:  make(map[string]mockDoc),
		feeds: make(map[*mockChanges]struct{}),
	}
}

func (db *mockDB) body(id string, doc mockDoc) string {
	return fmt.Sprintf(`{"_id":%q,"_rev":%q,"value":%s}`, id, doc.revString(), doc.value)
}

func (db *mockDB) Get(_ context.Context, docID string, _ ...kivik.Option) kivikRow {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.getErr != nil {
		return mockRow{err: db.getErr}
	}
	doc, ok := db.docs[docID]
	if !ok {
		return mockRow{err: errNotFound}
	}
	return mockRow{doc: db.body(docID, doc)}
}

func (db *mockDB) checkRev(docID, rev string) error {
	if db.conflicts > 0 {
		db.conflicts--
		return errConflict
	}
	current, ok := db.docs[docID]
	if !ok && rev == "" {
		return nil
	}
	if !ok || current.revString() != rev {
		return errConflict
	}
	return nil
}

func (db *mockDB) Put(_ context.Context, docID string, doc interface{}, _ ...kivik.Option) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	var n struct {
		Rev   string          `json:"_rev"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkRev(docID, n.Rev); err != nil {
		return "", err
	}
	next := mockDoc{rev: db.docs[docID].rev + 1, value: n.Value}
	db.docs[docID] = next
	db.notify(docID)
	return next.revString(), nil
}

func (db *mockDB) Delete(_ context.Context, docID, rev string, _ ...kivik.Option) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.docs[docID]; !ok {
		return "", errNotFound
	}
	if err := db.checkRev(docID, rev); err != nil {
		return "", err
	}
	next := db.docs[docID].rev + 1
	delete(db.docs, docID)
	db.notify(docID)
	return strconv.Itoa(next) + "-x", nil
}

func (db *mockDB) AllDocs(_ context.Context, _ ...kivik.Option) kivikRows {
	db.mu.Lock()
	defer db.mu.Unlock()
	ids := make([]string, 0, len(db.docs))
	for id := range db.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := &mockRows{}
	for _, id := range ids {
		rows.ids = append(rows.ids, id)
		rows.docs = append(rows.docs, db.body(id, db.docs[id]))
	}
	return rows
}

func (db *mockDB) Changes(ctx context.Context, options ...kivik.Option) kivikChanges {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := &mockChanges{ctx: ctx, ch: make(chan string, 16), db: db}
	for _, o := range options {
		p := map[string]interface{}{}
		o.Apply(p)
		if len(p) > 0 {
			db.lastOpt = p
			if ids, ok := p["doc_ids"].([]string); ok {
				c.ids = ids
			}
		}
	}
	db.feeds[c] = struct{}{}
	return c
}

// notify must be called with db.mu held.
func (db *mockDB) notify(docID string) {
	for c := range db.feeds {
		if c.wants(docID) {
			c.ch <- docID
		}
	}
}

func (db *mockDB) feedCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.feeds)
}

func (db *mockDB) docIDs() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	ids := make([]string, 0, len(db.docs))
	for id := range db.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

type mockRow struct {
	doc string
	err error
}

var _ kivikRow = mockRow{}

func (r mockRow) ScanDoc(i interface{}) error {
	if r.err != nil {
		return r.err
	}
	return json.Unmarshal([]byte(r.doc), i)
}

type mockRows struct {
	ids  []string
	docs []string
	i    int
	err  error
}

var _ kivikRows = &mockRows{}

func (r *mockRows) Err() error   { return r.err }
func (r *mockRows) Close() error { return nil }
func (r *mockRows) Next() bool {
	r.i++
	return r.i-1 < len(r.ids)
}
func (r *mockRows) ID() (string, error) { return r.ids[r.i-1], nil }
func (r *mockRows) ScanDoc(d interface{}) error {
	return json.Unmarshal([]byte(r.docs[r.i-1]), d)
}

type mockChanges struct {
	ctx context.Context
	ch  chan string
	ids []string
	id  string
	db  *mockDB
}

var _ kivikChanges = &mockChanges{}

func (c *mockChanges) wants(docID string) bool {
	if len(c.ids) == 0 {
		return true
	}
	for _, id := range c.ids {
		if id == docID {
			return true
		}
	}
	return false
}

func (c *mockChanges) Next() bool {
	select {
	case id := <-c.ch:
		c.id = id
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *mockChanges) ID() string { return c.id }
func (c *mockChanges) Err() error { return nil }
func (c *mockChanges) Close() error {
	c.db.mu.Lock()
	delete(c.db.feeds, c)
	c.db.mu.Unlock()
	return nil
}
