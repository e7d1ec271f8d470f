package couch

import (
	"context"

	kivik "github.com/go-kivik/kivik/v4"
)

type getter interface {
	Get(ctx context.Context, docID string, options ...kivik.Option) kivikRow
}

type putter interface {
	Put(ctx context.Context, docID string, doc interface{}, options ...kivik.Option) (string, error)
}

type deleter interface {
	Delete(ctx context.Context, docID, rev string, options ...kivik.Option) (string, error)
}

type allDocer interface {
	AllDocs(ctx context.Context, options ...kivik.Option) kivikRows
}

type changeser interface {
	Changes(ctx context.Context, options ...kivik.Option) kivikChanges
}

type kivikDB interface {
	getter
	putter
	deleter
	allDocer
	changeser
}

type dbWrapper struct {
	*kivik.DB
}

var _ kivikDB = &dbWrapper{}

func (db *dbWrapper) Get(ctx context.Context, docID string, options ...kivik.Option) kivikRow {
	return db.DB.Get(ctx, docID, options...)
}

func (db *dbWrapper) AllDocs(ctx context.Context, options ...kivik.Option) kivikRows {
	return db.DB.AllDocs(ctx, options...)
}

func (db *dbWrapper) Changes(ctx context.Context, options ...kivik.Option) kivikChanges {
	return db.DB.Changes(ctx, options...)
}

func wrapDB(db *kivik.DB) kivikDB {
	return &dbWrapper{DB: db}
}

type kivikRow interface {
	ScanDoc(dest interface{}) error
}

type kivikRows interface {
	Close() error
	Next() bool
	ScanDoc(dest interface{}) error
	ID() (string, error)
	Err() error
}

type kivikChanges interface {
	Close() error
	Next() bool
	ID() string
	Err() error
}
