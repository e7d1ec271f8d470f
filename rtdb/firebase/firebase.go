// Package firebase is an rtdb driver for the Firebase Realtime Database,
// talking to it through the Firebase Admin SDK.
//
// The Admin SDK has no streaming listeners, so watches poll: plain locations
// are re-read with ETags, queries are re-run, and a change is reported only
// when the result differs from the last one.
package firebase

import (
	"context"
	"reflect"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/GaoLiaoLiao/delern/logging"
	"github.com/GaoLiaoLiao/delern/rtdb"
)

// DefaultPollInterval is how often watched locations are re-read.
const DefaultPollInterval = 2 * time.Second

// Driver implements rtdb.Driver over the Firebase Admin SDK.
type Driver struct {
	client fbClient
	// PollInterval is how often watched locations are re-read.
	PollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

var _ rtdb.Driver = &Driver{}

func newDriver(client fbClient) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		client:       client,
		PollInterval: DefaultPollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// New connects to the database at url. credentials names a service account
// key file; if empty, application default credentials are used.
func New(ctx context.Context, url, credentials string) (*Driver, error) {
	var opts []option.ClientOption
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: url}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "initialize app")
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", url)
	}
	logging.Debugf("firebase: using %s", url)
	return newDriver(&clientWrapper{Client: client}), nil
}

// NewDB is like New, but returns an rtdb.DB.
func NewDB(ctx context.Context, url, credentials string) (*rtdb.DB, error) {
	d, err := New(ctx, url, credentials)
	if err != nil {
		return nil, err
	}
	return rtdb.New(d), nil
}

func (d *Driver) closed() bool {
	return d.ctx.Err() != nil
}

func (d *Driver) ref(path string) fbRef {
	return d.client.NewRef("/" + path)
}

// query builds the server query for p. The server only accepts string
// bounds when ordering by key.
func (d *Driver) query(path string, p rtdb.Params) fbQuery {
	if p.OrderBy == rtdb.ByKey {
		if p.HasStart {
			p.Start = rtdb.KeyBound(p.Start)
		}
		if p.HasEnd {
			p.End = rtdb.KeyBound(p.End)
		}
	}
	return d.ref(path).Query(p)
}

// Get reads path, running the query described by p on the server.
func (d *Driver) Get(ctx context.Context, path string, p rtdb.Params) (interface{}, error) {
	if d.closed() {
		return nil, rtdb.ErrClosed
	}
	if p.IsZero() {
		var v interface{}
		if err := d.ref(path).Get(ctx, &v); err != nil {
			return nil, err
		}
		return rtdb.Normalize(v)
	}
	nodes, err := d.query(path, p).GetOrdered(ctx)
	if err != nil {
		return nil, err
	}
	return fromNodes(nodes)
}

func fromNodes(nodes []fbQueryNode) (interface{}, error) {
	tree := make(map[string]interface{}, len(nodes))
	for _, n := range nodes {
		var v interface{}
		if err := n.Unmarshal(&v); err != nil {
			return nil, errors.Wrapf(err, "child %q", n.Key())
		}
		tree[n.Key()] = v
	}
	return rtdb.Normalize(tree)
}

// Update sends all updates in one multi-path request, which the server
// applies atomically.
func (d *Driver) Update(ctx context.Context, updates map[string]interface{}) error {
	if d.closed() {
		return rtdb.ErrClosed
	}
	if value, ok := updates[""]; ok {
		if value == nil {
			return d.ref("").Delete(ctx)
		}
		return d.ref("").Set(ctx, value)
	}
	return d.ref("").Update(ctx, updates)
}

// Watch polls path every PollInterval.
func (d *Driver) Watch(path string, p rtdb.Params, fn rtdb.WatchFunc) func() {
	ctx, cancel := context.WithCancel(d.ctx)
	go d.poll(ctx, path, p, fn)
	return cancel
}

// poller re-reads a location, reporting whether it may have changed.
type poller func(ctx context.Context) (tree interface{}, changed bool, err error)

func (d *Driver) etagPoller(path string) poller {
	ref := d.ref(path)
	var etag string
	return func(ctx context.Context) (interface{}, bool, error) {
		var v interface{}
		if etag == "" {
			tag, err := ref.GetWithETag(ctx, &v)
			if err != nil {
				return nil, false, err
			}
			etag = tag
		} else {
			changed, tag, err := ref.GetIfChanged(ctx, etag, &v)
			if err != nil || !changed {
				return nil, false, err
			}
			etag = tag
		}
		tree, err := rtdb.Normalize(v)
		return tree, true, err
	}
}

func (d *Driver) queryPoller(path string, p rtdb.Params) poller {
	q := d.query(path, p)
	return func(ctx context.Context) (interface{}, bool, error) {
		nodes, err := q.GetOrdered(ctx)
		if err != nil {
			return nil, false, err
		}
		tree, err := fromNodes(nodes)
		return tree, true, err
	}
}

func (d *Driver) poll(ctx context.Context, path string, p rtdb.Params, fn rtdb.WatchFunc) {
	next := d.etagPoller(path)
	if !p.IsZero() {
		next = d.queryPoller(path, p)
	}
	fail := func(err error) {
		if d.closed() {
			fn(nil, rtdb.ErrClosed)
			return
		}
		if ctx.Err() == nil {
			fn(nil, err)
		}
	}

	last, _, err := next(ctx)
	if err != nil {
		fail(err)
		return
	}
	if ctx.Err() != nil {
		fail(ctx.Err())
		return
	}
	fn(last, nil)
	logging.Debugf("firebase: polling /%s every %s", path, d.PollInterval)

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fail(ctx.Err())
			return
		case <-ticker.C:
		}
		tree, changed, err := next(ctx)
		if err != nil {
			fail(err)
			return
		}
		if !changed || reflect.DeepEqual(tree, last) || ctx.Err() != nil {
			continue
		}
		last = tree
		fn(tree, nil)
	}
}

// Close stops all watches. The SDK client holds no resources to release.
func (d *Driver) Close() error {
	d.cancel()
	return nil
}
