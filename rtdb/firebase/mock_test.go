package firebase

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/GaoLiaoLiao/delern/rtdb"
)

// mockClient keeps the tree in memory and counts revisions for ETags.
type mockClient struct {
	mu   sync.Mutex
	tree interface{}
	rev  int
	err  error
	// queries records the params of every query built.
	queries []rtdb.Params
}

var _ fbClient = &mockClient{}

func (c *mockClient) NewRef(path string) fbRef {
	segs, _ := rtdb.SplitPath(path)
	return &mockRef{c: c, segs: segs}
}

func (c *mockClient) write(segs []string, v interface{}) error {
	tree, err := rtdb.Normalize(v)
	if err != nil {
		return err
	}
	c.tree = rtdb.SetAt(c.tree, segs, tree)
	c.rev++
	return nil
}

func decodeInto(tree, v interface{}) error {
	data, err := json.Marshal(rtdb.Export(tree))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type mockRef struct {
	c    *mockClient
	segs []string
}

var _ fbRef = &mockRef{}

func (r *mockRef) etag() string {
	return "etag-" + strconv.Itoa(r.c.rev)
}

func (r *mockRef) Get(_ context.Context, v interface{}) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.err != nil {
		return r.c.err
	}
	return decodeInto(rtdb.Lookup(r.c.tree, r.segs), v)
}

func (r *mockRef) GetWithETag(ctx context.Context, v interface{}) (string, error) {
	if err := r.Get(ctx, v); err != nil {
		return "", err
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.etag(), nil
}

func (r *mockRef) GetIfChanged(ctx context.Context, etag string, v interface{}) (bool, string, error) {
	r.c.mu.Lock()
	current := r.etag()
	r.c.mu.Unlock()
	if current == etag {
		return false, etag, nil
	}
	tag, err := r.GetWithETag(ctx, v)
	return err == nil, tag, err
}

func (r *mockRef) Set(_ context.Context, v interface{}) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.err != nil {
		return r.c.err
	}
	return r.c.write(r.segs, v)
}

func (r *mockRef) Update(_ context.Context, v map[string]interface{}) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.err != nil {
		return r.c.err
	}
	for path, value := range v {
		segs, err := rtdb.SplitPath(path)
		if err != nil {
			return err
		}
		if err := r.c.write(append(append([]string{}, r.segs...), segs...), value); err != nil {
			return err
		}
	}
	return nil
}

func (r *mockRef) Delete(ctx context.Context) error {
	return r.Set(ctx, nil)
}

func (r *mockRef) Query(p rtdb.Params) fbQuery {
	r.c.mu.Lock()
	r.c.queries = append(r.c.queries, p)
	r.c.mu.Unlock()
	return &mockQuery{ref: r}
}

// mockQuery returns every child; filtering is left to the caller.
type mockQuery struct {
	ref *mockRef
}

func (q *mockQuery) GetOrdered(_ context.Context) ([]fbQueryNode, error) {
	c := q.ref.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	tree := rtdb.Lookup(c.tree, q.ref.segs)
	var nodes []fbQueryNode
	for _, k := range rtdb.Keys(tree) {
		data, err := json.Marshal(rtdb.Export(tree.(map[string]interface{})[k]))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, mockNode{key: k, data: data})
	}
	return nodes, nil
}

type mockNode struct {
	key  string
	data []byte
}

func (n mockNode) Key() string { return n.key }
func (n mockNode) Unmarshal(v interface{}) error {
	return json.NewDecoder(strings.NewReader(string(n.data))).Decode(v)
}
