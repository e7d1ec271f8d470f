package firebase

import (
	"context"

	fbdb "firebase.google.com/go/v4/db"

	"github.com/GaoLiaoLiao/delern/rtdb"
)

type getter interface {
	Get(ctx context.Context, v interface{}) error
	GetWithETag(ctx context.Context, v interface{}) (string, error)
	GetIfChanged(ctx context.Context, etag string, v interface{}) (bool, string, error)
}

type setter interface {
	Set(ctx context.Context, v interface{}) error
	Update(ctx context.Context, v map[string]interface{}) error
	Delete(ctx context.Context) error
}

type fbRef interface {
	getter
	setter
	Query(p rtdb.Params) fbQuery
}

type fbQuery interface {
	GetOrdered(ctx context.Context) ([]fbQueryNode, error)
}

type fbQueryNode interface {
	Key() string
	Unmarshal(v interface{}) error
}

type fbClient interface {
	NewRef(path string) fbRef
}

type clientWrapper struct {
	*fbdb.Client
}

var _ fbClient = &clientWrapper{}

func (c *clientWrapper) NewRef(path string) fbRef {
	return &refWrapper{Ref: c.Client.NewRef(path)}
}

type refWrapper struct {
	*fbdb.Ref
}

var _ fbRef = &refWrapper{}

// Query builds the server-side query for p.
func (r *refWrapper) Query(p rtdb.Params) fbQuery {
	var q *fbdb.Query
	switch p.OrderBy {
	case rtdb.ByValue:
		q = r.Ref.OrderByValue()
	case rtdb.ByChild:
		q = r.Ref.OrderByChild(p.Child)
	default:
		q = r.Ref.OrderByKey()
	}
	if p.HasStart {
		q = q.StartAt(p.Start)
	}
	if p.HasEnd {
		q = q.EndAt(p.End)
	}
	if p.LimitFirst > 0 {
		q = q.LimitToFirst(p.LimitFirst)
	}
	if p.LimitLast > 0 {
		q = q.LimitToLast(p.LimitLast)
	}
	return &queryWrapper{Query: q}
}

type queryWrapper struct {
	*fbdb.Query
}

func (q *queryWrapper) GetOrdered(ctx context.Context) ([]fbQueryNode, error) {
	nodes, err := q.Query.GetOrdered(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]fbQueryNode, len(nodes))
	for i, n := range nodes {
		result[i] = n
	}
	return result, nil
}
