package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/GaoLiaoLiao/delern/model"
	"github.com/GaoLiaoLiao/delern/rtdb"
)

type queryFlags struct {
	orderByChild string
	orderByValue bool
	startAt      string
	endAt        string
	equalTo      string
	limitFirst   int
	limitLast    int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.orderByChild, "order-by-child", "", "order children by the value at this relative path")
	flags.BoolVar(&f.orderByValue, "order-by-value", false, "order children by their value")
	flags.StringVar(&f.startAt, "start-at", "", "keep children ordered at or after this JSON value")
	flags.StringVar(&f.endAt, "end-at", "", "keep children ordered at or before this JSON value")
	flags.StringVar(&f.equalTo, "equal-to", "", "keep children ordered equal to this JSON value")
	flags.IntVar(&f.limitFirst, "limit-first", 0, "keep only the first n children")
	flags.IntVar(&f.limitLast, "limit-last", 0, "keep only the last n children")
}

// parseValue reads s as JSON, falling back to the plain string.
func parseValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// apply builds the query on ref. It reports whether any query flag was given.
func (f *queryFlags) apply(cmd *cobra.Command, ref rtdb.Ref) (rtdb.Query, bool) {
	q := ref.Query
	flags := cmd.Flags()
	switch {
	case f.orderByChild != "":
		q = q.OrderByChild(f.orderByChild)
	case f.orderByValue:
		q = q.OrderByValue()
	}
	if flags.Changed("equal-to") {
		q = q.EqualTo(parseValue(f.equalTo))
	}
	if flags.Changed("start-at") {
		q = q.StartAt(parseValue(f.startAt))
	}
	if flags.Changed("end-at") {
		q = q.EndAt(parseValue(f.endAt))
	}
	if f.limitFirst > 0 {
		q = q.LimitToFirst(f.limitFirst)
	}
	if f.limitLast > 0 {
		q = q.LimitToLast(f.limitLast)
	}
	return q, !q.Params().IsZero()
}

func newGetCmd(c *cli) *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Print the value at a location",
		Long: `Print the value at a location as JSON.

With query flags, the selected children are printed one per line, in
query order, as the child's key followed by its value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, ref, err := nodeRef(c.db, args[0])
			if err != nil {
				return err
			}
			q, isQuery := qf.apply(cmd, ref)
			out := cmd.OutOrStdout()
			if isQuery {
				parent := model.NewRoot(c.db, map[model.Kind]string{model.NodeKind: ref.Path()})
				children, err := first(cmd.Context(), func(l *model.DataAvailableListener[[]*model.Node]) {
					model.FetchChildren[model.Node](parent, q, l)
				})
				if err != nil {
					return err
				}
				return printChildren(out, children)
			}
			n, err := first(cmd.Context(), func(l *model.DataAvailableListener[*model.Node]) {
				model.FetchChild[model.Node](node.Parent(), q, l)
			})
			if err != nil {
				return err
			}
			return printJSON(out, n)
		},
	}
	qf.register(cmd)
	return cmd
}

// nodeRef returns the node at path and its location. The root node has no
// key, so its location is the database root.
func nodeRef(db *rtdb.DB, path string) (*model.Node, rtdb.Ref, error) {
	node, err := model.NodeAt(db, path)
	if err != nil {
		return nil, rtdb.Ref{}, err
	}
	ref, err := model.Reference(node)
	if errors.Cause(err) == model.ErrNotExist {
		return node, db.Root(), nil
	}
	return node, ref, err
}

// first returns the first value fetch delivers and releases the listener.
func first[T any](ctx context.Context, fetch func(*model.DataAvailableListener[T])) (T, error) {
	data := make(chan T, 1)
	errs := make(chan error, 1)
	l := model.NewListener(
		func(v T) {
			select {
			case data <- v:
			default:
			}
		},
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	)
	defer l.Cleanup()
	fetch(l)
	var zero T
	select {
	case v := <-data:
		return v, nil
	case err := <-errs:
		return zero, err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func marshal(n *model.Node) ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	return json.MarshalIndent(n, "", "  ")
}

func printJSON(w io.Writer, n *model.Node) error {
	data, err := marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func printChildren(w io.Writer, children []*model.Node) error {
	for _, child := range children {
		data, err := json.Marshal(child)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", child.Key(), data); err != nil {
			return err
		}
	}
	return nil
}
