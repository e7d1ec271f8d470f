package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GaoLiaoLiao/delern/diff"
	"github.com/GaoLiaoLiao/delern/logging"
	"github.com/GaoLiaoLiao/delern/model"
)

func newWatchCmd(c *cli) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Print a location every time it changes",
		Long: `Print the value at a location, then a line-by-line diff against the
previous value every time it changes, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := model.NodeAt(c.db, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var prev string
			var seen bool
			fetch := func(l *model.DataAvailableListener[*model.Node]) {
				if node.Exists() {
					model.Watch(node, l)
					return
				}
				// The root node has no key.
				model.FetchChild[model.Node](node.Parent(), c.db.Root(), l)
			}
			return stream(cmd.Context(), fetch, func(n *model.Node) error {
				data, err := marshal(n)
				if err != nil {
					return err
				}
				cur := string(data) + "\n"
				if !seen || full {
					seen = true
					prev = cur
					_, err = fmt.Fprint(out, cur)
					return err
				}
				equal, d := diff.Diff(prev, cur)
				prev = cur
				if equal {
					return nil
				}
				_, err = fmt.Fprintf(out, "---\n%s", d)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print every value in full instead of a diff")
	return cmd
}

// stream passes every value fetch delivers to fn, until ctx is done, fn fails
// or the database cancels the listener.
func stream[T any](ctx context.Context, fetch func(*model.DataAvailableListener[T]), fn func(T) error) error {
	data := make(chan T)
	errs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	l := model.NewListener(
		func(v T) {
			select {
			case data <- v:
			case <-done:
			}
		},
		func(err error) {
			select {
			case errs <- err:
			case <-done:
			}
		},
	)
	defer l.Cleanup()
	fetch(l)
	for {
		select {
		case v := <-data:
			if err := fn(v); err != nil {
				return err
			}
		case err := <-errs:
			return err
		case <-ctx.Done():
			logging.Debugf("stopped: %s", ctx.Err())
			return nil
		}
	}
}
