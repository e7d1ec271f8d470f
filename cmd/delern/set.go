package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/GaoLiaoLiao/delern/model"
)

func newSetCmd(c *cli) *cobra.Command {
	var push bool
	cmd := &cobra.Command{
		Use:   "set <path> <json>",
		Short: "Write a JSON value to a location",
		Long: `Write a JSON value to a location, replacing what was there. A value of
null removes the location.

With --push, the value is stored under a new generated key below path,
and the key is printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value interface{}
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return errors.Wrap(err, "parse value")
			}
			node, ref, err := nodeRef(c.db, args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if push {
				parent := model.NewRoot(c.db, map[model.Kind]string{model.NodeKind: ref.Path()})
				child := &model.Node{Base: model.NewBase(parent, ""), Data: value}
				if err := model.Save(ctx, child); err != nil {
					return err
				}
				_, err := cmd.OutOrStdout().Write([]byte(child.Key() + "\n"))
				return err
			}
			if !node.Exists() {
				return ref.Set(ctx, value)
			}
			if value == nil {
				return model.Delete(ctx, node)
			}
			node.Data = value
			return model.Save(ctx, node)
		},
	}
	cmd.Flags().BoolVar(&push, "push", false, "store the value under a new generated key")
	return cmd
}
