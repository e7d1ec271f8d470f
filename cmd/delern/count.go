package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GaoLiaoLiao/delern/model"
)

func newCountCmd(c *cli) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "count <path>",
		Short: "Print the number of children of a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ref, err := nodeRef(c.db, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !follow {
				n, err := first(cmd.Context(), func(l *model.DataAvailableListener[int64]) {
					model.FetchCount(ref, l)
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, n)
				return err
			}
			return stream(cmd.Context(), func(l *model.DataAvailableListener[int64]) {
				model.FetchCount(ref, l)
			}, func(n int64) error {
				_, err := fmt.Fprintln(out, n)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing the count as it changes")
	return cmd
}
