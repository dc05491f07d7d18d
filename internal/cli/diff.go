package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <a> <b|current> [-- <git diff args>]",
	Short: "Show differences between checkpoints",
	Long: `Show the difference between the work-tree states of two checkpoints,
or between a checkpoint and the current live state (the literal
argument "current").

Arguments after -- pass straight through to git diff:

  ckpt diff pre-refactor current -- --stat -- 'src/'

Diffing against "current" captures nothing; the operation is read-only
and repeatable.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		m, _, _ := requireManager()

		out, err := m.Diff(context.Background(), args[0], args[1], args[2:])
		if err != nil {
			fail(err)
		}
		fmt.Print(out)
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
