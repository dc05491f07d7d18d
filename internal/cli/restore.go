package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ckpt-project/ckpt/pkg/model"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a checkpoint",
	Long: `Rewind the work tree, staging area, and HEAD to a checkpoint.

This is destructive: files changed since the checkpoint are overwritten
and untracked files not present in it are deleted. Ignored paths are
left alone. The checkpoint itself survives and can be restored again.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, _, _ := requireManager()

		cp, err := m.Restore(context.Background(), model.CheckpointID(args[0]))
		if err != nil {
			fail(err)
		}

		if jsonOutput {
			outputJSON(cp)
		} else {
			fmt.Printf("Restored checkpoint %s (head %s)\n", cp.ID, shortOID(cp.Head))
		}
	},
}

func shortOID(oid string) string {
	if len(oid) > 12 {
		return oid[:12]
	}
	return oid
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
