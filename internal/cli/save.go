package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ckpt-project/ckpt/internal/checkpoint"
	"github.com/ckpt-project/ckpt/pkg/model"
)

var (
	saveID    string
	saveForce bool
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Capture a checkpoint of the current work tree",
	Long: `Capture HEAD, the staging area, and the full work tree (including
untracked files) as a checkpoint. The repository's index and HEAD are
left exactly as they were.

If a merge, rebase, or cherry-pick is in progress, nothing is captured
and the command exits with code 3.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		m, _, _ := requireManager()

		res, err := m.Save(context.Background(), checkpoint.SaveOptions{
			ID:    model.CheckpointID(saveID),
			Force: saveForce,
		})
		if err != nil {
			fail(err)
		}

		if res.Skipped {
			if jsonOutput {
				outputJSON(res)
			} else {
				fmtErr("save skipped: %s", res.BusyState)
			}
			os.Exit(ExitSkipped)
		}

		if jsonOutput {
			outputJSON(res)
		} else {
			fmt.Println(res.ID)
		}
	},
}

func init() {
	saveCmd.Flags().StringVar(&saveID, "id", "", "checkpoint id (default: generated timestamp)")
	saveCmd.Flags().BoolVar(&saveForce, "force", false, "overwrite an existing checkpoint with the same id")
	rootCmd.AddCommand(saveCmd)
}
