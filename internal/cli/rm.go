package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ckpt-project/ckpt/pkg/model"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a checkpoint",
	Long: `Remove a checkpoint's ref. The underlying objects become unreachable
and are reclaimed by git's normal garbage collection.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, _, _ := requireManager()

		id := model.CheckpointID(args[0])
		if err := m.Delete(context.Background(), id); err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"deleted": id.String()})
		} else {
			fmt.Printf("Deleted checkpoint %s\n", id)
		}
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
