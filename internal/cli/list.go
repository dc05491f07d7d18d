package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ckpt-project/ckpt/pkg/model"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints",
	Long:  `List every checkpoint in the repository, oldest first. Read-only.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		m, _, _ := requireManager()

		cps, err := m.List(context.Background())
		if err != nil {
			fail(err)
		}

		if jsonOutput {
			outputJSON(cps)
			return
		}

		if len(cps) == 0 {
			fmt.Println("no checkpoints")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		header := color.New(color.Bold)
		fmt.Fprintf(w, "%s\t%s\t%s\n", header.Sprint("ID"), header.Sprint("CREATED"), header.Sprint("HEAD"))
		for _, cp := range cps {
			head := shortOID(cp.Head)
			if cp.Head == model.NullHead {
				head = color.YellowString("unborn")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", cp.ID, cp.CreatedAt.Local().Format(time.RFC3339), head)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
