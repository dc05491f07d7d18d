package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ckpt-project/ckpt/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check repository health",
	Long: `Run diagnostics: backend availability, in-progress git operations,
stale locks, leftover daemon pidfiles, and corrupt checkpoint metadata.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		g, cfg := requireRepo()

		result, err := doctor.NewDoctor(g, cfg.Git.Binary).Check(context.Background())
		if err != nil {
			fail(err)
		}

		if jsonOutput {
			outputJSON(result)
		} else {
			printFindings(result)
		}

		if !result.Healthy {
			os.Exit(ExitError)
		}
	},
}

func printFindings(result *doctor.Result) {
	if len(result.Findings) == 0 {
		fmt.Println(color.GreenString("✓") + " repository is healthy")
		return
	}
	for _, f := range result.Findings {
		marker := color.YellowString("!")
		if f.Severity == "critical" || f.Severity == "error" {
			marker = color.RedString("✗")
		}
		fmt.Printf("%s [%s] %s\n", marker, f.Category, f.Description)
		if f.Path != "" {
			fmt.Printf("    %s\n", f.Path)
		}
	}
	if result.Healthy {
		fmt.Println(color.GreenString("✓") + " no blocking issues")
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
