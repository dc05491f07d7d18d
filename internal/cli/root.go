// Package cli implements the ckpt command line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ckpt-project/ckpt/pkg/errclass"
)

// Exit codes. Skipped saves get their own code so orchestrating processes
// can tell "nothing captured, repository busy" from a real failure.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitUsage   = 2
	ExitSkipped = 3
)

var (
	jsonOutput bool
	rootCmd    = &cobra.Command{
		Use:   "ckpt",
		Short: "ckpt - git-native workspace checkpoints",
		Long: `ckpt captures and restores checkpoints of a git work tree: HEAD, the
staging area, and every untracked-but-not-ignored file, without ever
touching the repository's own index or moving its branches.

Checkpoints live as metadata commits under refs/checkpoints/, invisible
to branches, tags, and normal history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr("%v", err)
		os.Exit(ExitUsage)
	}
}

var errPrefix = color.New(color.FgRed, color.Bold)

func fmtErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, errPrefix.Sprint("ckpt:")+" "+format+"\n", args...)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if errors.Is(err, errclass.ErrUsage) || errors.Is(err, errclass.ErrIDInvalid) {
		return ExitUsage
	}
	return ExitError
}

// fail prints err and exits with its mapped code.
func fail(err error) {
	fmtErr("%v", err)
	os.Exit(exitCode(err))
}

// outputJSON prints v as indented JSON when --json is set.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
