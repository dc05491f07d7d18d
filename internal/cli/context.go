package cli

import (
	"os"

	"github.com/ckpt-project/ckpt/internal/checkpoint"
	"github.com/ckpt-project/ckpt/internal/gitexec"
	"github.com/ckpt-project/ckpt/pkg/config"
	"github.com/ckpt-project/ckpt/pkg/logging"
)

// requireRepo discovers the repository containing CWD, or exits.
func requireRepo() (*gitexec.Git, *config.Config) {
	cwd, err := os.Getwd()
	if err != nil {
		fmtErr("cannot get current directory: %v", err)
		os.Exit(ExitError)
	}
	return openRepo(cwd)
}

// openRepo discovers the repository containing path, or exits. The config
// is loaded first from defaults and environment so the configured git
// binary is the one used for discovery itself.
func openRepo(path string) (*gitexec.Git, *config.Config) {
	cfg := config.FromEnv()

	g, err := gitexec.Open(path, &gitexec.ExecRunner{Binary: cfg.Git.Binary})
	if err != nil {
		fail(err)
	}

	// Reload with the real git dir so file-based settings apply.
	cfg, err = config.Load(g.CommonGitDir())
	if err != nil {
		fail(err)
	}

	logging.SetGlobal(logging.NewLogger(logging.ParseLevel(cfg.Logging.Level)))
	return g, cfg
}

// requireManager builds a checkpoint manager for the repository at CWD.
func requireManager() (*checkpoint.Manager, *gitexec.Git, *config.Config) {
	g, cfg := requireRepo()
	return checkpoint.NewManager(g, logging.WithFields(map[string]any{"component": "checkpoint"})), g, cfg
}
