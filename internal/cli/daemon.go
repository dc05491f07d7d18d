package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ckpt-project/ckpt/internal/checkpoint"
	"github.com/ckpt-project/ckpt/internal/gitexec"
	"github.com/ckpt-project/ckpt/internal/mirror"
	"github.com/ckpt-project/ckpt/pkg/errclass"
	"github.com/ckpt-project/ckpt/pkg/logging"
)

var (
	daemonTarget     string
	daemonSource     string
	daemonDebounceMS int
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Mirror the source work tree onto a target directory",
	Long: `Run the live sync daemon: watch the source work tree and continuously
replay its state (tracked, staged, and untracked files) onto the target
directory through the checkpoint engine.

The target is driven off the source repository's object store with a
private index, so the source repository is never disturbed. Stop with
SIGINT or SIGTERM.

The target may also come from the config file or CKPT_TARGET.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		source := daemonSource
		if source == "" {
			var err error
			if source, err = os.Getwd(); err != nil {
				fmtErr("cannot get current directory: %v", err)
				os.Exit(ExitError)
			}
		}

		src, cfg := openRepo(source)

		target := daemonTarget
		if target == "" {
			target = cfg.Daemon.Target
		}
		if target == "" {
			fail(errclass.ErrUsage.WithMessage("no target: pass --target, set daemon.target in config, or CKPT_TARGET"))
		}
		if abs, err := filepath.Abs(target); err == nil {
			target = abs
		}
		if err := os.MkdirAll(target, 0755); err != nil {
			fmtErr("create target: %v", err)
			os.Exit(ExitError)
		}

		debounce := time.Duration(cfg.Daemon.DebounceMS) * time.Millisecond
		if daemonDebounceMS > 0 {
			debounce = time.Duration(daemonDebounceMS) * time.Millisecond
		}

		log := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level))
		if cfg.Daemon.LogFile != "" {
			log.UseRotatingFile(cfg.Daemon.LogFile, cfg.Daemon.LogMaxSizeMB, cfg.Daemon.LogMaxBackups)
		}

		session := mirror.NewSession(src.WorkTree(), target, cfg.Daemon.IgnorePatterns)

		runner := &gitexec.ExecRunner{Binary: cfg.Git.Binary}
		tgt := mirror.OpenTarget(src, target, runner)

		srcMgr := checkpoint.NewManager(src, log.WithFields(map[string]any{"role": "source"}))
		tgtMgr := checkpoint.NewManager(tgt, log.WithFields(map[string]any{"role": "target"}))

		watcher, err := mirror.NewWatcher(src.WorkTree(), session.Ignores, log)
		if err != nil {
			fmtErr("start watcher: %v", err)
			os.Exit(ExitError)
		}
		defer watcher.Close()

		d := mirror.NewDaemon(session, debounce, mirror.SyncCycle(srcMgr, tgtMgr, session, log), log)
		d.PidFile = filepath.Join(src.CommonGitDir(), "ckpt", "daemon.pid")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go watcher.Run(ctx)
		go d.Pump(watcher.Events())

		if err := d.Run(ctx); err != nil && err != context.Canceled {
			fail(err)
		}
	},
}

func init() {
	daemonCmd.Flags().StringVar(&daemonTarget, "target", "", "directory to mirror the work tree onto")
	daemonCmd.Flags().StringVar(&daemonSource, "source", "", "source work tree (default: current directory)")
	daemonCmd.Flags().IntVar(&daemonDebounceMS, "debounce", 0, "debounce window in milliseconds (default: from config)")
	rootCmd.AddCommand(daemonCmd)
}
