// Package doctor runs repository health checks for the checkpoint engine.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ckpt-project/ckpt/internal/checkpoint"
	"github.com/ckpt-project/ckpt/internal/gitexec"
	"github.com/ckpt-project/ckpt/internal/guard"
	"github.com/ckpt-project/ckpt/internal/lock"
	"github.com/ckpt-project/ckpt/pkg/model"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Doctor performs health checks against one repository.
type Doctor struct {
	git    *gitexec.Git
	gitBin string
}

// NewDoctor creates a doctor for an opened repository.
func NewDoctor(g *gitexec.Git, gitBin string) *Doctor {
	if gitBin == "" {
		gitBin = "git"
	}
	return &Doctor{git: g, gitBin: gitBin}
}

// Check runs all diagnostic checks.
func (d *Doctor) Check(ctx context.Context) (*Result, error) {
	result := &Result{Healthy: true}

	d.checkGitBinary(result)
	d.checkBusyState(result)
	d.checkStaleLocks(result)
	d.checkStalePidfile(result)
	d.checkCheckpointMetadata(ctx, result)

	return result, nil
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity != "info" {
		r.Healthy = false
	}
}

func (d *Doctor) checkGitBinary(result *Result) {
	if _, err := exec.LookPath(d.gitBin); err != nil {
		result.add(Finding{
			Category:    "backend",
			Description: fmt.Sprintf("git binary %q not found in PATH", d.gitBin),
			Severity:    "critical",
		})
	}
}

func (d *Doctor) checkBusyState(result *Result) {
	if state := guard.Inspect(d.git.GitDir()); state != guard.Clean {
		result.add(Finding{
			Category:    "guard",
			Description: fmt.Sprintf("repository is %s; saves will be skipped until it concludes", state),
			Severity:    "info",
			Path:        d.git.GitDir(),
		})
	}
}

func (d *Doctor) checkStaleLocks(result *Result) {
	lockDir := filepath.Join(d.git.CommonGitDir(), "ckpt", "locks")
	entries, err := os.ReadDir(lockDir)
	if err != nil {
		return // no lock dir means no locks
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(lockDir, entry.Name())
		rec, err := lock.ReadRecord(path)
		if err != nil {
			result.add(Finding{
				Category:    "lock",
				Description: "unreadable lock file",
				Severity:    "warning",
				Path:        path,
			})
			continue
		}
		if !lock.Alive(rec.PID) {
			result.add(Finding{
				Category: "lock",
				Description: fmt.Sprintf("stale lock held by dead pid %d since %s",
					rec.PID, rec.AcquiredAt.Format(time.RFC3339)),
				Severity: "warning",
				Path:     path,
			})
		}
	}
}

func (d *Doctor) checkStalePidfile(result *Result) {
	path := filepath.Join(d.git.CommonGitDir(), "ckpt", "daemon.pid")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid); err != nil {
		result.add(Finding{
			Category:    "daemon",
			Description: "unreadable daemon pidfile",
			Severity:    "warning",
			Path:        path,
		})
		return
	}
	if !lock.Alive(pid) {
		result.add(Finding{
			Category:    "daemon",
			Description: fmt.Sprintf("pidfile names dead pid %d; daemon did not exit cleanly", pid),
			Severity:    "warning",
			Path:        path,
		})
	}
}

func (d *Doctor) checkCheckpointMetadata(ctx context.Context, result *Result) {
	refs, err := d.git.ListRefs(ctx, strings.TrimSuffix(model.RefPrefix, "/"))
	if err != nil {
		result.add(Finding{
			Category:    "checkpoint",
			Description: fmt.Sprintf("cannot list checkpoint refs: %v", err),
			Severity:    "error",
		})
		return
	}
	for _, ref := range refs {
		id := model.CheckpointID(strings.TrimPrefix(ref.Name, model.RefPrefix))
		body, err := d.git.CommitBody(ctx, ref.OID)
		if err != nil {
			result.add(Finding{
				Category:    "checkpoint",
				Description: fmt.Sprintf("checkpoint %s: unreadable commit %s", id, ref.OID),
				Severity:    "error",
				Path:        ref.Name,
			})
			continue
		}
		if _, err := checkpoint.DecodeMetadata(id, body); err != nil {
			result.add(Finding{
				Category:    "checkpoint",
				Description: fmt.Sprintf("checkpoint %s: corrupt metadata: %v", id, err),
				Severity:    "error",
				Path:        ref.Name,
			})
		}
	}
}
