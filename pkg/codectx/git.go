package codectx

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// gitTimeout bounds each git invocation so a hung hook or slow filesystem
// never stalls prompt assembly.
const gitTimeout = 5 * time.Second

// Git describes the repository at a local directory: name, branch, HEAD,
// and whether the tree has uncommitted changes. Useful when aide runs on a
// dev machine and the conversation is about whatever is being built there.
type Git struct {
	dir string
	log *zap.Logger
}

// NewGit creates a git provider rooted at dir. An empty dir means the
// process working directory.
func NewGit(dir string, log *zap.Logger) *Git {
	return &Git{dir: dir, log: log}
}

// Summary reports the repository state in one line, or "" when the
// directory is not inside a git repository or git is unavailable.
func (g *Git) Summary(ctx context.Context, _, _ string) string {
	top, err := g.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil || top == "" {
		g.log.Debug("no git repository detected", zap.String("dir", g.workdir()))
		return ""
	}

	summary := "Repository: " + filepath.Base(top)

	if branch, err := g.git(ctx, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && branch != "" {
		summary += " on branch " + branch
	}
	if head, err := g.git(ctx, "rev-parse", "--short", "HEAD"); err == nil && head != "" {
		summary += " at " + head
	}
	if status, err := g.git(ctx, "status", "--porcelain"); err == nil && status != "" {
		summary += " with uncommitted changes"
	}

	return summary
}

// git runs one git subcommand against the provider's directory and returns
// its trimmed stdout.
func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	full := append([]string{"-C", g.workdir()}, args...)
	out, err := exec.CommandContext(ctx, "git", full...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *Git) workdir() string {
	if g.dir != "" {
		return g.dir
	}
	return "."
}
