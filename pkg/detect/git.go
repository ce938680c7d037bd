package detect

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/freshen/freshen/pkg/exitcodes"
)

// History answers when a build context last changed. Implemented by
// GitHistory; faked in tests.
type History interface {
	LastChange(ctx context.Context, dir string) (time.Time, error)
}

// GitHistory reads the most recent commit timestamp touching a directory
// from git history. Commit time rather than file mtime: a fresh checkout
// touches every file's timestamp without changing content.
type GitHistory struct{}

// LastChange runs `git log -1 --format=%ct -- dir`. Distinct failures get
// distinct messages: the tool not starting, a non-zero exit, and output that
// is not a unix timestamp.
func (GitHistory) LastChange(ctx context.Context, dir string) (time.Time, error) {
	cmd := exec.CommandContext(ctx, "git", "log", "-1", "--format=%ct", "--", dir)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return time.Time{}, exitcodes.New(exitcodes.ExitGitQueryError,
				"git log failed for %q: %s", dir, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return time.Time{}, exitcodes.Wrap(exitcodes.ExitGitQueryError,
			fmt.Errorf("running git: %w", err))
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return time.Time{}, exitcodes.New(exitcodes.ExitGitQueryError,
			"no git history for %q", dir)
	}
	seconds, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return time.Time{}, exitcodes.New(exitcodes.ExitGitQueryError,
			"unexpected git log output for %q: %q", dir, text)
	}
	return time.Unix(seconds, 0).UTC(), nil
}
