// Package build invokes the external image build command. The command is an
// opaque collaborator: its stdout/stderr are inherited and its exit status is
// authoritative.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/freshen/freshen/pkg/exitcodes"
	log "github.com/freshen/freshen/pkg/log"
)

// Runner builds and publishes one image. Faked in tests.
type Runner interface {
	Build(ctx context.Context, options []string, tag, dir string) error
}

// BuildxRunner shells out to `docker buildx build`.
type BuildxRunner struct {
	// Command overrides the executable and leading arguments, mainly for
	// tests. Defaults to docker buildx build.
	Command []string
}

// Build runs the build command with the accumulated options, a push flag,
// the resolved tag, and the context directory. A non-zero exit from the
// child is fatal and its exit code is forwarded unchanged.
func (r *BuildxRunner) Build(ctx context.Context, options []string, tag, dir string) error {
	command := r.Command
	if len(command) == 0 {
		command = []string{"docker", "buildx", "build"}
	}

	args := append([]string{}, command[1:]...)
	args = append(args, options...)
	args = append(args, "--push", "--tag", tag, dir)

	log.Info("building image", "tag", tag, "dir", dir)
	log.Debug("build command", "command", command[0]+" "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return exitcodes.Wrap(exitErr.ExitCode(),
				fmt.Errorf("build of %s failed with exit code %d", tag, exitErr.ExitCode()))
		}
		return exitcodes.Wrap(exitcodes.ExitGeneralRuntimeError,
			fmt.Errorf("running build command for %s: %w", tag, err))
	}
	return nil
}
