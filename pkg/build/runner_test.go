package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshen/freshen/pkg/exitcodes"
)

func TestBuildArgumentOrder(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "args")
	runner := &BuildxRunner{Command: []string{
		"sh", "-c", `printf '%s\n' "$@" > ` + outFile, "buildstub",
	}}

	err := runner.Build(context.Background(),
		[]string{"--no-cache", "--build-arg", "A=1"},
		"ghcr.io/myorg/webtop:latest", "webtop")
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--no-cache", "--build-arg", "A=1",
		"--push", "--tag", "ghcr.io/myorg/webtop:latest", "webtop",
	}, strings.Fields(string(data)))
}

func TestBuildForwardsExitCode(t *testing.T) {
	runner := &BuildxRunner{Command: []string{"sh", "-c", "exit 3"}}
	err := runner.Build(context.Background(), nil, "tag", "dir")
	require.Error(t, err)
	code, ok := exitcodes.IsExitCodeError(err)
	require.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestBuildCommandNotStartable(t *testing.T) {
	runner := &BuildxRunner{Command: []string{"definitely-not-a-real-command-xyz"}}
	err := runner.Build(context.Background(), nil, "tag", "dir")
	require.Error(t, err)
	code, ok := exitcodes.IsExitCodeError(err)
	require.True(t, ok)
	assert.Equal(t, exitcodes.ExitGeneralRuntimeError, code)
}
