package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshen/freshen/pkg/config"
	"github.com/freshen/freshen/pkg/exitcodes"
	"github.com/freshen/freshen/pkg/registry"
)

type fakeRegistryAPI struct {
	images  map[string]*registry.ImageInfo
	lookups []string
}

func (f *fakeRegistryAPI) Lookup(_ context.Context, ref string) (*registry.ImageInfo, error) {
	f.lookups = append(f.lookups, ref)
	return f.images[ref], nil
}

type fakeHistory struct {
	changed time.Time
	err     error
	queried []string
}

func (f *fakeHistory) LastChange(_ context.Context, dir string) (time.Time, error) {
	f.queried = append(f.queried, dir)
	return f.changed, f.err
}

var (
	imageCreated   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	olderCommit    = imageCreated.Add(-time.Hour)
	newerCommit    = imageCreated.Add(time.Hour)
	testSpec       = config.Spec{Name: "webtop", Directory: "webtop", Base: "base:latest"}
	accountPrefix  = "ghcr.io/myorg"
	expandedTarget = "ghcr.io/myorg/webtop"
)

func newDetector(reg *fakeRegistryAPI, hist *fakeHistory) *Detector {
	return &Detector{Registry: reg, History: hist, AccountPrefix: accountPrefix}
}

func TestNeedsRebuildBaseLayerPresent(t *testing.T) {
	tests := []struct {
		name     string
		commit   time.Time
		expected bool
	}{
		{"context older than image", olderCommit, false},
		{"context equal to image", imageCreated, false},
		{"context newer than image", newerCommit, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{
				"base:latest":  {Created: imageCreated, Layers: []string{"sha256:l0", "sha256:l1"}},
				expandedTarget: {Created: imageCreated, Layers: []string{"sha256:l0", "sha256:l1", "sha256:top"}},
			}}
			hist := &fakeHistory{changed: tc.commit}
			cache := NewCache([]config.Spec{testSpec})

			needs, err := newDetector(reg, hist).NeedsRebuild(context.Background(), testSpec, cache)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, needs)
			assert.Equal(t, []string{testSpec.Directory}, hist.queried)
		})
	}
}

func TestNeedsRebuildBaseLayerAbsent(t *testing.T) {
	// Base now tops out at l2, which the target was not built from.
	reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{
		"base:latest":  {Created: imageCreated, Layers: []string{"sha256:l0", "sha256:l2"}},
		expandedTarget: {Created: imageCreated, Layers: []string{"sha256:l0", "sha256:l1", "sha256:top"}},
	}}
	hist := &fakeHistory{changed: olderCommit}
	cache := NewCache([]config.Spec{testSpec})

	needs, err := newDetector(reg, hist).NeedsRebuild(context.Background(), testSpec, cache)
	require.NoError(t, err)
	assert.True(t, needs)
	// Layer test short-circuits; git is never consulted.
	assert.Empty(t, hist.queried)
}

func TestNeedsRebuildUnaffectedByRetag(t *testing.T) {
	// Identical layers under a different tag: not stale.
	reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{
		"base:latest":  {Created: imageCreated.Add(48 * time.Hour), Layers: []string{"sha256:l0", "sha256:l1"}},
		expandedTarget: {Created: imageCreated, Layers: []string{"sha256:l0", "sha256:l1", "sha256:top"}},
	}}
	hist := &fakeHistory{changed: olderCommit}
	cache := NewCache([]config.Spec{testSpec})

	needs, err := newDetector(reg, hist).NeedsRebuild(context.Background(), testSpec, cache)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestNeedsRebuildTargetAbsent(t *testing.T) {
	reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{
		"base:latest": {Created: imageCreated, Layers: []string{"sha256:l0", "sha256:l1"}},
	}}
	hist := &fakeHistory{changed: olderCommit}
	cache := NewCache([]config.Spec{testSpec})

	needs, err := newDetector(reg, hist).NeedsRebuild(context.Background(), testSpec, cache)
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Empty(t, hist.queried)
}

func TestNeedsRebuildBaseMissing(t *testing.T) {
	reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{}}
	hist := &fakeHistory{}
	cache := NewCache([]config.Spec{testSpec})

	_, err := newDetector(reg, hist).NeedsRebuild(context.Background(), testSpec, cache)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBaseImageMissing)
	code, ok := exitcodes.IsExitCodeError(err)
	require.True(t, ok)
	assert.Equal(t, exitcodes.ExitMissingBaseImage, code)
}

func TestNeedsRebuildBaseResolutionCached(t *testing.T) {
	reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{
		"base:latest":  {Created: imageCreated, Layers: []string{"sha256:l1"}},
		expandedTarget: {Created: imageCreated, Layers: []string{"sha256:l1", "sha256:top"}},
	}}
	hist := &fakeHistory{changed: olderCommit}
	cache := NewCache([]config.Spec{testSpec})
	detector := newDetector(reg, hist)

	ctx := context.Background()
	_, err := detector.NeedsRebuild(ctx, testSpec, cache)
	require.NoError(t, err)
	_, err = detector.NeedsRebuild(ctx, testSpec, cache)
	require.NoError(t, err)

	// First run looks up base and target; second run only the target.
	assert.Equal(t, []string{"base:latest", expandedTarget, expandedTarget}, reg.lookups)
}

func TestNeedsRebuildRefreshesTrackedTarget(t *testing.T) {
	// The target image is itself the base of a later spec; its lookup must
	// refresh the cache entry without an extra registry call.
	laterSpec := config.Spec{Name: "child", Directory: "child", Base: expandedTarget}
	reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{
		"base:latest":  {Created: imageCreated, Layers: []string{"sha256:l1"}},
		expandedTarget: {Created: imageCreated, Layers: []string{"sha256:l1", "sha256:top"}},
	}}
	hist := &fakeHistory{changed: olderCommit}
	cache := NewCache([]config.Spec{testSpec, laterSpec})

	_, err := newDetector(reg, hist).NeedsRebuild(context.Background(), testSpec, cache)
	require.NoError(t, err)

	assert.True(t, cache.Resolved(expandedTarget))
	assert.Equal(t, "sha256:top", cache.TopLayer(expandedTarget))
}

func TestNeedsRebuildGitFailureIsFatal(t *testing.T) {
	reg := &fakeRegistryAPI{images: map[string]*registry.ImageInfo{
		"base:latest":  {Created: imageCreated, Layers: []string{"sha256:l1"}},
		expandedTarget: {Created: imageCreated, Layers: []string{"sha256:l1", "sha256:top"}},
	}}
	hist := &fakeHistory{err: exitcodes.New(exitcodes.ExitGitQueryError, "no git history")}
	cache := NewCache([]config.Spec{testSpec})

	_, err := newDetector(reg, hist).NeedsRebuild(context.Background(), testSpec, cache)
	require.Error(t, err)
	code, ok := exitcodes.IsExitCodeError(err)
	require.True(t, ok)
	assert.Equal(t, exitcodes.ExitGitQueryError, code)
}

func TestCache(t *testing.T) {
	specs := []config.Spec{
		{Name: "a", Base: "base:1"},
		{Name: "b", Base: "base:1"},
		{Name: "c", Base: "base:2"},
	}
	cache := NewCache(specs)

	assert.ElementsMatch(t, []string{"base:1", "base:2"}, cache.Bases())
	assert.True(t, cache.Tracks("base:1"))
	assert.False(t, cache.Tracks("base:3"))
	assert.False(t, cache.Resolved("base:1"))

	cache.SetTopLayer("base:1", "sha256:x")
	assert.True(t, cache.Resolved("base:1"))
	assert.Equal(t, "sha256:x", cache.TopLayer("base:1"))

	// Untracked references are ignored.
	cache.SetTopLayer("base:3", "sha256:y")
	assert.False(t, cache.Tracks("base:3"))
	assert.Empty(t, cache.TopLayer("base:3"))
}
