// Package orchestrate sequences the rebuild run: it resolves which images
// must build, invokes the build command for each, and keeps the base-image
// layer cache consistent across the run. Images are evaluated and built
// strictly in configuration order; a later image may depend on a digest
// refreshed by an earlier image's rebuild in the same run.
package orchestrate

import (
	"context"
	"fmt"

	"github.com/freshen/freshen/pkg/build"
	"github.com/freshen/freshen/pkg/config"
	"github.com/freshen/freshen/pkg/detect"
	"github.com/freshen/freshen/pkg/exitcodes"
	"github.com/freshen/freshen/pkg/image"
	log "github.com/freshen/freshen/pkg/log"
	"github.com/freshen/freshen/pkg/registry"
)

// Orchestrator drives one rebuild run.
type Orchestrator struct {
	Detector      *detect.Detector
	Runner        build.Runner
	Registry      registry.API
	AccountPrefix string
	// DryRun reports build decisions without invoking the build command.
	DryRun bool
}

// Run evaluates every spec in order and builds the stale or forced ones.
//
// With forceAll, every image builds unless its name or base is listed in
// forced (the exclusion list); an excluded image still builds when it is
// independently detected as stale, so exclusions suppress only the forced
// trigger. Without forceAll, forced lists names or bases to build
// unconditionally, in addition to anything detected as stale.
func (o *Orchestrator) Run(ctx context.Context, specs []config.Spec, forced []string, forceAll bool) error {
	cache := detect.NewCache(specs)

	if err := validateForced(specs, forced, cache); err != nil {
		return err
	}
	forcedSet := make(map[string]bool, len(forced))
	for _, name := range forced {
		forcedSet[name] = true
	}

	built := 0
	for _, spec := range specs {
		forcedHit := forcedSet[spec.Name] || forcedSet[spec.Base]
		selected := forceAll != forcedHit
		if !selected {
			needs, err := o.Detector.NeedsRebuild(ctx, spec, cache)
			if err != nil {
				return err
			}
			selected = needs
		}
		if !selected {
			log.Info("image is up to date", "image", spec.Name)
			continue
		}

		tag := image.ExpandName(o.AccountPrefix, spec.Name)
		if o.DryRun {
			log.Info("would build image", "image", spec.Name, "tag", tag)
			continue
		}

		if err := o.Runner.Build(ctx, spec.Options, tag, spec.Directory); err != nil {
			return err
		}
		built++

		if err := o.refreshBaseEntry(ctx, tag, cache); err != nil {
			return err
		}
	}

	log.Info("run complete", "images", len(specs), "built", built)
	return nil
}

// refreshBaseEntry updates the cache after a successful build of an image
// that other targets use as their base, so later images in the same run
// compare against the new layers.
func (o *Orchestrator) refreshBaseEntry(ctx context.Context, tag string, cache *detect.Cache) error {
	if !cache.Tracks(tag) {
		return nil
	}
	info, err := o.Registry.Lookup(ctx, tag)
	if err != nil {
		return err
	}
	if info == nil || len(info.Layers) == 0 {
		return exitcodes.New(exitcodes.ExitRegistryProtocolError,
			"image %s not visible in registry after push", tag)
	}
	cache.SetTopLayer(tag, info.Layers[len(info.Layers)-1])
	log.Debug("base entry refreshed after build",
		"image", tag, "top_layer", info.Layers[len(info.Layers)-1])
	return nil
}

// validateForced fails fast, before any build starts, when a forced name
// matches neither a configured image nor a known base reference.
func validateForced(specs []config.Spec, forced []string, cache *detect.Cache) error {
	names := make(map[string]bool, len(specs))
	for _, spec := range specs {
		names[spec.Name] = true
	}
	for _, name := range forced {
		if !names[name] && !cache.Tracks(name) {
			return exitcodes.Wrap(exitcodes.ExitUnmatchedForcedArgument,
				fmt.Errorf("%q is neither a configured image nor a base image", name))
		}
	}
	return nil
}
