// Package detect decides whether a configured image is stale with respect to
// its base image or its build context. The base comparison is by layer
// identity: a base may be re-tagged without content change, but a changed
// layer list is an unambiguous content signal.
package detect

import (
	"context"
	"fmt"

	"github.com/freshen/freshen/pkg/config"
	"github.com/freshen/freshen/pkg/exitcodes"
	"github.com/freshen/freshen/pkg/image"
	log "github.com/freshen/freshen/pkg/log"
	"github.com/freshen/freshen/pkg/registry"
)

// ErrBaseImageMissing is returned when a base image cannot be resolved in
// its registry at all; staleness is undecidable without it.
var ErrBaseImageMissing = fmt.Errorf("base image not found in registry")

// Detector implements the staleness test.
type Detector struct {
	Registry registry.API
	History  History
	// AccountPrefix expands short image names from the configuration into
	// fully-qualified references.
	AccountPrefix string
}

// NeedsRebuild reports whether spec must be rebuilt, mutating cache as a
// side effect: the base's top layer is resolved lazily, and a target that is
// itself a tracked base refreshes its own cache entry from the same lookup.
func (d *Detector) NeedsRebuild(ctx context.Context, spec config.Spec, cache *Cache) (bool, error) {
	if !cache.Resolved(spec.Base) {
		info, err := d.Registry.Lookup(ctx, spec.Base)
		if err != nil {
			return false, err
		}
		if info == nil || len(info.Layers) == 0 {
			return false, exitcodes.Wrap(exitcodes.ExitMissingBaseImage,
				fmt.Errorf("%w: %s", ErrBaseImageMissing, spec.Base))
		}
		cache.SetTopLayer(spec.Base, info.Layers[len(info.Layers)-1])
		log.Debug("base image resolved",
			"base", spec.Base, "top_layer", info.Layers[len(info.Layers)-1])
	}

	fullName := image.ExpandName(d.AccountPrefix, spec.Name)
	target, err := d.Registry.Lookup(ctx, fullName)
	if err != nil {
		return false, err
	}

	// The target may serve as another image's base; refresh its entry from
	// this lookup so no extra registry call is needed.
	if target != nil && len(target.Layers) > 0 && cache.Tracks(fullName) {
		cache.SetTopLayer(fullName, target.Layers[len(target.Layers)-1])
	}

	if target == nil || len(target.Layers) == 0 {
		// Never built before; nothing to compare against.
		log.Info("image has no published state, rebuild required", "image", spec.Name)
		return true, nil
	}

	baseLayer := cache.TopLayer(spec.Base)
	if !containsLayer(target.Layers, baseLayer) {
		log.Info("base image changed, rebuild required",
			"image", spec.Name, "base", spec.Base)
		return true, nil
	}

	changed, err := d.History.LastChange(ctx, spec.Directory)
	if err != nil {
		return false, err
	}
	if changed.After(target.Created) {
		log.Info("build context newer than image, rebuild required",
			"image", spec.Name, "context_changed", changed, "image_created", target.Created)
		return true, nil
	}

	log.Debug("image up to date", "image", spec.Name)
	return false, nil
}

func containsLayer(layers []string, layer string) bool {
	for _, l := range layers {
		if l == layer {
			return true
		}
	}
	return false
}
