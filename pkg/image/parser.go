package image

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"

	log "github.com/freshen/freshen/pkg/log"
)

// Constants
const (
	// DefaultTag is the tag used when no tag is specified
	DefaultTag = "latest"
	// DefaultRegistry is the registry assumed for host-less references
	DefaultRegistry = "docker.io"
	// LegacyDefaultRegistry is the legacy default registry domain
	LegacyDefaultRegistry = "index.docker.io"
	// DefaultAPIEndpoint is the host that actually serves the v2 API for the
	// default registry
	DefaultAPIEndpoint = "registry-1.docker.io"
	// OfficialRepositoryPrefix is the namespace for official images on the
	// default registry
	OfficialRepositoryPrefix = "library"
	// MaxTagLength is the maximum length of a tag
	MaxTagLength = 128
)

// ParseReference parses an image reference string into its components and
// applies the defaulting rules for the public registry:
//
//   - no host implies the default registry
//   - default-registry hosts are rewritten to the API endpoint host that
//     serves the v2 API (registry-1.docker.io)
//   - a bare name on the default registry gets the official-images namespace
//     prefix (library/)
//   - tag resolution precedence: digest > explicit tag > "latest"
//
// Parsing is total: it either succeeds with all fields populated or fails
// with ErrEmptyReference or ErrInvalidReferenceFormat; there are no partial
// results.
func ParseReference(imageRef string) (*Reference, error) {
	if imageRef == "" {
		return nil, ErrEmptyReference
	}

	// The distribution library is the grammar authority: lowercase path
	// components with ./_/__/- as internal separators, optional host[:port],
	// tag up to 128 chars, optional algorithm:hex digest.
	parsed, err := reference.ParseAnyReference(imageRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidReferenceFormat, imageRef, err)
	}

	named, ok := parsed.(reference.Named)
	if !ok {
		// Digest-only references carry no repository to look up.
		return nil, fmt.Errorf("%w: %q: no repository name", ErrInvalidReferenceFormat, imageRef)
	}

	result := &Reference{
		Original:   imageRef,
		Registry:   reference.Domain(named),
		Repository: reference.Path(named),
	}

	if tagged, ok := parsed.(reference.Tagged); ok {
		result.Tag = tagged.Tag()
	}
	if digested, ok := parsed.(reference.Digested); ok {
		// A digest pins the manifest exactly; it overrides any tag.
		result.Digest = digested.Digest().String()
		result.Tag = ""
	}
	if result.Tag == "" && result.Digest == "" {
		result.Tag = DefaultTag
	}

	if result.Registry == DefaultRegistry || result.Registry == LegacyDefaultRegistry {
		result.Registry = DefaultAPIEndpoint
	}

	result.Account = accountSegment(result.Registry, result.Repository)

	log.Debug("parsed image reference",
		"original", imageRef,
		"registry", result.Registry,
		"repository", result.Repository,
		"tag", result.Tag,
		"digest", result.Digest)
	return result, nil
}

// accountSegment extracts the account (first path segment) from a repository
// path. Official images on the default registry have no account.
func accountSegment(registry, repository string) string {
	idx := strings.Index(repository, "/")
	if idx < 0 {
		return ""
	}
	account := repository[:idx]
	if registry == DefaultAPIEndpoint && account == OfficialRepositoryPrefix {
		return ""
	}
	return account
}

// ExpandName turns a possibly short image name from the configuration into a
// fully-qualified reference by prefixing the account/registry prefix when the
// name carries no path of its own.
func ExpandName(accountPrefix, name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return strings.TrimSuffix(accountPrefix, "/") + "/" + name
}

// ParseAccountPrefix splits the configured account/registry prefix into the
// registry API host and account name. A prefix without a registry host (no
// dot, port or "localhost" in its first segment) belongs to the default
// registry.
func ParseAccountPrefix(prefix string) (host, account string) {
	prefix = strings.TrimSuffix(prefix, "/")
	idx := strings.Index(prefix, "/")
	if idx < 0 {
		return DefaultAPIEndpoint, prefix
	}
	first := prefix[:idx]
	if !looksLikeRegistryHost(first) {
		return DefaultAPIEndpoint, prefix
	}
	if first == DefaultRegistry || first == LegacyDefaultRegistry {
		first = DefaultAPIEndpoint
	}
	return first, prefix[idx+1:]
}

func looksLikeRegistryHost(host string) bool {
	return strings.Contains(host, ".") || strings.Contains(host, ":") || host == "localhost"
}
