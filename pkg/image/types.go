package image

import "fmt"

// Reference encapsulates the components of a container image reference after
// registry defaulting has been applied. Registry always names the host that
// actually serves the v2 API for the image, so a Reference can be handed
// straight to the registry client.
type Reference struct {
	Original   string // The string the reference was parsed from
	Registry   string // API host, possibly with port (e.g. registry-1.docker.io, ghcr.io)
	Account    string // First repository path segment; empty for official images
	Repository string // Full repository path within the registry
	Tag        string // Image tag; empty when a digest is present
	Digest     string // Image digest (e.g. sha256:abc...); overrides the tag
}

// String returns the normalized string representation of the reference.
// Re-parsing the result yields the same fields.
func (r *Reference) String() string {
	if r.Digest != "" {
		return fmt.Sprintf("%s/%s@%s", r.Registry, r.Repository, r.Digest)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// TagOrDigest returns the manifest selector for registry API calls: the
// digest when present, the tag otherwise.
func (r *Reference) TagOrDigest() string {
	if r.Digest != "" {
		return r.Digest
	}
	return r.Tag
}
