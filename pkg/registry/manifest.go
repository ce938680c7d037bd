package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/freshen/freshen/pkg/exitcodes"
	"github.com/freshen/freshen/pkg/image"
	log "github.com/freshen/freshen/pkg/log"
)

// Accepted manifest media types, Docker and OCI flavors of both the single
// manifest and the multi-architecture list.
var manifestAccept = strings.Join([]string{
	"application/vnd.oci.image.index.v1+json",
	"application/vnd.oci.image.manifest.v1+json",
	"application/vnd.docker.distribution.manifest.list.v2+json",
	"application/vnd.docker.distribution.manifest.v2+json",
}, ", ")

type descriptor struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Platform  *struct {
		OS           string `json:"os"`
		Architecture string `json:"architecture"`
	} `json:"platform,omitempty"`
}

type manifest struct {
	MediaType string       `json:"mediaType"`
	Config    descriptor   `json:"config"`
	Manifests []descriptor `json:"manifests"`
}

// resolveManifest fetches the manifest for the reference's tag or digest and,
// when the registry answers with a manifest list, selects the target
// platform's entry and re-fetches it by digest. A 401 or 404 yields ok=false:
// the image has no published state. A manifest list without a matching
// platform is fatal.
func (c *Client) resolveManifest(ctx context.Context, ref *image.Reference, token string) (*manifest, bool, error) {
	m, ok, err := c.fetchManifest(ctx, ref, ref.TagOrDigest(), token)
	if err != nil || !ok {
		return nil, ok, err
	}

	if !m.isList() {
		return m, true, nil
	}

	digest := ""
	for _, entry := range m.Manifests {
		if entry.Platform != nil &&
			entry.Platform.OS == TargetOS &&
			entry.Platform.Architecture == TargetArchitecture {
			digest = entry.Digest
			break
		}
	}
	if digest == "" {
		return nil, false, exitcodes.New(exitcodes.ExitNoMatchingPlatform,
			"%v: %s has no %s/%s manifest", ErrNoMatchingPlatform,
			ref.String(), TargetOS, TargetArchitecture)
	}
	log.Debug("manifest list resolved", "ref", ref.String(), "digest", digest)

	resolved, ok, err := c.fetchManifest(ctx, ref, digest, token)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, exitcodes.New(exitcodes.ExitRegistryMalformedReply,
			"%v: platform manifest %s vanished from %s", ErrMalformedResponse, digest, ref.Registry)
	}
	if resolved.isList() {
		return nil, false, exitcodes.New(exitcodes.ExitRegistryMalformedReply,
			"%v: nested manifest list at %s", ErrMalformedResponse, digest)
	}
	return resolved, true, nil
}

func (m *manifest) isList() bool {
	switch m.MediaType {
	case "application/vnd.docker.distribution.manifest.list.v2+json",
		"application/vnd.oci.image.index.v1+json":
		return true
	}
	// Some registries omit the mediaType field; a manifests array is a list.
	return m.MediaType == "" && len(m.Manifests) > 0
}

func (c *Client) fetchManifest(ctx context.Context, ref *image.Reference, selector, token string) (*manifest, bool, error) {
	manifestURL := fmt.Sprintf("%s://%s/v2/%s/manifests/%s",
		c.scheme, ref.Registry, ref.Repository, selector)

	header := http.Header{}
	header.Set("Accept", manifestAccept)
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	status, _, body, err := c.get(ctx, manifestURL, header)
	if err != nil {
		return nil, false, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusNotFound:
		return nil, false, nil
	case status < 200 || status >= 300:
		return nil, false, exitcodes.New(exitcodes.ExitRegistryProtocolError,
			"%v: manifest %s returned status %d", ErrUnexpectedStatus, manifestURL, status)
	}

	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, false, exitcodes.Wrap(exitcodes.ExitRegistryMalformedReply,
			fmt.Errorf("%w: manifest %s: %v", ErrMalformedResponse, manifestURL, err))
	}
	return &m, true, nil
}

// configBlob fetches the image config blob and extracts the creation
// timestamp and the ordered uncompressed layer diff-ids.
func (c *Client) configBlob(ctx context.Context, ref *image.Reference, token, digest string) (*ImageInfo, error) {
	if digest == "" {
		return nil, exitcodes.New(exitcodes.ExitRegistryMalformedReply,
			"%v: manifest for %s has no config digest", ErrMalformedResponse, ref.String())
	}

	blobURL := fmt.Sprintf("%s://%s/v2/%s/blobs/%s",
		c.scheme, ref.Registry, ref.Repository, digest)

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	status, _, body, err := c.get(ctx, blobURL, header)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, exitcodes.New(exitcodes.ExitRegistryProtocolError,
			"%v: config blob %s returned status %d", ErrUnexpectedStatus, blobURL, status)
	}

	var blob struct {
		Created string `json:"created"`
		RootFS  struct {
			DiffIDs []string `json:"diff_ids"`
		} `json:"rootfs"`
	}
	if err := json.Unmarshal(body, &blob); err != nil {
		return nil, exitcodes.Wrap(exitcodes.ExitRegistryMalformedReply,
			fmt.Errorf("%w: config blob %s: %v", ErrMalformedResponse, blobURL, err))
	}
	if blob.Created == "" {
		return nil, exitcodes.New(exitcodes.ExitRegistryMalformedReply,
			"%v: config blob %s has no created field", ErrMalformedResponse, blobURL)
	}
	if len(blob.RootFS.DiffIDs) == 0 {
		return nil, exitcodes.New(exitcodes.ExitRegistryMalformedReply,
			"%v: config blob %s has no rootfs.diff_ids", ErrMalformedResponse, blobURL)
	}

	created, err := time.Parse(time.RFC3339Nano, blob.Created)
	if err != nil {
		return nil, exitcodes.Wrap(exitcodes.ExitRegistryMalformedReply,
			fmt.Errorf("%w: config blob %s created %q: %v", ErrMalformedResponse, blobURL, blob.Created, err))
	}

	return &ImageInfo{Created: created, Layers: blob.RootFS.DiffIDs}, nil
}
