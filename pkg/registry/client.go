// Package registry implements the minimal subset of the registry v2 HTTP API
// needed for staleness detection: the auth-token handshake, manifest
// retrieval with multi-architecture resolution, and the image config blob
// carrying the creation timestamp and layer diff-ids. It is deliberately not
// a general registry client.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/freshen/freshen/pkg/exitcodes"
	"github.com/freshen/freshen/pkg/image"
	log "github.com/freshen/freshen/pkg/log"
)

// Target platform for staleness comparison. Multi-architecture manifest
// lists are resolved to this one entry.
const (
	TargetOS           = "linux"
	TargetArchitecture = "amd64"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 4
	maxBodyBytes      = 16 * 1024 * 1024
)

// ImageInfo is the provenance of one published image: when its config blob
// says it was created, and the ordered uncompressed layer diff-ids.
type ImageInfo struct {
	Created time.Time
	Layers  []string
}

// API is the narrow surface the change detector depends on. A nil info with
// a nil error means the image is not present (or not accessible), which is
// not an error at this level.
type API interface {
	Lookup(ctx context.Context, ref string) (*ImageInfo, error)
}

// Client talks to registry v2 APIs. Auth discovery is cached per registry
// host and pull tokens per host and repository, both for the lifetime of the
// client (one run).
type Client struct {
	httpClient *http.Client
	scheme     string
	maxRetries uint64
	retryWait  time.Duration

	accountHost string
	accountName string
	password    string

	authCache  map[string]*hostAuth
	tokenCache map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithScheme overrides the URL scheme, for tests against plain-HTTP servers.
func WithScheme(scheme string) Option {
	return func(c *Client) { c.scheme = scheme }
}

// WithMaxRetries bounds the retry budget for transient failures.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryWait sets the initial backoff interval.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// New creates a Client. accountPrefix is the registry/account this process
// is authenticated against; password may be empty, in which case all token
// requests are anonymous.
func New(accountPrefix, password string, opts ...Option) *Client {
	host, account := image.ParseAccountPrefix(accountPrefix)
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		scheme:      "https",
		maxRetries:  defaultMaxRetries,
		retryWait:   500 * time.Millisecond,
		accountHost: host,
		accountName: account,
		password:    password,
		authCache:   map[string]*hostAuth{},
		tokenCache:  map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup resolves a reference to its creation timestamp and layer diff-ids.
// An image the registry does not know about (404/401 on the manifest, 403 on
// the token) yields (nil, nil). Everything else that goes wrong is fatal and
// carries a registry exit code.
func (c *Client) Lookup(ctx context.Context, rawRef string) (*ImageInfo, error) {
	ref, err := image.ParseReference(rawRef)
	if err != nil {
		return nil, exitcodes.Wrap(exitcodes.ExitInvalidImageReference, err)
	}

	auth, err := c.authConfig(ctx, ref.Registry)
	if err != nil {
		return nil, err
	}

	token, ok, err := c.pullToken(ctx, auth, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Debug("no access to repository", "ref", rawRef)
		return nil, nil
	}

	manifest, ok, err := c.resolveManifest(ctx, ref, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Debug("image not present in registry", "ref", rawRef)
		return nil, nil
	}

	info, err := c.configBlob(ctx, ref, token, manifest.Config.Digest)
	if err != nil {
		return nil, err
	}
	log.Debug("image resolved",
		"ref", rawRef, "created", info.Created, "layers", len(info.Layers))
	return info, nil
}

// get performs one HTTP GET with a bounded exponential-backoff retry budget
// for transport errors and 5xx responses. The returned response body is
// fully read and the body closed.
func (c *Client) get(ctx context.Context, url string, header http.Header) (int, http.Header, []byte, error) {
	var (
		status     int
		respHeader http.Header
		body       []byte
	)

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "registry request failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)) //nolint:errcheck
			return fmt.Errorf("%w: %s returned %s", ErrUnexpectedStatus, url, resp.Status)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return errors.Wrap(err, "reading registry response")
		}
		status = resp.StatusCode
		respHeader = resp.Header.Clone()
		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait
	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		// Strip transport noise down to the root cause before it reaches the
		// user-facing diagnostic.
		return 0, nil, nil, exitcodes.Wrap(exitcodes.ExitRegistryProtocolError,
			fmt.Errorf("registry request %s: %v", url, rootCause(err)))
	}
	return status, respHeader, body, nil
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
