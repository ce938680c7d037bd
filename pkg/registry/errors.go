package registry

import "errors"

// Sentinel errors related to registry interactions.
var (
	// ErrUnexpectedStatus indicates a non-auth-related HTTP failure.
	ErrUnexpectedStatus = errors.New("unexpected registry response")
	// ErrMalformedResponse indicates bad JSON or a missing expected field.
	ErrMalformedResponse = errors.New("malformed registry response")
	// ErrNoMatchingPlatform indicates a manifest list without an entry for
	// the target platform.
	ErrNoMatchingPlatform = errors.New("manifest list has no entry for target platform")
	// ErrUnsupportedChallenge indicates a WWW-Authenticate challenge that is
	// not a Bearer token challenge.
	ErrUnsupportedChallenge = errors.New("unsupported auth challenge")
)
