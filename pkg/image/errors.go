package image

import "errors"

// Sentinel errors related to image reference parsing.
var (
	// ErrEmptyReference indicates an empty image reference string.
	ErrEmptyReference = errors.New("cannot parse empty image reference")
	// ErrInvalidReferenceFormat indicates a reference that does not match the
	// image reference grammar.
	ErrInvalidReferenceFormat = errors.New("invalid image reference format")
)
