package config

import "errors"

// Sentinel errors related to image list loading.
var (
	// ErrNoImages indicates a configuration that yields zero image records.
	ErrNoImages = errors.New("configuration contains no images")
	// ErrDuplicateName indicates an image name used by more than one record.
	ErrDuplicateName = errors.New("duplicate image name")
	// ErrMissingDirectory indicates a build context directory that does not exist.
	ErrMissingDirectory = errors.New("build context directory does not exist")
	// ErrMissingBase indicates a record with neither an explicit base nor a
	// Dockerfile FROM instruction to derive one from.
	ErrMissingBase = errors.New("no base image given and none found in Dockerfile")
	// ErrTooManyFields indicates a record with more than four fields.
	ErrTooManyFields = errors.New("too many fields")
)
