// Package config provides configuration types and defaults for framecomp.
package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrTooFewSources indicates fewer than two sources were configured for a comparison.
	ErrTooFewSources = errors.New("at least 2 sources are required")

	// ErrSourceCount indicates the screenshots mode did not receive exactly one source.
	ErrSourceCount = errors.New("exactly one source is required")

	// ErrNothingToCapture indicates every frame count is zero and no custom frame was given.
	ErrNothingToCapture = errors.New("no frame to capture")

	// ErrKeepPathMissing indicates images should be kept but no path was set.
	ErrKeepPathMissing = errors.New("keep images is set but no keep path is set")

	// ErrNoDestination indicates images would be neither kept nor uploaded.
	ErrNoDestination = errors.New("images are neither kept nor uploaded")

	// ErrInvalidProvider indicates an unknown or unsupported upload provider.
	ErrInvalidProvider = errors.New("invalid upload provider")

	// ErrInvalidPictureType indicates an unknown picture type filter.
	ErrInvalidPictureType = errors.New("invalid picture type filter")

	// ErrInvalidFrameRate indicates a malformed or non-positive frame rate.
	ErrInvalidFrameRate = errors.New("invalid frame rate")

	// ErrInvalidCustomFrame indicates a custom frame referencing a missing source or frame.
	ErrInvalidCustomFrame = errors.New("invalid custom frame")

	// ErrInvalidResolution indicates a negative export resolution.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrTooManyFrames indicates more frames were requested than the source holds.
	ErrTooManyFrames = errors.New("too many frames requested")
)
