package splice

import "errors"

// Static errors for splice request validation and pipeline failures.
var (
	// ErrNoMusic is returned when the request carries no music asset.
	ErrNoMusic = errors.New("splice: music asset is required")
	// ErrNoSpeech is returned when the request carries no speech assets.
	ErrNoSpeech = errors.New("splice: at least one speech asset is required")
	// ErrEmptyAsset is returned when an inline asset payload is empty.
	ErrEmptyAsset = errors.New("splice: asset payload is empty")
	// ErrInvalidMode is returned when the requested mode is not recognized.
	ErrInvalidMode = errors.New("splice: invalid splice mode")
	// ErrTooManySpeechChunks is returned when the speech chunk count exceeds
	// the configured maximum.
	ErrTooManySpeechChunks = errors.New("splice: too many speech chunks")
	// ErrResource is returned when temporary file allocation fails. It is
	// surfaced as a generic internal error; the HTTP layer may retry the
	// whole request.
	ErrResource = errors.New("splice: resource allocation failed")
	// ErrPlanDegenerate signals that the music is too short for distributed
	// planning. It is recovered internally by falling back to intro placement
	// and never surfaced to the caller.
	ErrPlanDegenerate = errors.New("splice: insertion planning degenerate")
)
