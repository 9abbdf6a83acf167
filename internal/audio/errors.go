package audio

import (
	"errors"
	"fmt"
)

// Static errors for engine operations.
var (
	// ErrDecode is returned when an asset cannot be decoded. Decode failures
	// are fatal for the asset: silently dropping frames would corrupt the
	// timing invariants of the splice.
	ErrDecode = errors.New("audio: decode failed")
	// ErrNoInputs is returned when a concatenation is requested with no inputs.
	ErrNoInputs = errors.New("audio: no input files provided")
	// ErrInvalidRange is returned when a segment range is not 0 <= start < end.
	ErrInvalidRange = errors.New("audio: invalid segment range")
	// ErrNotMP3 is returned when a byte-level join encounters a file that does
	// not start with an ID3 tag or an MPEG frame sync.
	ErrNotMP3 = errors.New("audio: not an MP3 stream")
	// ErrToolNotFound is returned when ffmpeg or ffprobe cannot be located.
	ErrToolNotFound = errors.New("audio: codec tool not found")
)

// FFmpegError is an error from running ffmpeg, carrying the arguments and
// the captured stderr output for diagnosis.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
