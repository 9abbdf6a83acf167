// Package splice implements the splicing domain core: the request model, the
// insertion planner, the mode state machine and the pipeline service that
// turns one music asset and one-or-many speech assets into a single
// continuous output track.
package splice

import "fmt"

// Mode selects the placement strategy for speech within the music timeline.
type Mode string

const (
	// ModeIntro places all speech before the full-length music track.
	ModeIntro Mode = "intro"
	// ModeRandom splits the music at one uniformly-random point and splices
	// the speech between the two halves. Single-chunk placement.
	ModeRandom Mode = "random"
	// ModeDistributed spreads the speech chunks evenly across the music
	// timeline using the insertion planner.
	ModeDistributed Mode = "distributed"
)

// IsValid returns true if the mode is one of the supported strategies.
func (m Mode) IsValid() bool {
	return m == ModeIntro || m == ModeRandom || m == ModeDistributed
}

// DefaultMode returns the mode used when the caller does not specify one:
// distributed when multiple speech chunks are present, intro otherwise.
func DefaultMode(speechCount int) Mode {
	if speechCount > 1 {
		return ModeDistributed
	}
	return ModeIntro
}

// Outcome is the terminal state of the mode machine for one request. All
// states are entered once and are terminal; fallback happens at most once,
// when the chosen mode's preconditions are not met.
type Outcome string

const (
	// OutcomeIntro is speech-then-music placement reached directly.
	OutcomeIntro Outcome = "intro"
	// OutcomeRandom is a single random-point insertion.
	OutcomeRandom Outcome = "random"
	// OutcomeDistributed is a full planner-driven multi-insertion.
	OutcomeDistributed Outcome = "distributed"
	// OutcomeFallbackIntro is intro placement reached because the requested
	// mode's preconditions failed.
	OutcomeFallbackIntro Outcome = "fallback_intro"
)

// Asset is one caller-supplied audio input: either inline encoded bytes or a
// fetchable reference. Exactly one of the two fields is set.
type Asset struct {
	Data []byte
	URL  string
}

// IsZero reports whether the asset carries neither bytes nor a reference.
func (a Asset) IsZero() bool {
	return len(a.Data) == 0 && a.URL == ""
}

// Request is the caller intent for one splice operation.
type Request struct {
	// Mode is the placement strategy; empty selects DefaultMode.
	Mode Mode
	// Music is the background track.
	Music Asset
	// Speech is the ordered narration, one or more chunks.
	Speech []Asset
	// CrossfadeSeconds is advisory: accepted for API compatibility but not
	// applied to sample mixing. Sequencing is pure concatenation.
	CrossfadeSeconds float64
	// MaxDurationSeconds optionally caps the final output length.
	MaxDurationSeconds float64
	// SessionID scopes stored artifacts for later cleanup.
	SessionID string
	// PushToBlob uploads the final asset to blob storage when configured.
	PushToBlob bool
}

// Validate checks the request invariants: at least one music asset and at
// least one speech asset, no empty payloads, a recognized mode, and no more
// than maxSpeechChunks chunks.
func (r *Request) Validate(maxSpeechChunks int) error {
	if r.Music.IsZero() {
		return ErrNoMusic
	}
	if len(r.Speech) == 0 {
		return ErrNoSpeech
	}
	if r.Mode != "" && !r.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, r.Mode)
	}
	if maxSpeechChunks > 0 && len(r.Speech) > maxSpeechChunks {
		return fmt.Errorf("%w: %d > %d", ErrTooManySpeechChunks, len(r.Speech), maxSpeechChunks)
	}
	for i, s := range r.Speech {
		if s.IsZero() {
			return fmt.Errorf("speech chunk %d: %w", i, ErrEmptyAsset)
		}
	}
	return nil
}

// Result is the outcome of a successful splice: the final encoded asset, its
// achieved duration, the terminal mode outcome, and the blob URL when the
// asset was pushed to storage.
type Result struct {
	Data            []byte
	DurationSeconds float64
	Outcome         Outcome
	BlobURL         string
}
