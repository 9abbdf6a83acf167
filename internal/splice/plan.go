package splice

// Insertion planning constants. The leading and trailing buffers are regions
// of the music timeline that insertions never touch, so speech never lands on
// the very start or very end of the track.
const (
	leadBufferSeconds  = 5.0
	trailBufferSeconds = 10.0
)

// SegmentKind discriminates plan entries.
type SegmentKind string

const (
	// SegmentMusic is a contiguous time range of the original music timeline.
	SegmentMusic SegmentKind = "music"
	// SegmentSpeech references a speech chunk by its input index.
	SegmentSpeech SegmentKind = "speech"
)

// Segment is one entry of an insertion plan: either a music time range or a
// speech chunk reference.
type Segment struct {
	Kind SegmentKind
	// Start and End bound the music range in seconds. Only set for music.
	Start float64
	End   float64
	// Index is the speech chunk position in the request. Only set for speech.
	Index int
}

// Plan is the ordered placement of music segments and speech chunks. Taken in
// order, the music segments reconstruct the entire original timeline with no
// interval skipped or duplicated: speech is inserted between contiguous music
// ranges, never over them.
type Plan struct {
	Segments []Segment
}

// MusicSegments returns the plan's music entries in order.
func (p Plan) MusicSegments() []Segment {
	var out []Segment
	for _, s := range p.Segments {
		if s.Kind == SegmentMusic {
			out = append(out, s)
		}
	}
	return out
}

// BuildPlan computes the distributed insertion plan for a music track of
// musicDuration seconds and the given ordered speech chunk durations.
//
// Insertion points are distributed evenly across the available region of the
// music timeline (the track minus the lead and trail buffers, never less than
// half the track). The first speech chunk always opens the output, then music
// and speech alternate, ending with the trailing music segment. Returns
// ErrPlanDegenerate when the track is too short to yield at least two
// distinguishable music segments.
func BuildPlan(musicDuration float64, speechDurations []float64) (Plan, error) {
	n := len(speechDurations)
	if musicDuration <= 0 || n == 0 {
		return Plan{}, ErrPlanDegenerate
	}

	available := musicDuration - leadBufferSeconds - trailBufferSeconds
	if half := musicDuration * 0.5; available < half {
		available = half
	}

	points := make([]float64, 0, n)
	if n == 1 {
		points = append(points, leadBufferSeconds)
	} else {
		for i := 0; i < n; i++ {
			points = append(points, leadBufferSeconds+float64(i)*available/float64(n))
		}
	}

	// Derive music ranges between consecutive insertion points, clamped to
	// the track. Empty ranges are omitted rather than emitted as zero-length
	// segments, but coverage of [0, musicDuration] is preserved.
	music := make([]Segment, 0, n+1)
	prev := 0.0
	for _, p := range points {
		if p > musicDuration {
			p = musicDuration
		}
		if p > prev {
			music = append(music, Segment{Kind: SegmentMusic, Start: prev, End: p})
			prev = p
		}
	}
	if musicDuration > prev {
		music = append(music, Segment{Kind: SegmentMusic, Start: prev, End: musicDuration})
	}

	if len(music) < 2 {
		return Plan{}, ErrPlanDegenerate
	}

	segments := make([]Segment, 0, n+len(music))
	for i := 0; i < n; i++ {
		segments = append(segments, Segment{Kind: SegmentSpeech, Index: i})
		if i < len(music) {
			segments = append(segments, music[i])
		}
	}
	if n < len(music) {
		segments = append(segments, music[n:]...)
	}

	return Plan{Segments: segments}, nil
}
