package splice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/soundbed/splice-api/internal/audio"
	"github.com/soundbed/splice-api/internal/session"
)

// Random-insertion bounds: the insertion point is drawn from the window
// [0.2, 0.8] of the music timeline, leaving room for the speech so it never
// crosses the 80% mark.
const (
	randomWindowLow  = 0.2
	randomWindowHigh = 0.8
)

// speechGapSeconds is the silence inserted between speech chunks when they
// are pre-joined into a single narration asset.
const speechGapSeconds = 0.5

// Engine is the codec engine the pipeline drives. Implemented by
// audio.Engine; faked in tests.
type Engine interface {
	Probe(ctx context.Context, path string) float64
	Normalize(ctx context.Context, src, dst string) error
	ExtractSegment(ctx context.Context, src, dst string, start, end float64) error
	ConcatWithGaps(ctx context.Context, srcs []string, dst string, gapSeconds float64) error
	Concat(ctx context.Context, srcs []string, dst string) error
	Limit(ctx context.Context, src, dst string, maxSeconds float64) error
}

var _ Engine = (*audio.Engine)(nil)

// Fetcher retrieves a remote asset referenced by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BlobStore uploads a finished asset and returns its public reference.
type BlobStore interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
}

// Service runs the splice pipeline. It is stateless between invocations:
// each call operates on its own temporary directory, released on every exit
// path, so concurrent requests are independent.
type Service struct {
	engine   Engine
	fetcher  Fetcher
	store    BlobStore
	sessions session.Registry
	logger   *slog.Logger

	tempDir         string
	maxSpeechChunks int
	join            func(paths []string, dst string) error
	randFloat       func(low, high float64) float64
}

// Option configures a Service.
type Option func(*Service)

// WithTempDir sets the parent directory for per-request work directories.
func WithTempDir(dir string) Option {
	return func(s *Service) { s.tempDir = dir }
}

// WithMaxSpeechChunks caps the accepted number of speech chunks per request.
func WithMaxSpeechChunks(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSpeechChunks = n
		}
	}
}

// WithBlobStore enables final-asset upload.
func WithBlobStore(store BlobStore) Option {
	return func(s *Service) { s.store = store }
}

// WithSessionRegistry records uploaded artifacts for session cleanup.
func WithSessionRegistry(reg session.Registry) Option {
	return func(s *Service) { s.sessions = reg }
}

// WithJoinFunc overrides the byte-level sequencer. Used in tests.
func WithJoinFunc(join func(paths []string, dst string) error) Option {
	return func(s *Service) {
		if join != nil {
			s.join = join
		}
	}
}

// WithRandFloat overrides the random insertion point source. Used in tests.
func WithRandFloat(f func(low, high float64) float64) Option {
	return func(s *Service) {
		if f != nil {
			s.randFloat = f
		}
	}
}

// NewService creates a splice Service. The fetcher may be nil when remote
// references are not used.
func NewService(engine Engine, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		engine:          engine,
		fetcher:         fetcher,
		logger:          logger,
		maxSpeechChunks: 10,
		join:            audio.JoinMP3,
		randFloat: func(low, high float64) float64 {
			return low + rand.Float64()*(high-low)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Splice runs the full pipeline for one request: materialize inputs, probe
// durations, select and execute a placement strategy, optionally limit the
// output, and return the final asset. The request either completes with a
// Result or fails atomically; temporary artifacts are removed on every exit
// path.
func (s *Service) Splice(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(s.maxSpeechChunks); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(s.tempDir, "splice_*")
	if err != nil {
		return nil, fmt.Errorf("%w: create work directory: %v", ErrResource, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			s.logger.Warn("failed to remove work directory",
				slog.String("dir", workDir),
				slog.String("error", rmErr.Error()),
			)
		}
	}()

	musicPath, err := s.materialize(ctx, workDir, "music.mp3", req.Music)
	if err != nil {
		return nil, err
	}
	speechPaths := make([]string, len(req.Speech))
	for i, chunk := range req.Speech {
		speechPaths[i], err = s.materialize(ctx, workDir, fmt.Sprintf("speech_%d.mp3", i), chunk)
		if err != nil {
			return nil, err
		}
	}

	musicDuration := s.engine.Probe(ctx, musicPath)
	speechDurations := make([]float64, len(speechPaths))
	for i, p := range speechPaths {
		speechDurations[i] = s.engine.Probe(ctx, p)
	}

	mode := req.Mode
	if mode == "" {
		mode = DefaultMode(len(req.Speech))
	}

	s.logger.Info("splice started",
		slog.String("mode", string(mode)),
		slog.Float64("music_seconds", musicDuration),
		slog.Int("speech_chunks", len(speechPaths)),
	)

	var (
		outPath string
		outcome Outcome
	)
	switch mode {
	case ModeIntro:
		outPath, err = s.spliceIntro(ctx, workDir, musicPath, speechPaths)
		outcome = OutcomeIntro
	case ModeRandom:
		outPath, outcome, err = s.spliceRandom(ctx, workDir, musicPath, speechPaths, musicDuration)
	case ModeDistributed:
		outPath, outcome, err = s.spliceDistributed(ctx, workDir, musicPath, speechPaths, musicDuration, speechDurations)
	}
	if err != nil {
		return nil, err
	}

	if req.MaxDurationSeconds > 0 && s.engine.Probe(ctx, outPath) > req.MaxDurationSeconds {
		limited := filepath.Join(workDir, "limited.mp3")
		if err := s.engine.Limit(ctx, outPath, limited, req.MaxDurationSeconds); err != nil {
			return nil, err
		}
		outPath = limited
	}

	data, err := os.ReadFile(outPath) // #nosec G304 - outPath is inside the work directory
	if err != nil {
		return nil, fmt.Errorf("%w: read final asset: %v", ErrResource, err)
	}

	result := &Result{
		Data:            data,
		DurationSeconds: s.engine.Probe(ctx, outPath),
		Outcome:         outcome,
	}

	if req.PushToBlob && s.store != nil {
		url, err := s.uploadFinal(ctx, req.SessionID, data)
		if err != nil {
			return nil, err
		}
		result.BlobURL = url
	}

	s.logger.Info("splice completed",
		slog.String("outcome", string(result.Outcome)),
		slog.Float64("duration_seconds", result.DurationSeconds),
		slog.Int("bytes", len(result.Data)),
	)
	return result, nil
}

// materialize writes an asset into the work directory, fetching it first when
// it is a remote reference.
func (s *Service) materialize(ctx context.Context, workDir, name string, asset Asset) (string, error) {
	data := asset.Data
	if len(data) == 0 {
		if s.fetcher == nil {
			return "", fmt.Errorf("%s: no fetcher configured for remote asset: %w", name, ErrEmptyAsset)
		}
		fetched, err := s.fetcher.Fetch(ctx, asset.URL)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", name, err)
		}
		data = fetched
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyAsset)
	}

	path := filepath.Join(workDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrResource, name, err)
	}
	return path, nil
}

// spliceIntro concatenates all speech chunks (with a short gap between them)
// followed by the full-length music track.
func (s *Service) spliceIntro(ctx context.Context, workDir, musicPath string, speechPaths []string) (string, error) {
	combined, err := s.combineSpeech(ctx, workDir, speechPaths)
	if err != nil {
		return "", err
	}

	normMusic := filepath.Join(workDir, "music_norm.mp3")
	if err := s.engine.Normalize(ctx, musicPath, normMusic); err != nil {
		return "", err
	}

	out := filepath.Join(workDir, "final.mp3")
	if err := s.sequence(ctx, []string{combined, normMusic}, out); err != nil {
		return "", err
	}
	return out, nil
}

// spliceRandom splits the music at one random insertion point and splices the
// combined speech between the two halves. Falls back to intro placement when
// the music is not long enough to leave room for the speech.
func (s *Service) spliceRandom(ctx context.Context, workDir, musicPath string, speechPaths []string, musicDuration float64) (string, Outcome, error) {
	combined, err := s.combineSpeech(ctx, workDir, speechPaths)
	if err != nil {
		return "", "", err
	}
	speechDuration := s.engine.Probe(ctx, combined)

	low := musicDuration * randomWindowLow
	high := musicDuration*randomWindowHigh - speechDuration
	if musicDuration <= 2*speechDuration || high <= low {
		s.logger.Info("random mode preconditions not met, falling back to intro",
			slog.Float64("music_seconds", musicDuration),
			slog.Float64("speech_seconds", speechDuration),
		)
		out, err := s.introWithCombined(ctx, workDir, musicPath, combined)
		return out, OutcomeFallbackIntro, err
	}

	point := s.randFloat(low, high)
	s.logger.Info("random insertion point selected",
		slog.Float64("point_seconds", point),
	)

	before := filepath.Join(workDir, "music_before.mp3")
	after := filepath.Join(workDir, "music_after.mp3")
	if err := s.engine.ExtractSegment(ctx, musicPath, before, 0, point); err != nil {
		return "", "", err
	}
	if err := s.engine.ExtractSegment(ctx, musicPath, after, point, musicDuration); err != nil {
		return "", "", err
	}

	out := filepath.Join(workDir, "final.mp3")
	if err := s.sequence(ctx, []string{before, combined, after}, out); err != nil {
		return "", "", err
	}
	return out, OutcomeRandom, nil
}

// spliceDistributed runs the insertion planner and assembles the output in
// plan order. Falls back to intro placement when planning degenerates.
func (s *Service) spliceDistributed(ctx context.Context, workDir, musicPath string, speechPaths []string, musicDuration float64, speechDurations []float64) (string, Outcome, error) {
	plan, err := BuildPlan(musicDuration, speechDurations)
	if errors.Is(err, ErrPlanDegenerate) {
		s.logger.Info("distributed planning degenerate, falling back to intro",
			slog.Float64("music_seconds", musicDuration),
		)
		out, err := s.spliceIntro(ctx, workDir, musicPath, speechPaths)
		return out, OutcomeFallbackIntro, err
	}
	if err != nil {
		return "", "", err
	}

	normSpeech := make([]string, len(speechPaths))
	for i, p := range speechPaths {
		normSpeech[i] = filepath.Join(workDir, fmt.Sprintf("speech_norm_%d.mp3", i))
		if err := s.engine.Normalize(ctx, p, normSpeech[i]); err != nil {
			return "", "", err
		}
	}

	ordered := make([]string, 0, len(plan.Segments))
	for i, seg := range plan.Segments {
		switch seg.Kind {
		case SegmentSpeech:
			ordered = append(ordered, normSpeech[seg.Index])
		case SegmentMusic:
			segPath := filepath.Join(workDir, fmt.Sprintf("music_seg_%d.mp3", i))
			if err := s.engine.ExtractSegment(ctx, musicPath, segPath, seg.Start, seg.End); err != nil {
				// Last resort for a single segment's codec error: substitute
				// the whole normalized source instead of failing the splice.
				s.logger.Warn("segment extraction failed, substituting full source",
					slog.Float64("start", seg.Start),
					slog.Float64("end", seg.End),
					slog.String("error", err.Error()),
				)
				if err := s.engine.Normalize(ctx, musicPath, segPath); err != nil {
					return "", "", err
				}
			}
			ordered = append(ordered, segPath)
		}
	}

	out := filepath.Join(workDir, "final.mp3")
	if err := s.sequence(ctx, ordered, out); err != nil {
		return "", "", err
	}
	return out, OutcomeDistributed, nil
}

// combineSpeech pre-joins the speech chunks into one canonical narration
// asset, inserting a short silence between chunks.
func (s *Service) combineSpeech(ctx context.Context, workDir string, speechPaths []string) (string, error) {
	combined := filepath.Join(workDir, "speech_combined.mp3")
	if err := s.engine.ConcatWithGaps(ctx, speechPaths, combined, speechGapSeconds); err != nil {
		return "", err
	}
	return combined, nil
}

// introWithCombined is the fallback-intro path used when the speech has
// already been pre-joined.
func (s *Service) introWithCombined(ctx context.Context, workDir, musicPath, combinedSpeech string) (string, error) {
	normMusic := filepath.Join(workDir, "music_norm.mp3")
	if err := s.engine.Normalize(ctx, musicPath, normMusic); err != nil {
		return "", err
	}
	out := filepath.Join(workDir, "final.mp3")
	if err := s.sequence(ctx, []string{combinedSpeech, normMusic}, out); err != nil {
		return "", err
	}
	return out, nil
}

// sequence joins canonical assets into one continuous stream. The byte-level
// join is valid because every input has already been normalized; when it
// fails the decode-path concat is used instead.
func (s *Service) sequence(ctx context.Context, ordered []string, dst string) error {
	if err := s.join(ordered, dst); err != nil {
		s.logger.Warn("byte-level join failed, re-encoding",
			slog.Int("inputs", len(ordered)),
			slog.String("error", err.Error()),
		)
		return s.engine.Concat(ctx, ordered, dst)
	}
	return nil
}

// uploadFinal pushes the final asset to blob storage and records it in the
// session registry when a session is present.
func (s *Service) uploadFinal(ctx context.Context, sessionID string, data []byte) (string, error) {
	scope := sessionID
	if scope == "" {
		scope = "anonymous"
	}
	key := fmt.Sprintf("final-audio/%s/%s.mp3", scope, session.NewID("final"))

	url, err := s.store.Upload(ctx, key, bytes.NewReader(data), "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("upload final asset: %w", err)
	}

	if s.sessions != nil && sessionID != "" {
		artifact := session.Artifact{
			Key:         key,
			URL:         url,
			ContentType: "audio/mpeg",
			Size:        int64(len(data)),
		}
		if err := s.sessions.Add(ctx, sessionID, artifact); err != nil {
			s.logger.Warn("failed to register artifact for session cleanup",
				slog.String("session_id", sessionID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return url, nil
}
