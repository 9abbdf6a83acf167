package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Engine runs all codec operations through the ffmpeg CLI. It is stateless:
// concurrent calls are independent processes with no shared mutable state.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger used for degraded-probe warnings.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine bound to the given toolset. Empty paths default
// to "ffmpeg" and "ffprobe" found via PATH.
func NewEngine(tools Toolset, opts ...EngineOption) *Engine {
	e := &Engine{
		ffmpegPath:  tools.FFmpegPath,
		ffprobePath: tools.FFprobePath,
		logger:      slog.Default(),
	}
	if e.ffmpegPath == "" {
		e.ffmpegPath = "ffmpeg"
	}
	if e.ffprobePath == "" {
		e.ffprobePath = "ffprobe"
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Probe returns the play duration of an encoded asset in seconds. It never
// fails: when the container-level probe does not yield a duration it falls
// back to a byte-size estimate at an assumed 128 kbit/s, and when the file
// cannot be read at all it returns DefaultDuration.
func (e *Engine) Probe(ctx context.Context, path string) float64 {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err == nil {
		if d, perr := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64); perr == nil && d > 0 {
			return d
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		e.logger.Warn("duration probe failed, using default",
			slog.String("path", filepath.Base(path)),
			slog.Float64("default_seconds", DefaultDuration),
		)
		return DefaultDuration
	}

	estimated := float64(info.Size()) / FallbackByteRate
	e.logger.Warn("duration probe degraded to byte-size estimate",
		slog.String("path", filepath.Base(path)),
		slog.Int64("bytes", info.Size()),
		slog.Float64("estimated_seconds", estimated),
	)
	return estimated
}

// Normalize decodes src completely and re-encodes it into the canonical
// format (44.1 kHz stereo 128 kbit/s MP3) at dst. Resampler and encoder
// flushing is handled by ffmpeg's end-of-stream processing. A decode failure
// is fatal for the asset and reported as ErrDecode.
func (e *Engine) Normalize(ctx context.Context, src, dst string) error {
	args := append([]string{
		"-y",
		"-i", src,
		"-vn",
	}, canonicalEncodeArgs(dst)...)

	if err := e.runFFmpeg(ctx, args); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("normalize %s: %w: %s", filepath.Base(src), ErrDecode, stderrTail(err))
	}
	return nil
}

// ExtractSegment re-encodes only the [start, end) time range of src into a
// standalone canonical asset at dst. The seek is placed after the input so
// ffmpeg decodes forward from the preceding keyframe and discards frames
// before start, keeping the cut frame-accurate.
func (e *Engine) ExtractSegment(ctx context.Context, src, dst string, start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: [%.3f, %.3f)", ErrInvalidRange, start, end)
	}

	args := append([]string{
		"-y",
		"-i", src,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-vn",
	}, canonicalEncodeArgs(dst)...)

	if err := e.runFFmpeg(ctx, args); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("extract [%.3f, %.3f) from %s: %w: %s",
			start, end, filepath.Base(src), ErrDecode, stderrTail(err))
	}
	return nil
}

// ConcatWithGaps decodes every input, optionally inserts gapSeconds of
// silence between consecutive inputs, and re-encodes the result into one
// canonical asset. Used to pre-join speech chunks before intro placement.
func (e *Engine) ConcatWithGaps(ctx context.Context, srcs []string, dst string, gapSeconds float64) error {
	if len(srcs) == 0 {
		return ErrNoInputs
	}
	if len(srcs) == 1 && gapSeconds <= 0 {
		return e.Normalize(ctx, srcs[0], dst)
	}

	args := []string{"-y"}
	for _, src := range srcs {
		args = append(args, "-i", src)
	}

	var filter strings.Builder
	segments := 0
	for i := range srcs {
		if i > 0 && gapSeconds > 0 {
			fmt.Fprintf(&filter, "aevalsrc=0:duration=%s:sample_rate=%d:channel_layout=stereo[gap%d];",
				formatSeconds(gapSeconds), CanonicalSampleRate, i)
		}
	}
	for i := range srcs {
		if i > 0 && gapSeconds > 0 {
			fmt.Fprintf(&filter, "[gap%d]", i)
			segments++
		}
		fmt.Fprintf(&filter, "[%d:a]", i)
		segments++
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[out]", segments)

	args = append(args, "-filter_complex", filter.String(), "-map", "[out]")
	args = append(args, canonicalEncodeArgs(dst)...)

	if err := e.runFFmpeg(ctx, args); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("concat %d inputs: %w: %s", len(srcs), ErrDecode, stderrTail(err))
	}
	return nil
}

// Concat joins the inputs with the concat demuxer, re-encoding to the
// canonical format. This is the decode-path sequencer used when a byte-level
// join is not applicable.
func (e *Engine) Concat(ctx context.Context, srcs []string, dst string) error {
	if len(srcs) == 0 {
		return ErrNoInputs
	}

	listFile, err := writeConcatList(srcs)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	args := append([]string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
	}, canonicalEncodeArgs(dst)...)

	if err := e.runFFmpeg(ctx, args); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("concat %d inputs: %w: %s", len(srcs), ErrDecode, stderrTail(err))
	}
	return nil
}

// Limit truncates src to at most maxSeconds by re-encoding the retained
// prefix. Callers are expected to skip the call when the asset already fits.
func (e *Engine) Limit(ctx context.Context, src, dst string, maxSeconds float64) error {
	if maxSeconds <= 0 {
		return fmt.Errorf("%w: max %.3f", ErrInvalidRange, maxSeconds)
	}

	args := append([]string{
		"-y",
		"-i", src,
		"-t", formatSeconds(maxSeconds),
		"-vn",
	}, canonicalEncodeArgs(dst)...)

	if err := e.runFFmpeg(ctx, args); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("limit %s to %.3fs: %w: %s",
			filepath.Base(src), maxSeconds, ErrDecode, stderrTail(err))
	}
	return nil
}

// canonicalEncodeArgs returns the shared encode tail for canonical output.
/// The Xing/Info header frame is suppressed: it carries a per-file frame count
// that would survive byte-level joining and make the joined asset probe as
// the first segment's duration. CBR output probes correctly without it.
func canonicalEncodeArgs(dst string) []string {
	return []string{
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-ac", strconv.Itoa(CanonicalChannels),
		"-codec:a", CanonicalCodec,
		"-b:a", CanonicalBitrate,
		"-write_xing", "0",
		dst,
	}
}

// writeConcatList writes a concat demuxer file list and returns its path.
func writeConcatList(srcs []string) (string, error) {
	f, err := os.CreateTemp("", "splice-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, src := range srcs {
		abs, err := filepath.Abs(src)
		if err != nil {
			abs = src
		}
		escaped := strings.ReplaceAll(abs, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	return f.Name(), nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *Engine) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// stderrTail extracts the last non-empty stderr line from an FFmpegError,
// which is usually the actionable diagnostic.
func stderrTail(err error) string {
	ffErr, ok := err.(*FFmpegError)
	if !ok {
		return err.Error()
	}
	lines := strings.Split(strings.TrimSpace(ffErr.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ffErr.Err.Error()
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
