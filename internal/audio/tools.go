package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Toolset holds the resolved codec tool binaries. It is produced once at
// process start by DetectTools; call sites receive it as a value instead of
// consulting a mutable availability flag.
type Toolset struct {
	// FFmpegPath is the resolved path to the ffmpeg binary.
	FFmpegPath string
	// FFprobePath is the resolved path to the ffprobe binary.
	FFprobePath string
	// Version is the ffmpeg version string, when it could be parsed.
	Version string
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// DetectTools locates ffmpeg and ffprobe and verifies that ffmpeg runs.
// Empty paths default to PATH lookup. Returns ErrToolNotFound when either
// binary is missing or does not execute.
func DetectTools(ctx context.Context, ffmpegPath, ffprobePath string) (Toolset, error) {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	resolvedFFmpeg, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return Toolset{}, fmt.Errorf("%w: ffmpeg (%s)", ErrToolNotFound, ffmpegPath)
	}
	resolvedFFprobe, err := exec.LookPath(ffprobePath)
	if err != nil {
		return Toolset{}, fmt.Errorf("%w: ffprobe (%s)", ErrToolNotFound, ffprobePath)
	}

	// #nosec G204 - paths come from configuration, not request input
	cmd := exec.CommandContext(ctx, resolvedFFmpeg, "-version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return Toolset{}, fmt.Errorf("%w: ffmpeg failed to run: %v", ErrToolNotFound, err)
	}

	version := ""
	if m := versionRe.FindStringSubmatch(stdout.String()); len(m) == 2 {
		version = m[1]
	}

	return Toolset{
		FFmpegPath:  resolvedFFmpeg,
		FFprobePath: resolvedFFprobe,
		Version:     strings.TrimSpace(version),
	}, nil
}
