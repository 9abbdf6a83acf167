// Package audio implements the ffmpeg-backed splicing engine: duration
// probing, canonical-format normalization, timestamp-accurate segment
// extraction, concatenation and duration limiting. Every encoded asset that
// flows between components is first brought into one canonical format so
// that downstream joins are stream-compatible.
package audio

// Canonical output format. All normalized assets share these parameters,
// which makes a byte-level join of their MP3 frames valid.
const (
	// CanonicalSampleRate is the sample rate of every normalized asset in Hz.
	CanonicalSampleRate = 44100
	// CanonicalChannels is the channel count of every normalized asset.
	CanonicalChannels = 2
	// CanonicalBitrate is the MP3 bitrate used when re-encoding.
	CanonicalBitrate = "128k"
	// CanonicalCodec is the ffmpeg encoder used for canonical output.
	CanonicalCodec = "libmp3lame"
)

// Duration probing fallbacks.
const (
	// FallbackByteRate is the assumed constant-bitrate byte rate (bytes per
	// second) used to estimate duration when a container-level probe fails.
	// 16 KiB/s corresponds to a 128 kbit/s stream.
	FallbackByteRate = 16384.0
	// DefaultDuration is the conservative duration returned when an asset
	// cannot be opened at all, so planning never divides by zero.
	DefaultDuration = 180.0
)
