package audio

import (
	"fmt"
	"os"
)

// id3v1TagSize is the fixed size of a trailing ID3v1 "TAG" block.
const id3v1TagSize = 128

// LooksLikeMP3 reports whether data begins with an ID3v2 tag or an MPEG
// audio frame sync, the two valid openings of an MP3 stream.
func LooksLikeMP3(data []byte) bool {
	if len(data) >= 3 && data[0] == 'I' && data[1] == 'D' && data[2] == '3' {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// ID3v2Size returns the total byte length of a leading ID3v2 tag, or 0 when
// data does not start with one. The tag size field is a 28-bit synchsafe
// integer excluding the 10-byte header; a footer adds another 10 bytes.
func ID3v2Size(data []byte) int {
	if len(data) < 10 || data[0] != 'I' || data[1] != 'D' || data[2] != '3' {
		return 0
	}
	// Synchsafe bytes must have the high bit clear.
	for _, b := range data[6:10] {
		if b&0x80 != 0 {
			return 0
		}
	}
	size := int(data[6])<<21 | int(data[7])<<14 | int(data[8])<<7 | int(data[9])
	total := size + 10
	if data[5]&0x10 != 0 {
		total += 10 // footer present
	}
	if total > len(data) {
		return 0
	}
	return total
}

// JoinMP3 appends the MP3 streams at paths into a single file at dst. All
// inputs must share the canonical format, which makes the frame sequences
// directly joinable: the leading ID3v2 tag of every file after the first, any
// leading Xing/Info header frame, and the trailing ID3v1 tag of every file
// before the last are skipped so the stream boundary is seamless. An Info
// frame carries a single file's frame count; left in place it would make the
// joined asset probe as that file's duration. Inputs that do not look like
// MP3 are rejected with ErrNotMP3.
func JoinMP3(paths []string, dst string) error {
	if len(paths) == 0 {
		return ErrNoInputs
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = out.Close() }()

	for i, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 - paths are engine-owned temp files
		if err != nil {
			return fmt.Errorf("read input %d: %w", i, err)
		}
		if !LooksLikeMP3(data) {
			return fmt.Errorf("input %d (%s): %w", i, path, ErrNotMP3)
		}

		tagLen := ID3v2Size(data)
		audio := skipInfoFrame(data[tagLen:])
		if i == 0 {
			// The first file's ID3v2 tag stays; it heads the joined stream.
			if _, err := out.Write(data[:tagLen]); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		}
		if i < len(paths)-1 {
			audio = trimID3v1(audio)
		}

		if _, err := out.Write(audio); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// Layer III bitrates in kbit/s, indexed by the frame header bitrate field.
var (
	mp3BitratesV1 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	mp3BitratesV2 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
)

// MPEG-1 Layer III sample rates; MPEG-2 halves them, MPEG-2.5 quarters them.
var mp3SampleRates = [4]int{44100, 48000, 32000, 0}

// skipInfoFrame drops a leading Xing/Info header frame when data starts with
// one. The tag sits at a fixed offset inside the first frame that depends on
// the MPEG version and channel mode. Data that cannot be parsed as a Layer
// III frame, or whose first frame carries no such tag, is returned unchanged.
func skipInfoFrame(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xFF || data[1]&0xE0 != 0xE0 {
		return data
	}

	version := data[1] >> 3 & 0x03 // 3=MPEG-1, 2=MPEG-2, 0=MPEG-2.5
	layer := data[1] >> 1 & 0x03   // 1=Layer III
	if version == 1 || layer != 1 {
		return data
	}

	bitrateIdx := data[2] >> 4
	rateIdx := data[2] >> 2 & 0x03
	padding := int(data[2] >> 1 & 0x01)
	if bitrateIdx == 0 || bitrateIdx == 15 || rateIdx == 3 {
		return data
	}

	sampleRate := mp3SampleRates[rateIdx]
	switch version {
	case 2: // MPEG-2
		sampleRate /= 2
	case 0: // MPEG-2.5
		sampleRate /= 4
	}

	var frameLen int
	if version == 3 {
		frameLen = 144000*mp3BitratesV1[bitrateIdx]/sampleRate + padding
	} else {
		frameLen = 72000*mp3BitratesV2[bitrateIdx]/sampleRate + padding
	}
	if frameLen <= 0 || frameLen > len(data) {
		return data
	}

	// Tag offset: 4-byte header plus the side info block.
	mono := data[3]>>6 == 3
	offset := 4 + 32
	if version != 3 {
		offset = 4 + 17
	}
	if mono {
		offset = 4 + 17
		if version != 3 {
			offset = 4 + 9
		}
	}
	if offset+4 > frameLen {
		return data
	}

	tag := string(data[offset : offset+4])
	if tag != "Xing" && tag != "Info" {
		return data
	}
	return data[frameLen:]
}

// trimID3v1 strips a trailing 128-byte ID3v1 tag when present.
func trimID3v1(data []byte) []byte {
	if len(data) >= id3v1TagSize {
		tail := data[len(data)-id3v1TagSize:]
		if tail[0] == 'T' && tail[1] == 'A' && tail[2] == 'G' {
			return data[:len(data)-id3v1TagSize]
		}
	}
	return data
}
