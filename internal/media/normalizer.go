package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Normalization targets chosen for speech-to-text service compatibility:
// compact mono mp3 at 16kHz.
const (
	audioCodec    = "libmp3lame"
	audioBitrate  = "128k"
	sampleRate    = "16000"
	audioChannels = "1"
)

// ExtractionError wraps failures of the normalization tool or environment.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "extraction failed: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// Normalizer converts arbitrary media files into the normalized audio
// format using ffmpeg.
type Normalizer struct {
	ffmpegPath  string
	ffprobePath string
}

// NewNormalizer creates a Normalizer. Empty paths default to resolving
// ffmpeg/ffprobe on PATH.
func NewNormalizer(ffmpegPath, ffprobePath string) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Normalizer{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Normalize extracts the audio stream of inputPath into a mono 16kHz mp3
// at outputPath. A previous partial output is overwritten. Returns an
// ExtractionError if ffmpeg is unavailable, exits non-zero, or produces
// no output file.
func (n *Normalizer) Normalize(ctx context.Context, inputPath, outputPath string) error {
	if _, err := exec.LookPath(n.ffmpegPath); err != nil {
		return &ExtractionError{Err: fmt.Errorf("ffmpeg not found: %w", err)}
	}
	if _, err := os.Stat(inputPath); err != nil {
		return &ExtractionError{Err: fmt.Errorf("input file not found: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return &ExtractionError{Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	cmd := exec.CommandContext(ctx, n.ffmpegPath,
		"-i", inputPath,
		"-vn",
		"-acodec", audioCodec,
		"-b:a", audioBitrate,
		"-ar", sampleRate,
		"-ac", audioChannels,
		"-y",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &ExtractionError{Err: fmt.Errorf("ffmpeg failed: %w\noutput: %s", err, tail(output))}
	}
	if _, err := os.Stat(outputPath); err != nil {
		return &ExtractionError{Err: fmt.Errorf("ffmpeg completed but output is missing: %w", err)}
	}
	return nil
}

// Duration returns the duration of a media file in seconds via ffprobe.
func (n *Normalizer) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, n.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, &ExtractionError{Err: fmt.Errorf("ffprobe failed: %w", err)}
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, &ExtractionError{Err: fmt.Errorf("failed to parse duration: %w", err)}
	}
	return d, nil
}

// tail keeps error output readable when ffmpeg dumps its full banner.
func tail(b []byte) string {
	s := string(b)
	if len(s) > 1024 {
		s = "…" + s[len(s)-1024:]
	}
	return strings.TrimSpace(s)
}
