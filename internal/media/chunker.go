package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
)

// Span is one planned chunk boundary in absolute recording seconds,
// covering [StartSec, EndSec).
type Span struct {
	StartSec float64
	EndSec   float64
}

// PlanChunks computes chunk boundaries for a normalized audio stream so
// that each encoded chunk stays under maxBytes. The plan depends only on
// (durationSec, maxBytes, bytesPerSec), so recomputing it after a crash
// reproduces identical boundaries. A stream that already fits yields a
// single span covering the whole duration through the same code path.
func PlanChunks(durationSec float64, maxBytes int64, bytesPerSec float64) []Span {
	if durationSec <= 0 {
		return nil
	}

	estimatedBytes := durationSec * bytesPerSec
	n := int(math.Ceil(estimatedBytes / float64(maxBytes)))
	if n < 1 {
		n = 1
	}

	spans := make([]Span, 0, n)
	width := durationSec / float64(n)
	for i := 0; i < n; i++ {
		start := float64(i) * width
		end := start + width
		if i == n-1 {
			end = durationSec
		}
		spans = append(spans, Span{StartSec: start, EndSec: end})
	}
	return spans
}

// Cutter extracts chunk slices from the normalized audio with ffmpeg.
type Cutter struct {
	ffmpegPath string
}

// NewCutter creates a Cutter. An empty path resolves ffmpeg on PATH.
func NewCutter(ffmpegPath string) *Cutter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Cutter{ffmpegPath: ffmpegPath}
}

// Cut writes the [span.StartSec, span.EndSec) slice of audioPath to
// outputPath, re-encoded with the normalization parameters so the size
// estimate used by PlanChunks holds.
func (c *Cutter) Cut(ctx context.Context, audioPath, outputPath string, span Span) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-i", audioPath,
		"-ss", formatSeconds(span.StartSec),
		"-to", formatSeconds(span.EndSec),
		"-acodec", audioCodec,
		"-b:a", audioBitrate,
		"-ar", sampleRate,
		"-ac", audioChannels,
		"-y",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg chunk extraction failed: %w\noutput: %s", err, tail(output))
	}
	return nil
}

// formatSeconds renders a second offset for ffmpeg -ss/-to arguments.
func formatSeconds(sec float64) string {
	h := int(sec) / 3600
	m := (int(sec) % 3600) / 60
	s := sec - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
