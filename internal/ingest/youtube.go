package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"
)

// YouTubeDownloader resolves a YouTube URL to a local audio file so a
// recording can be submitted by link instead of upload.
type YouTubeDownloader struct {
	client ytdl.Client
}

// NewYouTubeDownloader creates a downloader.
func NewYouTubeDownloader() *YouTubeDownloader {
	return &YouTubeDownloader{client: ytdl.Client{}}
}

// extension maps an audio MIME type to a file extension.
func extension(mimeType string) string {
	if strings.Contains(mimeType, "mp4") {
		return ".m4a"
	}
	if strings.Contains(mimeType, "webm") {
		return ".webm"
	}
	return ".audio"
}

// Download fetches the highest-bitrate audio-only format of the video
// into dir and returns the file path and the video title.
func (d *YouTubeDownloader) Download(ctx context.Context, videoURL, dir string) (string, string, error) {
	video, err := d.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve video: %w", err)
	}

	var formats []ytdl.Format
	for _, f := range video.Formats {
		if strings.HasPrefix(f.MimeType, "audio/") {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return "", "", fmt.Errorf("no audio formats available for %s", videoURL)
	}
	sort.Slice(formats, func(i, j int) bool {
		return formats[i].Bitrate > formats[j].Bitrate
	})
	format := formats[0]

	stream, _, err := d.client.GetStreamContext(ctx, video, &format)
	if err != nil {
		return "", "", fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", err
	}
	path := filepath.Join(dir, video.ID+extension(format.MimeType))
	out, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, stream); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("failed to download audio: %w", err)
	}
	return path, video.Title, nil
}
