package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Segment is one time-aligned fragment returned by the service. Times are
// relative to the start of the submitted chunk.
type Segment struct {
	StartSec float64
	EndSec   float64
	Text     string
}

// TranscriptionError wraps service-side transcription failures.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return "transcription failed: " + e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// Client calls a Whisper-compatible speech-to-text endpoint.
type Client struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	http     *http.Client
}

// NewClient creates a transcription client.
func NewClient(baseURL, apiKey, model, language string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		language: language,
		http:     &http.Client{Timeout: timeout},
	}
}

type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe submits one encoded chunk file and returns its segments in
// service order, with chunk-relative timestamps.
func (c *Client) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	defer f.Close()

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.model); err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return nil, &TranscriptionError{Err: err}
		}
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &TranscriptionError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/audio/transcriptions", strings.NewReader(body.String()))
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TranscriptionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &TranscriptionError{Err: fmt.Errorf("http %d: %s", resp.StatusCode, string(b))}
	}

	var vr verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, &TranscriptionError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	segments := make([]Segment, 0, len(vr.Segments))
	for _, s := range vr.Segments {
		segments = append(segments, Segment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     strings.TrimSpace(s.Text),
		})
	}
	return segments, nil
}
