package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"luisterlab/internal/models"
	"luisterlab/internal/pipeline"
	"luisterlab/internal/storage"
)

// Downloader resolves a remote source URL to a local media file.
type Downloader interface {
	Download(ctx context.Context, videoURL, dir string) (path string, title string, err error)
}

// RecordingHandler serves the recording API.
type RecordingHandler struct {
	recordings *storage.RecordingRepository
	sentences  *storage.SentenceRepository
	downloader Downloader
	uploadDir  string
	log        *logrus.Entry
}

// NewRecordingHandler creates a new RecordingHandler.
func NewRecordingHandler(
	recordings *storage.RecordingRepository,
	sentences *storage.SentenceRepository,
	downloader Downloader,
	uploadDir string,
	log *logrus.Entry,
) *RecordingHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RecordingHandler{
		recordings: recordings,
		sentences:  sentences,
		downloader: downloader,
		uploadDir:  uploadDir,
		log:        log,
	}
}

// Register wires the recording routes onto the echo group.
func (h *RecordingHandler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/status", h.Status)
	g.POST("/:id/resubmit", h.Resubmit)
	g.DELETE("/:id", h.Delete)
}

type createByURLRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Create accepts either a multipart upload (fields: name, file) or a JSON
// body naming a YouTube URL, stores the source file, and enqueues the
// recording in the pending stage. Processing is asynchronous; poll the
// status endpoint for progress.
func (h *RecordingHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var rec *models.Recording
	contentType := c.Request().Header.Get(echo.HeaderContentType)

	if strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		var req createByURLRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if req.URL == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
		}
		if h.downloader == nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "url submission is not enabled"})
		}

		path, title, err := h.downloader.Download(ctx, req.URL, h.uploadDir)
		if err != nil {
			h.log.WithError(err).Warn("source download failed")
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to download source: " + err.Error()})
		}
		name := req.Name
		if name == "" {
			name = title
		}
		rec = &models.Recording{Name: name, SourcePath: path}
	} else {
		file, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
		}
		name := c.FormValue("name")
		if name == "" {
			name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
		}

		path := filepath.Join(h.uploadDir, uuid.New().String()+filepath.Ext(file.Filename))
		if err := saveUpload(file, path); err != nil {
			h.log.WithError(err).Error("failed to store upload")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store upload"})
		}
		rec = &models.Recording{Name: name, SourcePath: path}
	}

	if err := h.recordings.Create(ctx, rec); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	h.log.WithField("recording_id", rec.ID).Info("recording submitted")
	return c.JSON(http.StatusCreated, rec)
}

// List returns the most recent recordings.
func (h *RecordingHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	recs, err := h.recordings.ListRecent(ctx, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"recordings": recs})
}

// Get returns a recording with its sentences and keywords.
func (h *RecordingHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	rec, err := h.recordings.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "recording not found"})
	}

	sentences, err := h.sentences.ListByRecording(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"recording": rec,
		"progress":  pipeline.Progress(rec.Stage, rec.TotalSentences, rec.ExplainedSentences),
		"sentences": sentences,
	})
}

// Status returns the polling tuple for a recording: stage, progress
// percentage and error detail. No side effects.
func (h *RecordingHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	rec, err := h.recordings.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "recording not found"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"id":                  rec.ID,
		"stage":               rec.Stage,
		"progress":            pipeline.Progress(rec.Stage, rec.TotalSentences, rec.ExplainedSentences),
		"total_sentences":     rec.TotalSentences,
		"explained_sentences": rec.ExplainedSentences,
		"error_detail":        rec.ErrorDetail,
	})
}

// Resubmit puts a failed recording back in the queue. Processing resumes
// from the committed chunks and sentences rather than from scratch.
func (h *RecordingHandler) Resubmit(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	rec, err := h.recordings.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "recording not found"})
	}

	if err := h.recordings.Resubmit(ctx, id); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	h.log.WithField("recording_id", id).Info("recording resubmitted")
	return c.JSON(http.StatusAccepted, map[string]string{"id": id, "stage": models.StagePending})
}

// Delete removes a recording and all of its derived data.
func (h *RecordingHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	rec, err := h.recordings.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "recording not found"})
	}

	if err := h.recordings.Delete(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// Source and audio artifacts are removed best-effort.
	os.Remove(rec.SourcePath)
	if rec.AudioPath != nil {
		os.Remove(*rec.AudioPath)
	}

	return c.NoContent(http.StatusNoContent)
}

func saveUpload(file *multipart.FileHeader, dst string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}
