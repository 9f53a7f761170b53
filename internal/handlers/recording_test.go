package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"luisterlab/internal/models"
	"luisterlab/internal/storage"
)

type fakeDownloader struct {
	path  string
	title string
	err   error
}

func (f *fakeDownloader) Download(ctx context.Context, videoURL, dir string) (string, string, error) {
	return f.path, f.title, f.err
}

func newTestHandler(t *testing.T) (*RecordingHandler, *storage.RecordingRepository, *storage.SentenceRepository) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	recordings := storage.NewRecordingRepository(db)
	sentences := storage.NewSentenceRepository(db)
	h := NewRecordingHandler(recordings, sentences,
		&fakeDownloader{path: filepath.Join(dir, "video.mp4"), title: "gedownload"},
		filepath.Join(dir, "uploads"), nil)
	return h, recordings, sentences
}

func multipartBody(t *testing.T, name, filename string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if name != "" {
		mw.WriteField("name", name)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("fake media bytes"))
	mw.Close()
	return body, mw.FormDataContentType()
}

func TestCreate_Upload(t *testing.T) {
	h, recordings, _ := newTestHandler(t)
	e := echo.New()

	body, contentType := multipartBody(t, "les 1", "les1.mp4")
	req := httptest.NewRequest(http.MethodPost, "/api/recordings", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	resp := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, resp)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", resp.Code, resp.Body.String())
	}

	var rec models.Recording
	if err := json.Unmarshal(resp.Body.Bytes(), &rec); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.Name != "les 1" || rec.Stage != models.StagePending {
		t.Errorf("created recording = %+v", rec)
	}

	stored, err := recordings.GetByID(context.Background(), rec.ID)
	if err != nil || stored == nil {
		t.Fatalf("recording not persisted: %v", err)
	}
}

func TestCreate_UploadNameDefaultsToFilename(t *testing.T) {
	h, _, _ := newTestHandler(t)
	e := echo.New()

	body, contentType := multipartBody(t, "", "aflevering_12.mp4")
	req := httptest.NewRequest(http.MethodPost, "/api/recordings", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	resp := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, resp)); err != nil {
		t.Fatal(err)
	}
	var rec models.Recording
	json.Unmarshal(resp.Body.Bytes(), &rec)
	if rec.Name != "aflevering_12" {
		t.Errorf("name = %q, want the filename stem", rec.Name)
	}
}

func TestCreate_ByURL(t *testing.T) {
	h, _, _ := newTestHandler(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/recordings",
		bytes.NewReader([]byte(`{"url": "https://youtube.com/watch?v=abc"}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	resp := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, resp)); err != nil {
		t.Fatal(err)
	}
	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}

	var rec models.Recording
	json.Unmarshal(resp.Body.Bytes(), &rec)
	if rec.Name != "gedownload" {
		t.Errorf("name = %q, want the downloaded title", rec.Name)
	}
}

func TestCreate_ByURLMissingURL(t *testing.T) {
	h, _, _ := newTestHandler(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/recordings",
		bytes.NewReader([]byte(`{"name": "zonder url"}`)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	resp := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, resp)); err != nil {
		t.Fatal(err)
	}
	if resp.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.Code)
	}
}

func TestStatus(t *testing.T) {
	h, recordings, _ := newTestHandler(t)
	e := echo.New()
	ctx := context.Background()

	rec := &models.Recording{Name: "les", SourcePath: "/tmp/les.mp4"}
	if err := recordings.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	c := e.NewContext(req, resp)
	c.SetParamNames("id")
	c.SetParamValues(rec.ID)

	if err := h.Status(c); err != nil {
		t.Fatal(err)
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}

	var got map[string]any
	json.Unmarshal(resp.Body.Bytes(), &got)
	if got["stage"] != models.StagePending {
		t.Errorf("stage = %v", got["stage"])
	}
	if got["progress"] != float64(0) {
		t.Errorf("progress = %v, want 0", got["progress"])
	}
}

func TestStatus_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	c := e.NewContext(req, resp)
	c.SetParamNames("id")
	c.SetParamValues("no-such-id")

	if err := h.Status(c); err != nil {
		t.Fatal(err)
	}
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Code)
	}
}

func TestResubmit_OnlyFromError(t *testing.T) {
	h, recordings, _ := newTestHandler(t)
	e := echo.New()
	ctx := context.Background()

	rec := &models.Recording{Name: "les", SourcePath: "/tmp/les.mp4"}
	if err := recordings.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		resp := httptest.NewRecorder()
		c := e.NewContext(req, resp)
		c.SetParamNames("id")
		c.SetParamValues(rec.ID)
		if err := h.Resubmit(c); err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := call(); resp.Code != http.StatusConflict {
		t.Errorf("resubmit of pending recording: status = %d, want 409", resp.Code)
	}

	if err := recordings.Fail(ctx, rec.ID, "explaining: quota exceeded"); err != nil {
		t.Fatal(err)
	}
	if resp := call(); resp.Code != http.StatusAccepted {
		t.Errorf("resubmit of failed recording: status = %d, want 202", resp.Code)
	}

	got, _ := recordings.GetByID(ctx, rec.ID)
	if got.Stage != models.StagePending {
		t.Errorf("stage = %s, want pending", got.Stage)
	}
}

func TestDelete(t *testing.T) {
	h, recordings, sentences := newTestHandler(t)
	e := echo.New()
	ctx := context.Background()

	rec := &models.Recording{Name: "les", SourcePath: "/tmp/does-not-exist.mp4"}
	if err := recordings.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := sentences.ReplaceAll(ctx, rec.ID,
		[]models.Sentence{{Index: 0, Text: "Hallo.", StartSec: 0, EndSec: 1}}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	resp := httptest.NewRecorder()
	c := e.NewContext(req, resp)
	c.SetParamNames("id")
	c.SetParamValues(rec.ID)

	if err := h.Delete(c); err != nil {
		t.Fatal(err)
	}
	if resp.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.Code)
	}

	if got, _ := recordings.GetByID(ctx, rec.ID); got != nil {
		t.Error("recording survived delete")
	}
	if got, _ := sentences.ListByRecording(ctx, rec.ID); len(got) != 0 {
		t.Error("sentences survived delete")
	}
}
