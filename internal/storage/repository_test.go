package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"luisterlab/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createRecording(t *testing.T, repo *RecordingRepository) *models.Recording {
	t.Helper()
	rec := &models.Recording{Name: "les 1", SourcePath: "/uploads/les1.mp4"}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("failed to create recording: %v", err)
	}
	return rec
}

func TestRecordingRepository_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordingRepository(db)
	ctx := context.Background()

	rec := createRecording(t, repo)
	if rec.ID == "" {
		t.Fatal("create did not assign an ID")
	}
	if rec.Stage != models.StagePending {
		t.Errorf("stage = %s, want pending", rec.Stage)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("recording not found after create")
	}
	if got.Name != "les 1" || got.SourcePath != "/uploads/les1.mp4" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if got.AudioPath != nil || got.ErrorDetail != nil {
		t.Errorf("nullable fields populated on a fresh recording: %+v", got)
	}

	missing, err := repo.GetByID(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if missing != nil {
		t.Errorf("got %+v for a missing ID, want nil", missing)
	}
}

func TestRecordingRepository_StageTransitions(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordingRepository(db)
	ctx := context.Background()
	rec := createRecording(t, repo)

	if err := repo.Start(ctx, rec.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got, _ := repo.GetByID(ctx, rec.ID)
	if got.Stage != models.StageExtracting {
		t.Fatalf("stage = %s, want extracting", got.Stage)
	}
	if got.StartedAt == nil {
		t.Error("started_at not set")
	}

	if err := repo.SetAudioPath(ctx, rec.ID, "/audio/out.mp3"); err != nil {
		t.Fatalf("SetAudioPath failed: %v", err)
	}
	got, _ = repo.GetByID(ctx, rec.ID)
	if got.Stage != models.StageTranscribing {
		t.Errorf("stage = %s, want transcribing after SetAudioPath", got.Stage)
	}
	if got.AudioPath == nil || *got.AudioPath != "/audio/out.mp3" {
		t.Errorf("audio path = %v", got.AudioPath)
	}

	if err := repo.Complete(ctx, rec.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	got, _ = repo.GetByID(ctx, rec.ID)
	if got.Stage != models.StageReady || got.CompletedAt == nil {
		t.Errorf("stage=%s completed_at=%v, want ready with timestamp", got.Stage, got.CompletedAt)
	}
}

func TestRecordingRepository_FailAndResubmit(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordingRepository(db)
	ctx := context.Background()
	rec := createRecording(t, repo)

	// Resubmitting a recording that never failed is rejected.
	if err := repo.Resubmit(ctx, rec.ID); err == nil {
		t.Error("Resubmit succeeded for a pending recording")
	}

	if err := repo.Fail(ctx, rec.ID, "transcribing: service unavailable"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	got, _ := repo.GetByID(ctx, rec.ID)
	if got.Stage != models.StageError {
		t.Fatalf("stage = %s, want error", got.Stage)
	}
	if got.ErrorDetail == nil || !strings.HasPrefix(*got.ErrorDetail, "transcribing:") {
		t.Errorf("error detail = %v", got.ErrorDetail)
	}

	if err := repo.Resubmit(ctx, rec.ID); err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	got, _ = repo.GetByID(ctx, rec.ID)
	if got.Stage != models.StagePending {
		t.Errorf("stage = %s, want pending after resubmit", got.Stage)
	}
	if got.ErrorDetail != nil {
		t.Errorf("error detail survived resubmit: %v", *got.ErrorDetail)
	}
}

func TestRecordingRepository_QueueScans(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordingRepository(db)
	ctx := context.Background()

	first := createRecording(t, repo)
	second := createRecording(t, repo)
	third := createRecording(t, repo)

	next, err := repo.GetNextPending(ctx)
	if err != nil {
		t.Fatalf("GetNextPending failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Errorf("next pending = %v, want the oldest (%s)", next, first.ID)
	}

	// Two in flight, one still pending.
	if err := repo.Start(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.Start(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetAudioPath(ctx, second.ID, "/audio/b.mp3"); err != nil {
		t.Fatal(err)
	}

	inflight, err := repo.ListInFlight(ctx)
	if err != nil {
		t.Fatalf("ListInFlight failed: %v", err)
	}
	if len(inflight) != 2 {
		t.Fatalf("got %d in-flight recordings, want 2", len(inflight))
	}
	for _, r := range inflight {
		if r.ID == third.ID {
			t.Error("pending recording reported as in flight")
		}
	}

	recent, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d recent recordings, want 2", len(recent))
	}
}

func TestChunkRepository_MarkTranscribedIsAtomicAndSingleShot(t *testing.T) {
	db := openTestDB(t)
	recordings := NewRecordingRepository(db)
	chunks := NewChunkRepository(db)
	ctx := context.Background()
	rec := createRecording(t, recordings)

	plan := []models.Chunk{
		{Index: 0, StartSec: 0, EndSec: 10},
		{Index: 1, StartSec: 10, EndSec: 20},
	}
	if err := chunks.ReplaceAll(ctx, rec.ID, plan); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	pending, err := chunks.ListUntranscribed(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d untranscribed chunks, want 2", len(pending))
	}

	segs := []models.Segment{
		{Text: "Hallo.", StartSec: 0, EndSec: 2},
		{Text: "Welkom.", StartSec: 2, EndSec: 4},
	}
	if err := chunks.MarkTranscribed(ctx, rec.ID, 0, segs); err != nil {
		t.Fatalf("MarkTranscribed failed: %v", err)
	}

	pending, _ = chunks.ListUntranscribed(ctx, rec.ID)
	if len(pending) != 1 || pending[0].Index != 1 {
		t.Errorf("untranscribed after commit = %+v, want chunk 1 only", pending)
	}
	got, _ := chunks.ListSegments(ctx, rec.ID)
	if len(got) != 2 {
		t.Errorf("got %d committed segments, want 2", len(got))
	}

	// A second commit for the same chunk must not duplicate segments.
	if err := chunks.MarkTranscribed(ctx, rec.ID, 0, segs); err == nil {
		t.Fatal("MarkTranscribed succeeded twice for the same chunk")
	}
	got, _ = chunks.ListSegments(ctx, rec.ID)
	if len(got) != 2 {
		t.Errorf("double mark changed segment count to %d", len(got))
	}

	if err := chunks.MarkTranscribed(ctx, rec.ID, 99, segs); err == nil {
		t.Error("MarkTranscribed succeeded for a chunk that does not exist")
	}
}

func TestSentenceRepository_ReplaceAllSetsCounters(t *testing.T) {
	db := openTestDB(t)
	recordings := NewRecordingRepository(db)
	sentences := NewSentenceRepository(db)
	ctx := context.Background()
	rec := createRecording(t, recordings)

	list := []models.Sentence{
		{Index: 0, Text: "Hallo allemaal.", StartSec: 0, EndSec: 2},
		{Index: 1, Text: "Welkom bij de les.", StartSec: 2, EndSec: 4},
		{Index: 2, Text: "Vandaag leren we Nederlands.", StartSec: 4, EndSec: 7},
	}
	if err := sentences.ReplaceAll(ctx, rec.ID, list); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	got, _ := recordings.GetByID(ctx, rec.ID)
	if got.TotalSentences != 3 || got.ExplainedSentences != 0 {
		t.Errorf("counters = %d/%d, want 0/3", got.ExplainedSentences, got.TotalSentences)
	}

	stored, err := sentences.ListByRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ListByRecording failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d sentences, want 3", len(stored))
	}
	for i, s := range stored {
		if s.Index != i {
			t.Errorf("sentence %d has index %d", i, s.Index)
		}
		if s.Explained() {
			t.Errorf("sentence %d already explained", i)
		}
	}

	// Replacing again drops the old rows and resets the counter.
	if err := sentences.ReplaceAll(ctx, rec.ID, list[:2]); err != nil {
		t.Fatalf("second ReplaceAll failed: %v", err)
	}
	got, _ = recordings.GetByID(ctx, rec.ID)
	if got.TotalSentences != 2 {
		t.Errorf("total after replace = %d, want 2", got.TotalSentences)
	}
}

func TestSentenceRepository_ApplyExplanations(t *testing.T) {
	db := openTestDB(t)
	recordings := NewRecordingRepository(db)
	sentences := NewSentenceRepository(db)
	ctx := context.Background()
	rec := createRecording(t, recordings)

	list := []models.Sentence{
		{Index: 0, Text: "Hallo allemaal.", StartSec: 0, EndSec: 2},
		{Index: 1, Text: "Welkom bij de les.", StartSec: 2, EndSec: 4},
		{Index: 2, Text: "Tot morgen.", StartSec: 4, EndSec: 5},
	}
	if err := sentences.ReplaceAll(ctx, rec.ID, list); err != nil {
		t.Fatal(err)
	}

	batch, err := sentences.ListUnexplained(ctx, rec.ID, 2)
	if err != nil {
		t.Fatalf("ListUnexplained failed: %v", err)
	}
	if len(batch) != 2 || batch[0].Index != 0 || batch[1].Index != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	tr0, nl0, en0 := "Hello everyone.", "Een begroeting.", "A greeting."
	batch[0].TranslationEN, batch[0].ExplanationNL, batch[0].ExplanationEN = &tr0, &nl0, &en0
	batch[0].Keywords = []models.Keyword{{Word: "allemaal", MeaningNL: "iedereen", MeaningEN: "everyone"}}
	tr1 := "Welcome to the lesson."
	batch[1].TranslationEN, batch[1].ExplanationNL, batch[1].ExplanationEN = &tr1, &nl0, &en0

	if err := sentences.ApplyExplanations(ctx, rec.ID, batch); err != nil {
		t.Fatalf("ApplyExplanations failed: %v", err)
	}

	got, _ := recordings.GetByID(ctx, rec.ID)
	if got.ExplainedSentences != 2 {
		t.Errorf("explained counter = %d, want 2", got.ExplainedSentences)
	}

	remaining, _ := sentences.ListUnexplained(ctx, rec.ID, 10)
	if len(remaining) != 1 || remaining[0].Index != 2 {
		t.Errorf("remaining = %+v, want sentence 2 only", remaining)
	}

	stored, _ := sentences.ListByRecording(ctx, rec.ID)
	if stored[0].TranslationEN == nil || *stored[0].TranslationEN != tr0 {
		t.Errorf("translation not persisted: %v", stored[0].TranslationEN)
	}
	if len(stored[0].Keywords) != 1 || stored[0].Keywords[0].Word != "allemaal" {
		t.Errorf("keywords not persisted: %+v", stored[0].Keywords)
	}
	if !stored[0].Explained() || !stored[1].Explained() || stored[2].Explained() {
		t.Error("explained flags inconsistent with applied batch")
	}
}

func TestSentenceRepository_ApplyExplanationsRollsBackWholeBatch(t *testing.T) {
	db := openTestDB(t)
	recordings := NewRecordingRepository(db)
	sentences := NewSentenceRepository(db)
	ctx := context.Background()
	rec := createRecording(t, recordings)

	list := []models.Sentence{
		{Index: 0, Text: "Hallo allemaal.", StartSec: 0, EndSec: 2},
	}
	if err := sentences.ReplaceAll(ctx, rec.ID, list); err != nil {
		t.Fatal(err)
	}

	batch, _ := sentences.ListUnexplained(ctx, rec.ID, 5)
	tr := "Hello everyone."
	batch[0].TranslationEN = &tr
	batch[0].Keywords = []models.Keyword{{Word: "hallo", MeaningNL: "groet", MeaningEN: "hello"}}
	// A row the store has never seen poisons the batch.
	batch = append(batch, models.Sentence{ID: "ghost", Index: 7, TranslationEN: &tr})

	if err := sentences.ApplyExplanations(ctx, rec.ID, batch); err == nil {
		t.Fatal("ApplyExplanations succeeded with an unknown sentence in the batch")
	}

	got, _ := recordings.GetByID(ctx, rec.ID)
	if got.ExplainedSentences != 0 {
		t.Errorf("explained counter = %d after rollback, want 0", got.ExplainedSentences)
	}
	stored, _ := sentences.ListByRecording(ctx, rec.ID)
	if stored[0].TranslationEN != nil {
		t.Error("partial batch update survived rollback")
	}
	if len(stored[0].Keywords) != 0 {
		t.Error("keywords survived rollback")
	}
}

func TestRecordingRepository_DeleteCascades(t *testing.T) {
	db := openTestDB(t)
	recordings := NewRecordingRepository(db)
	chunks := NewChunkRepository(db)
	sentences := NewSentenceRepository(db)
	ctx := context.Background()
	rec := createRecording(t, recordings)

	if err := chunks.ReplaceAll(ctx, rec.ID, []models.Chunk{{Index: 0, StartSec: 0, EndSec: 10}}); err != nil {
		t.Fatal(err)
	}
	if err := chunks.MarkTranscribed(ctx, rec.ID, 0,
		[]models.Segment{{Text: "Hallo.", StartSec: 0, EndSec: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := sentences.ReplaceAll(ctx, rec.ID,
		[]models.Sentence{{Index: 0, Text: "Hallo.", StartSec: 0, EndSec: 2}}); err != nil {
		t.Fatal(err)
	}

	if err := recordings.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if got, _ := recordings.GetByID(ctx, rec.ID); got != nil {
		t.Error("recording survived delete")
	}
	if got, _ := chunks.ListByRecording(ctx, rec.ID); len(got) != 0 {
		t.Errorf("%d chunks survived delete", len(got))
	}
	if got, _ := chunks.ListSegments(ctx, rec.ID); len(got) != 0 {
		t.Errorf("%d segments survived delete", len(got))
	}
	if got, _ := sentences.ListByRecording(ctx, rec.ID); len(got) != 0 {
		t.Errorf("%d sentences survived delete", len(got))
	}
}
