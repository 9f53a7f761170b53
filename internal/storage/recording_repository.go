package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"luisterlab/internal/models"
)

// RecordingRepository is the data access layer for recordings.
type RecordingRepository struct {
	db *DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *DB) *RecordingRepository {
	return &RecordingRepository{db: db}
}

const recordingColumns = `id, name, source_path, audio_path, stage, error_detail,
	total_sentences, explained_sentences, created_at, updated_at, started_at, completed_at`

func scanRecording(row interface{ Scan(...any) error }) (*models.Recording, error) {
	var r models.Recording
	err := row.Scan(&r.ID, &r.Name, &r.SourcePath, &r.AudioPath, &r.Stage, &r.ErrorDetail,
		&r.TotalSentences, &r.ExplainedSentences, &r.CreatedAt, &r.UpdatedAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a new recording in the pending stage.
func (r *RecordingRepository) Create(ctx context.Context, rec *models.Recording) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Stage == "" {
		rec.Stage = models.StagePending
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recordings (id, name, source_path, audio_path, stage, error_detail,
			total_sentences, explained_sentences, created_at, updated_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.SourcePath, rec.AudioPath, rec.Stage, rec.ErrorDetail,
		rec.TotalSentences, rec.ExplainedSentences, rec.CreatedAt, rec.UpdatedAt, rec.StartedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

// GetByID returns a recording by ID, or nil if it does not exist.
func (r *RecordingRepository) GetByID(ctx context.Context, id string) (*models.Recording, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetNextPending returns the oldest pending recording, or nil when the
// queue is empty.
func (r *RecordingRepository) GetNextPending(ctx context.Context) (*models.Recording, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings
		 WHERE stage = ? ORDER BY created_at ASC LIMIT 1`, models.StagePending)
	rec, err := scanRecording(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListInFlight returns recordings stuck in a non-terminal stage past
// pending, oldest first. After a process restart these are resumed from
// their last committed unit of work.
func (r *RecordingRepository) ListInFlight(ctx context.Context) ([]models.Recording, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings
		 WHERE stage IN (?, ?, ?) ORDER BY created_at ASC`,
		models.StageExtracting, models.StageTranscribing, models.StageExplaining)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// ListRecent returns the most recently created recordings.
func (r *RecordingRepository) ListRecent(ctx context.Context, limit int) ([]models.Recording, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// SetStage moves a recording to a new stage.
func (r *RecordingRepository) SetStage(ctx context.Context, id, stage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET stage = ?, updated_at = ? WHERE id = ?`,
		stage, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set stage: %w", err)
	}
	return nil
}

// Start marks the recording as picked up for processing.
func (r *RecordingRepository) Start(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET stage = ?, started_at = ?, updated_at = ? WHERE id = ? AND stage = ?`,
		models.StageExtracting, now, now, id, models.StagePending)
	return err
}

// SetAudioPath records the normalized audio artifact and advances the
// recording to the transcribing stage in one update.
func (r *RecordingRepository) SetAudioPath(ctx context.Context, id, audioPath string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET audio_path = ?, stage = ?, updated_at = ? WHERE id = ?`,
		audioPath, models.StageTranscribing, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set audio path: %w", err)
	}
	return nil
}

// Complete moves the recording to the ready stage.
func (r *RecordingRepository) Complete(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET stage = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		models.StageReady, now, now, id)
	return err
}

// Fail moves the recording to the error stage with a stage-qualified detail.
func (r *RecordingRepository) Fail(ctx context.Context, id, detail string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET stage = ?, error_detail = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		models.StageError, detail, now, now, id)
	return err
}

// Resubmit puts a failed recording back in the pending queue, keeping
// committed chunks and sentences so processing resumes rather than restarts.
func (r *RecordingRepository) Resubmit(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recordings SET stage = ?, error_detail = NULL, completed_at = NULL, updated_at = ?
		 WHERE id = ? AND stage = ?`,
		models.StagePending, time.Now(), id, models.StageError)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("recording %s is not in the error stage", id)
	}
	return nil
}

// Delete removes a recording and, via cascade, its chunks, segments,
// sentences and keywords.
func (r *RecordingRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	return err
}
