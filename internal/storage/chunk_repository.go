package storage

import (
	"context"
	"fmt"

	"luisterlab/internal/models"
)

// ChunkRepository is the data access layer for chunks and their segments.
type ChunkRepository struct {
	db *DB
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceAll replaces the chunk plan for a recording in one transaction.
// Existing chunks and segments are dropped, so this must only be called
// before any chunk has been transcribed.
func (r *ChunkRepository) ReplaceAll(ctx context.Context, recordingID string, chunks []models.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE recording_id = ?`, recordingID); err != nil {
		return fmt.Errorf("failed to clear segments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE recording_id = ?`, recordingID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (recording_id, idx, start_sec, end_sec, transcribed)
			VALUES (?, ?, ?, ?, 0)`,
			recordingID, c.Index, c.StartSec, c.EndSec)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}

	return tx.Commit()
}

// ListByRecording returns all chunks for a recording ordered by index.
func (r *ChunkRepository) ListByRecording(ctx context.Context, recordingID string) ([]models.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recording_id, idx, start_sec, end_sec, transcribed
		FROM chunks WHERE recording_id = ? ORDER BY idx`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.RecordingID, &c.Index, &c.StartSec, &c.EndSec, &c.Transcribed); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ListUntranscribed returns the chunks still awaiting transcription,
// ordered by index. This is the resume scan for the transcribing stage.
func (r *ChunkRepository) ListUntranscribed(ctx context.Context, recordingID string) ([]models.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recording_id, idx, start_sec, end_sec, transcribed
		FROM chunks WHERE recording_id = ? AND transcribed = 0 ORDER BY idx`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.RecordingID, &c.Index, &c.StartSec, &c.EndSec, &c.Transcribed); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// MarkTranscribed flags a chunk as transcribed and appends its segments
// in a single transaction, so a reader never sees one without the other.
func (r *ChunkRepository) MarkTranscribed(ctx context.Context, recordingID string, index int, segments []models.Segment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE chunks SET transcribed = 1
		WHERE recording_id = ? AND idx = ? AND transcribed = 0`,
		recordingID, index)
	if err != nil {
		return fmt.Errorf("failed to mark chunk transcribed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("chunk %d of recording %s is missing or already transcribed", index, recordingID)
	}

	for pos, s := range segments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO segments (recording_id, chunk_idx, position, text, start_sec, end_sec)
			VALUES (?, ?, ?, ?, ?, ?)`,
			recordingID, index, pos, s.Text, s.StartSec, s.EndSec)
		if err != nil {
			return fmt.Errorf("failed to insert segment %d of chunk %d: %w", pos, index, err)
		}
	}

	return tx.Commit()
}

// ListSegments returns all committed segments for a recording ordered by
// chunk index, then by position within the chunk.
func (r *ChunkRepository) ListSegments(ctx context.Context, recordingID string) ([]models.Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recording_id, chunk_idx, position, text, start_sec, end_sec
		FROM segments WHERE recording_id = ? ORDER BY chunk_idx, position`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		var s models.Segment
		if err := rows.Scan(&s.RecordingID, &s.ChunkIndex, &s.Position, &s.Text, &s.StartSec, &s.EndSec); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}
