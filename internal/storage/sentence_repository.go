package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"luisterlab/internal/models"
)

// SentenceRepository is the data access layer for sentences and keywords.
type SentenceRepository struct {
	db *DB
}

// NewSentenceRepository creates a new SentenceRepository.
func NewSentenceRepository(db *DB) *SentenceRepository {
	return &SentenceRepository{db: db}
}

// ReplaceAll stores the assembled sentence list for a recording and sets
// the recording's sentence counters in the same transaction. Assembly
// runs once per recording, so any previous rows are dropped first.
func (r *SentenceRepository) ReplaceAll(ctx context.Context, recordingID string, sentences []models.Sentence) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM keywords WHERE sentence_id IN (SELECT id FROM sentences WHERE recording_id = ?)`,
		recordingID); err != nil {
		return fmt.Errorf("failed to clear keywords: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sentences WHERE recording_id = ?`, recordingID); err != nil {
		return fmt.Errorf("failed to clear sentences: %w", err)
	}

	for i := range sentences {
		s := &sentences[i]
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		s.RecordingID = recordingID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sentences (id, recording_id, idx, text, start_sec, end_sec)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, recordingID, s.Index, s.Text, s.StartSec, s.EndSec)
		if err != nil {
			return fmt.Errorf("failed to insert sentence %d: %w", s.Index, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE recordings SET total_sentences = ?, explained_sentences = 0, updated_at = ?
		WHERE id = ?`,
		len(sentences), time.Now(), recordingID)
	if err != nil {
		return fmt.Errorf("failed to update sentence counters: %w", err)
	}

	return tx.Commit()
}

// ListByRecording returns all sentences for a recording in recording
// order, with their keywords attached.
func (r *SentenceRepository) ListByRecording(ctx context.Context, recordingID string) ([]models.Sentence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recording_id, idx, text, start_sec, end_sec, translation_en, explanation_nl, explanation_en
		FROM sentences WHERE recording_id = ? ORDER BY idx`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sentences []models.Sentence
	byID := make(map[string]int)
	for rows.Next() {
		var s models.Sentence
		if err := rows.Scan(&s.ID, &s.RecordingID, &s.Index, &s.Text, &s.StartSec, &s.EndSec,
			&s.TranslationEN, &s.ExplanationNL, &s.ExplanationEN); err != nil {
			return nil, err
		}
		byID[s.ID] = len(sentences)
		sentences = append(sentences, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kwRows, err := r.db.QueryContext(ctx, `
		SELECT k.id, k.sentence_id, k.word, k.meaning_nl, k.meaning_en
		FROM keywords k
		JOIN sentences s ON s.id = k.sentence_id
		WHERE s.recording_id = ?
		ORDER BY s.idx, k.rowid`, recordingID)
	if err != nil {
		return nil, err
	}
	defer kwRows.Close()

	for kwRows.Next() {
		var k models.Keyword
		if err := kwRows.Scan(&k.ID, &k.SentenceID, &k.Word, &k.MeaningNL, &k.MeaningEN); err != nil {
			return nil, err
		}
		if i, ok := byID[k.SentenceID]; ok {
			sentences[i].Keywords = append(sentences[i].Keywords, k)
		}
	}
	return sentences, kwRows.Err()
}

// ListUnexplained returns up to limit consecutive sentences that have not
// been annotated yet, in recording order. This is the resume scan for the
// explaining stage.
func (r *SentenceRepository) ListUnexplained(ctx context.Context, recordingID string, limit int) ([]models.Sentence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recording_id, idx, text, start_sec, end_sec, translation_en, explanation_nl, explanation_en
		FROM sentences WHERE recording_id = ? AND translation_en IS NULL
		ORDER BY idx LIMIT ?`, recordingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sentences []models.Sentence
	for rows.Next() {
		var s models.Sentence
		if err := rows.Scan(&s.ID, &s.RecordingID, &s.Index, &s.Text, &s.StartSec, &s.EndSec,
			&s.TranslationEN, &s.ExplanationNL, &s.ExplanationEN); err != nil {
			return nil, err
		}
		sentences = append(sentences, s)
	}
	return sentences, rows.Err()
}

// ApplyExplanations writes the annotation for a whole batch and advances
// the recording's explained counter in one transaction. A failure rolls
// back every sentence in the batch, keeping the counter consistent with
// the persisted content.
func (r *SentenceRepository) ApplyExplanations(ctx context.Context, recordingID string, batch []models.Sentence) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range batch {
		s := &batch[i]
		res, err := tx.ExecContext(ctx, `
			UPDATE sentences SET translation_en = ?, explanation_nl = ?, explanation_en = ?
			WHERE id = ? AND recording_id = ?`,
			s.TranslationEN, s.ExplanationNL, s.ExplanationEN, s.ID, recordingID)
		if err != nil {
			return fmt.Errorf("failed to update sentence %d: %w", s.Index, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("sentence %d of recording %s not found", s.Index, recordingID)
		}

		for j := range s.Keywords {
			k := &s.Keywords[j]
			if k.ID == "" {
				k.ID = uuid.New().String()
			}
			k.SentenceID = s.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO keywords (id, sentence_id, word, meaning_nl, meaning_en)
				VALUES (?, ?, ?, ?, ?)`,
				k.ID, s.ID, k.Word, k.MeaningNL, k.MeaningEN)
			if err != nil {
				return fmt.Errorf("failed to insert keyword %q: %w", k.Word, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE recordings SET explained_sentences = explained_sentences + ?, updated_at = ?
		WHERE id = ?`,
		len(batch), time.Now(), recordingID)
	if err != nil {
		return fmt.Errorf("failed to advance explained counter: %w", err)
	}

	return tx.Commit()
}
