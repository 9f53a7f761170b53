package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"luisterlab/internal/assemble"
	"luisterlab/internal/explain"
	"luisterlab/internal/media"
	"luisterlab/internal/models"
	"luisterlab/internal/storage"
	"luisterlab/internal/transcribe"
)

// Normalizer produces the normalized audio artifact for a recording.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
	Duration(ctx context.Context, path string) (float64, error)
}

// Cutter extracts one planned chunk slice into an encoded file.
type Cutter interface {
	Cut(ctx context.Context, audioPath, outputPath string, span media.Span) error
}

// Transcriber converts one chunk file into time-aligned segments with
// chunk-relative timestamps.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]transcribe.Segment, error)
}

// Explainer annotates one ordered batch of sentence texts.
type Explainer interface {
	ExplainBatch(ctx context.Context, sentences []string) ([]explain.Explanation, error)
}

// Policy holds the processing constants. These are configuration inputs,
// not hardcoded law.
type Policy struct {
	MaxAttempts    int           // attempts per external call, including the first
	InitialBackoff time.Duration // delay before the first retry
	BackoffFactor  float64       // multiplier between retry delays
	BatchSize      int           // sentences per explanation call
	MaxChunkBytes  int64         // transcription service payload ceiling
	BytesPerSec    float64       // encoded size per second of normalized audio
}

// DefaultPolicy returns the stock policy: three attempts with 1s/5s
// delays, batches of five, 20MiB chunks of 128kbps audio.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		BackoffFactor:  5,
		BatchSize:      5,
		MaxChunkBytes:  20 * 1024 * 1024,
		BytesPerSec:    16000,
	}
}

// Orchestrator drives one recording through extract, transcribe, explain
// and ready, committing progress to the store after every unit of work so
// a restart resumes at the last completed unit.
type Orchestrator struct {
	recordings  *storage.RecordingRepository
	chunks      *storage.ChunkRepository
	sentences   *storage.SentenceRepository
	normalizer  Normalizer
	cutter      Cutter
	transcriber Transcriber
	explainer   Explainer
	policy      Policy
	audioDir    string
	log         *logrus.Entry
}

// New creates an Orchestrator.
func New(
	recordings *storage.RecordingRepository,
	chunks *storage.ChunkRepository,
	sentences *storage.SentenceRepository,
	normalizer Normalizer,
	cutter Cutter,
	transcriber Transcriber,
	explainer Explainer,
	policy Policy,
	audioDir string,
	log *logrus.Entry,
) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		recordings:  recordings,
		chunks:      chunks,
		sentences:   sentences,
		normalizer:  normalizer,
		cutter:      cutter,
		transcriber: transcriber,
		explainer:   explainer,
		policy:      policy,
		audioDir:    audioDir,
		log:         log,
	}
}

// Run processes one recording to a terminal stage. It is resume-aware: a
// recording abandoned mid-stage by a crash or resubmitted after an error
// continues from the last committed unit of work. A context cancellation
// leaves the recording in its current stage for a later resume.
func (o *Orchestrator) Run(ctx context.Context, recordingID string) error {
	for {
		rec, err := o.recordings.GetByID(ctx, recordingID)
		if err != nil {
			return fmt.Errorf("failed to load recording: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("recording not found: %s", recordingID)
		}
		if rec.Terminal() {
			return nil
		}

		log := o.log.WithFields(logrus.Fields{"recording_id": rec.ID, "stage": rec.Stage})

		switch rec.Stage {
		case models.StagePending:
			// A resubmitted recording keeps its committed artifacts;
			// skip straight past the stages that already finished.
			// Assembled sentences in particular must never be rebuilt,
			// or already-committed explanation batches would be wiped.
			switch {
			case rec.TotalSentences > 0:
				err = o.recordings.SetStage(ctx, rec.ID, models.StageExplaining)
			case rec.AudioPath != nil:
				err = o.recordings.SetStage(ctx, rec.ID, models.StageTranscribing)
			default:
				err = o.recordings.Start(ctx, rec.ID)
			}
		case models.StageExtracting:
			err = o.runExtract(ctx, rec, log)
		case models.StageTranscribing:
			err = o.runTranscribe(ctx, rec, log)
		case models.StageExplaining:
			err = o.runExplain(ctx, rec, log)
		default:
			err = fmt.Errorf("unknown stage %q", rec.Stage)
		}

		if err != nil {
			if canceled(ctx, err) {
				log.Info("processing interrupted, will resume")
				return err
			}
			detail := fmt.Sprintf("%s: %v", rec.Stage, err)
			log.WithError(err).Error("stage failed")
			if failErr := o.recordings.Fail(ctx, rec.ID, detail); failErr != nil {
				return fmt.Errorf("failed to record error %q: %w", detail, failErr)
			}
			return err
		}
	}
}

// runExtract normalizes the source media and advances to transcribing.
func (o *Orchestrator) runExtract(ctx context.Context, rec *models.Recording, log *logrus.Entry) error {
	audioPath := filepath.Join(o.audioDir, rec.ID+".mp3")

	err := o.retry(ctx, func() error {
		return o.normalizer.Normalize(ctx, rec.SourcePath, audioPath)
	})
	if err != nil {
		return err
	}

	log.WithField("audio_path", audioPath).Info("audio normalized")
	return o.recordings.SetAudioPath(ctx, rec.ID, audioPath)
}

// runTranscribe plans chunks if none exist, transcribes the remaining
// ones unit by unit, then assembles sentences and advances to explaining.
func (o *Orchestrator) runTranscribe(ctx context.Context, rec *models.Recording, log *logrus.Entry) error {
	if rec.AudioPath == nil {
		return fmt.Errorf("recording has no normalized audio")
	}
	audioPath := *rec.AudioPath

	existing, err := o.chunks.ListByRecording(ctx, rec.ID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		var duration float64
		err := o.retry(ctx, func() error {
			var derr error
			duration, derr = o.normalizer.Duration(ctx, audioPath)
			return derr
		})
		if err != nil {
			return err
		}

		spans := media.PlanChunks(duration, o.policy.MaxChunkBytes, o.policy.BytesPerSec)
		if len(spans) == 0 {
			return &assemble.AssemblyError{Err: fmt.Errorf("normalized audio has no duration")}
		}
		plan := make([]models.Chunk, len(spans))
		for i, sp := range spans {
			plan[i] = models.Chunk{RecordingID: rec.ID, Index: i, StartSec: sp.StartSec, EndSec: sp.EndSec}
		}
		if err := o.chunks.ReplaceAll(ctx, rec.ID, plan); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"duration_sec": duration, "chunks": len(plan)}).Info("chunk plan committed")
	}

	pending, err := o.chunks.ListUntranscribed(ctx, rec.ID)
	if err != nil {
		return err
	}
	for _, chunk := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunkPath := filepath.Join(o.audioDir, fmt.Sprintf("%s_chunk_%03d.mp3", rec.ID, chunk.Index))
		span := media.Span{StartSec: chunk.StartSec, EndSec: chunk.EndSec}

		var raw []transcribe.Segment
		err := o.retry(ctx, func() error {
			if err := o.cutter.Cut(ctx, audioPath, chunkPath, span); err != nil {
				return err
			}
			var terr error
			raw, terr = o.transcriber.Transcribe(ctx, chunkPath)
			return terr
		})
		if err != nil {
			return err
		}

		// Remap chunk-relative times to absolute recording time before
		// committing, in the same transaction as the transcribed flag.
		segments := make([]models.Segment, len(raw))
		for i, s := range raw {
			segments[i] = models.Segment{
				RecordingID: rec.ID,
				ChunkIndex:  chunk.Index,
				Position:    i,
				Text:        s.Text,
				StartSec:    s.StartSec + chunk.StartSec,
				EndSec:      s.EndSec + chunk.StartSec,
			}
		}
		if err := o.chunks.MarkTranscribed(ctx, rec.ID, chunk.Index, segments); err != nil {
			return err
		}
		_ = os.Remove(chunkPath)

		log.WithFields(logrus.Fields{"chunk": chunk.Index, "segments": len(segments)}).Info("chunk transcribed")
	}

	segments, err := o.chunks.ListSegments(ctx, rec.ID)
	if err != nil {
		return err
	}
	sentences, err := assemble.Build(segments)
	if err != nil {
		return err
	}
	if err := o.sentences.ReplaceAll(ctx, rec.ID, sentences); err != nil {
		return err
	}
	log.WithField("sentences", len(sentences)).Info("transcript assembled")

	return o.recordings.SetStage(ctx, rec.ID, models.StageExplaining)
}

// runExplain annotates the remaining sentences batch by batch, then
// marks the recording ready.
func (o *Orchestrator) runExplain(ctx context.Context, rec *models.Recording, log *logrus.Entry) error {
	for {
		batch, err := o.sentences.ListUnexplained(ctx, rec.ID, o.policy.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			log.Info("all sentences explained")
			return o.recordings.Complete(ctx, rec.ID)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		texts := make([]string, len(batch))
		for i, s := range batch {
			texts[i] = s.Text
		}

		var explanations []explain.Explanation
		err = o.retry(ctx, func() error {
			var eerr error
			explanations, eerr = o.explainer.ExplainBatch(ctx, texts)
			return eerr
		})
		if err != nil {
			return err
		}
		if len(explanations) != len(batch) {
			return fmt.Errorf("got %d explanations for %d sentences", len(explanations), len(batch))
		}

		for i := range batch {
			e := explanations[i]
			batch[i].TranslationEN = &e.TranslationEN
			batch[i].ExplanationNL = &e.ExplanationNL
			batch[i].ExplanationEN = &e.ExplanationEN
			batch[i].Keywords = nil
			for _, k := range e.Keywords {
				batch[i].Keywords = append(batch[i].Keywords, models.Keyword{
					Word: k.Word, MeaningNL: k.MeaningNL, MeaningEN: k.MeaningEN,
				})
			}
		}
		if err := o.sentences.ApplyExplanations(ctx, rec.ID, batch); err != nil {
			return err
		}

		log.WithField("batch_size", len(batch)).Info("batch explained")
	}
}

// retry runs op up to Policy.MaxAttempts times with increasing delay.
// Assembly errors are deterministic and not retried.
func (o *Orchestrator) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.policy.InitialBackoff
	bo.Multiplier = o.policy.BackoffFactor
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.MaxInterval = time.Minute

	attempts := uint64(0)
	if o.policy.MaxAttempts > 1 {
		attempts = uint64(o.policy.MaxAttempts - 1)
	}

	return backoff.Retry(func() error {
		err := op()
		var aerr *assemble.AssemblyError
		if errors.As(err, &aerr) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, attempts), ctx))
}

// canceled reports whether err is due to ctx being done.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
