package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"luisterlab/internal/storage"
)

// Runner processes one recording to a terminal stage.
type Runner interface {
	Run(ctx context.Context, recordingID string) error
}

// Worker polls the store for pending recordings and drives each one
// through the pipeline, one at a time. Recordings left mid-stage by a
// previous process are picked up on startup and resumed.
type Worker struct {
	recordings *storage.RecordingRepository
	runner     Runner
	interval   time.Duration
	log        *logrus.Entry
	stop       chan struct{}
	wg         sync.WaitGroup
}

// New creates a worker polling at the given interval.
func New(recordings *storage.RecordingRepository, runner Runner, interval time.Duration, log *logrus.Entry) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		recordings: recordings,
		runner:     runner,
		interval:   interval,
		log:        log,
		stop:       make(chan struct{}),
	}
}

// Start begins processing recordings.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	w.log.Info("worker started")
}

// Stop gracefully stops the worker. An in-flight recording finishes its
// current unit of work; cancellation is honored between units.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.resumeInFlight(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.processNext(ctx)
		}
	}
}

// resumeInFlight picks up recordings a previous process left mid-stage.
// Units already committed are never redone.
func (w *Worker) resumeInFlight(ctx context.Context) {
	recs, err := w.recordings.ListInFlight(ctx)
	if err != nil {
		w.log.WithError(err).Error("failed to list in-flight recordings")
		return
	}
	for _, rec := range recs {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}

		log := w.log.WithFields(logrus.Fields{"recording_id": rec.ID, "stage": rec.Stage})
		log.Info("resuming recording")
		if err := w.runner.Run(ctx, rec.ID); err != nil {
			log.WithError(err).Warn("resumed recording did not reach ready")
		}
	}
}

func (w *Worker) processNext(ctx context.Context) {
	rec, err := w.recordings.GetNextPending(ctx)
	if err != nil {
		w.log.WithError(err).Error("failed to poll for pending recordings")
		return
	}
	if rec == nil {
		return
	}

	log := w.log.WithField("recording_id", rec.ID)
	log.Info("processing recording")

	if err := w.runner.Run(ctx, rec.ID); err != nil {
		// The orchestrator has already recorded the failure (or the
		// context was canceled and the recording will resume later).
		log.WithError(err).Warn("recording did not reach ready")
		return
	}
	log.Info("recording processed")
}
