package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"luisterlab/internal/config"
	"luisterlab/internal/explain"
	"luisterlab/internal/handlers"
	"luisterlab/internal/ingest"
	"luisterlab/internal/logger"
	"luisterlab/internal/media"
	"luisterlab/internal/pipeline"
	"luisterlab/internal/storage"
	"luisterlab/internal/transcribe"
	"luisterlab/internal/version"
	"luisterlab/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New()

	if err := cfg.EnsureDirs(); err != nil {
		log.WithError(err).Fatal("failed to create data directories")
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	recordings := storage.NewRecordingRepository(db)
	chunks := storage.NewChunkRepository(db)
	sentences := storage.NewSentenceRepository(db)

	normalizer := media.NewNormalizer(cfg.FFmpegPath, cfg.FFprobePath)
	cutter := media.NewCutter(cfg.FFmpegPath)
	transcriber := transcribe.NewClient(cfg.TranscribeURL, cfg.OpenAIAPIKey,
		cfg.TranscribeModel, cfg.TranscribeLanguage, cfg.HTTPTimeout)
	explainer := explain.NewClient(cfg.ExplainURL, cfg.OpenAIAPIKey, cfg.ExplainModel, cfg.HTTPTimeout)

	policy := pipeline.Policy{
		MaxAttempts:    cfg.MaxRetries,
		InitialBackoff: cfg.RetryBackoff,
		BackoffFactor:  cfg.BackoffFactor,
		BatchSize:      cfg.ExplainBatchSize,
		MaxChunkBytes:  cfg.MaxChunkBytes,
		BytesPerSec:    cfg.AudioBytesPerSec,
	}
	orchestrator := pipeline.New(recordings, chunks, sentences,
		normalizer, cutter, transcriber, explainer, policy, cfg.AudioDir, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := worker.New(recordings, orchestrator, cfg.WorkerPollInterval, log)
	w.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})

	rh := handlers.NewRecordingHandler(recordings, sentences,
		ingest.NewYouTubeDownloader(), cfg.UploadDir, log)
	rh.Register(e.Group("/api/recordings"))

	go func() {
		log.WithField("port", cfg.Port).Infof("starting luisterlab v%s", version.Version)
		if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}
