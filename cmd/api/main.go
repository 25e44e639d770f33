package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storyreel/renderd/internal/api"
	"github.com/storyreel/renderd/internal/config"
	"github.com/storyreel/renderd/internal/ffmpeg"
	"github.com/storyreel/renderd/internal/logging"
	"github.com/storyreel/renderd/internal/pipeline"
	"github.com/storyreel/renderd/internal/registry"
	"github.com/storyreel/renderd/internal/services"
	"github.com/storyreel/renderd/internal/store"
)

func main() {
	log := logging.New(os.Getenv("DEBUG") != "")
	defer log.Sync()

	log.Info("starting renderd API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	for _, dir := range []string{cfg.WorkDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	projects, err := store.New(cfg.ProjectsDir)
	if err != nil {
		log.Fatalf("failed to open project store: %v", err)
	}

	reg := registry.New()

	ffmpegSvc := ffmpeg.NewService(ffmpeg.NewExecRunner(log), cfg.RenderFPS, log)
	pipe := pipeline.New(reg, ffmpegSvc, pipeline.Options{
		WorkDir:            cfg.WorkDir,
		OutputDir:          cfg.OutputDir,
		PublicBaseURL:      cfg.PublicBaseURL,
		Bucket:             cfg.SupabaseBucket,
		SupabaseURL:        cfg.SupabaseURL,
		ServiceKeyOverride: cfg.SupabaseServiceKey,
	}, log)

	var transcribe *services.TranscriptionService
	if cfg.OpenAIKey != "" {
		transcribe = services.NewTranscriptionService(cfg.OpenAIKey, log)
		log.Info("transcription enabled (Whisper)")
	} else {
		log.Info("no OPENAI_API_KEY set, /api/transcribe disabled")
	}

	handler := api.NewHandler(reg, pipe, projects, transcribe, cfg.OutputDir)
	router := api.NewRouter(handler, api.RouterConfig{
		APIKey:             cfg.APIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.APIKey != "" {
		log.Info("API key authentication enabled")
	} else {
		log.Warn("no VPS_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Infof("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// In-flight render jobs are not awaited; their work dirs survive a
	// restart and failed jobs can be resubmitted by the caller.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("server exited")
}
