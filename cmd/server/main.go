package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webm-dash-segmenter/internal/platform/config"
	"webm-dash-segmenter/internal/platform/logger"
	"webm-dash-segmenter/internal/platform/metrics"
	"webm-dash-segmenter/internal/segmenter"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	settings, err := config.LoadSettings(config.GetEnv("CONFIG_FILE", "config.yaml"))
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(settings.LogLevel, settings.LogFormat)
	met := metrics.New()

	session, err := segmenter.NewSession(segmenter.Config{
		OutputDir:        settings.OutputDir,
		FragmentPrefix:   settings.FragmentPrefix,
		InitFragmentName: settings.InitFragmentName,
		Interval:         settings.FragmentInterval(),
	}, log, met)
	if err != nil {
		log.Error("session setup failed", "error", err)
		os.Exit(1)
	}

	for _, t := range settings.Tracks {
		if err := session.RegisterTrack(segmenter.TrackDescriptor{
			Kind:  segmenter.TrackKind(t.Kind),
			Codec: t.Codec,
		}); err != nil {
			log.Error("invalid track in configuration", "error", err)
			os.Exit(1)
		}
	}

	h := segmenter.NewHandler(session, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetRecording(session.Recording()) }).ServeHTTP(w, req)
	})
	r.Mount("/", h.Routes())

	if config.GetEnv("AUTO_START", "false") == "true" {
		if err := session.Start(context.Background()); err != nil {
			log.Error("auto start failed", "error", err)
			os.Exit(1)
		}
	}

	addr := ":" + settings.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", settings.Port,
		"session_id", session.ID(),
		"output_dir", settings.OutputDir,
		"fragment_interval", settings.FragmentInterval().String(),
		"log_level", settings.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	if err := session.Close(); err != nil {
		log.Error("session close error", "error", err)
	}

	log.Info("server stopped")
}
