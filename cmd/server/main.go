package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/deltadevelopers/leafsense-api/internal/chat"
	"github.com/deltadevelopers/leafsense-api/internal/config"
	"github.com/deltadevelopers/leafsense-api/internal/diseasepack"
	"github.com/deltadevelopers/leafsense-api/internal/handlers"
	"github.com/deltadevelopers/leafsense-api/internal/logging"
	"github.com/deltadevelopers/leafsense-api/internal/model"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	artifact := model.LoadArtifact(
		model.Paths{Model: cfg.Model.Path, ClassNames: cfg.Model.ClassNamesPath},
		model.ONNXOpener(model.ONNXOptions{
			SharedLibrary: cfg.Model.ONNXLibrary,
			InputName:     cfg.Model.InputName,
			OutputName:    cfg.Model.OutputName,
		}),
		logger,
	)
	defer artifact.Close()

	engine := model.NewEngine(artifact, logger, model.WithMaxPixels(cfg.Model.MaxPixels))
	packs := diseasepack.Load(cfg.DiseasePacks.Path, logger)

	handler := handlers.NewHandler(engine, chat.NewRuleResponder(), packs, logger, cfg.Server.MaxUploadBytes)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Stringer("mode", engine.Mode()),
			zap.Strings("endpoints", []string{
				"GET /health",
				"POST /predict",
				"POST /chat",
				"GET /disease-packs",
				"GET /metrics",
			}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
