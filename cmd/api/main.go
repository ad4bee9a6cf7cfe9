package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/idgate/internal/api"
	"github.com/your-org/idgate/internal/api/handlers"
	"github.com/your-org/idgate/internal/api/ws"
	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/config"
	"github.com/your-org/idgate/internal/embed"
	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/observability"
	"github.com/your-org/idgate/internal/queue"
	"github.com/your-org/idgate/internal/storage"
	"github.com/your-org/idgate/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting idgate API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database, cfg.Recognition.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("migrate schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Consume scan audit events: persist to the DB and broadcast to
	// dashboard WebSocket clients.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create scan event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeScans(ctx, "api-scan-events", func(ctx context.Context, msg jetstream.Msg) error {
		var evt dto.ScanEventDTO
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			return err
		}

		event := &models.ScanEvent{
			ID:          evt.ID,
			PersonID:    evt.PersonID,
			RequesterID: evt.RequesterID,
			Method:      evt.Method,
			Variant:     evt.Variant,
			Confidence:  evt.Confidence,
			Distance:    evt.Distance,
			Result:      evt.Result,
			Reasons:     evt.Reasons,
		}
		if err := db.CreateScanEvent(ctx, event); err != nil {
			slog.Error("store scan event", "error", err)
		}
		evt.CreatedAt = event.CreatedAt

		hub.BroadcastEvent(&dto.WSEvent{Type: "scan", Data: evt})
		return nil
	})
	if err != nil {
		slog.Warn("start scan event consumer", "error", err)
	}

	// Relay sweeper expiry notifications to the dashboard feed.
	err = consumer.ConsumeExpiry(ctx, "api-expiry-events", func(ctx context.Context, msg jetstream.Msg) error {
		var note dto.ExpiryNotification
		if err := json.Unmarshal(msg.Data(), &note); err != nil {
			return err
		}
		hub.BroadcastExpiry(&note)
		return nil
	})
	if err != nil {
		slog.Warn("start expiry consumer", "error", err)
	}

	// Initialize ONNX Runtime for server-side embedding. Optional: when no
	// model is configured, kiosks must submit vectors directly.
	var embedFn func([]float32) ([]float32, error)

	if cfg.Recognition.ModelPath != "" {
		ort.SetSharedLibraryPath(getONNXLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			slog.Warn("onnx runtime init failed — crop embedding unavailable", "error", err)
		} else {
			embedder, err := embed.NewEmbedder(cfg.Recognition.ModelPath, cfg.Recognition.EmbeddingDim)
			if err != nil {
				slog.Warn("embedding model init failed — crop embedding unavailable", "error", err)
			} else {
				embedFn = embedder.Extract
				defer embedder.Close()
				defer ort.DestroyEnvironment()
				slog.Info("embedding model ready", "path", cfg.Recognition.ModelPath)
			}
		}
	}

	settings := handlers.NewSettings(cfg.Recognition.Threshold, cfg.Recognition.ThresholdConfidence)

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		MinIO:      minioStore,
		Producer:   producer,
		Hub:        hub,
		Compliance: compliance.NewEngine(cfg.Compliance.DefaultWarningDays),
		Settings:   settings,
		FallbackScanner: models.ScannerConfig{
			EnabledModes:  []models.ScanMode{models.ScanModeFace, models.ScanModeText},
			DefaultMode:   models.ScanModeFace,
			MinConfidence: cfg.Recognition.ThresholdConfidence,
		},
		EmbeddingDim: cfg.Recognition.EmbeddingDim,
		EmbedFn:      embedFn,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
