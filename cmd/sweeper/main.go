package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/config"
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

	interval := time.Duration(cfg.Compliance.SweepIntervalMinutes) * time.Minute
	slog.Info("starting idgate compliance sweeper", "interval", interval)

	db, err := storage.NewPostgresStore(cfg.Database, cfg.Recognition.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	engine := compliance.NewEngine(cfg.Compliance.DefaultWarningDays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("sweeper metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		sweep(ctx, db, engine, producer)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx, db, engine, producer)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down sweeper...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("sweeper stopped")
}

// sweep re-evaluates the whole active population and publishes a
// notification for every person inside a warning window or already
// expired.
func sweep(ctx context.Context, db *storage.PostgresStore, engine *compliance.Engine, producer *queue.Producer) {
	start := time.Now()
	defs, err := db.GetAttributeDefinitions(ctx)
	if err != nil {
		slog.Error("sweep: load attribute definitions", "error", err)
		return
	}

	const pageSize = 200
	var (
		offset     int
		checked    int
		notified   int
		attention  int
		expiringNo int
	)

	for {
		persons, total, err := db.ListPersons(ctx, pageSize, offset)
		if err != nil {
			slog.Error("sweep: list persons", "error", err)
			return
		}
		if len(persons) == 0 {
			break
		}

		for i := range persons {
			res, err := engine.Evaluate(defs, persons[i].Values, start)
			if err != nil {
				slog.Error("sweep: evaluate person", "person_id", persons[i].ID, "error", err)
				continue
			}
			checked++
			observability.ComplianceChecks.WithLabelValues(string(res.Status)).Inc()
			expiringNo += len(res.Warnings)

			if res.Status != compliance.StatusWarning && res.Status != compliance.StatusExpired {
				continue
			}
			attention++

			issues := append(res.Errors, res.Warnings...)
			note := dto.ExpiryNotification{
				PersonID:  persons[i].ID,
				FullName:  persons[i].FullName(),
				Status:    res.Status,
				Issues:    issues,
				CheckedAt: res.CheckedAt,
			}
			if err := producer.PublishExpiry(ctx, note); err != nil {
				slog.Error("sweep: publish notification", "person_id", persons[i].ID, "error", err)
				continue
			}
			notified++
		}

		offset += len(persons)
		if offset >= total {
			break
		}
	}

	observability.ExpiringAttributes.Set(float64(expiringNo))
	slog.Info("compliance sweep finished",
		"checked", checked,
		"needs_attention", attention,
		"notified", notified,
		"expiring_attributes", expiringNo,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
