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

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/eventface/facecore/internal/blobstore"
	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/internal/observability"
	"github.com/eventface/facecore/internal/pipeline"
	"github.com/eventface/facecore/internal/queue"
	"github.com/eventface/facecore/internal/vision"
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
	slog.Info("starting facecore photo worker",
		"workers", cfg.Vision.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	store, err := identity.NewStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := blobstore.NewStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	cascade := vision.BuildCascade(cfg.Vision, nil)
	embedder, err := vision.BuildEmbedder(cfg.Vision, nil)
	if err != nil {
		slog.Error("init embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	matcher := match.NewMatcher(store, cfg.Matching)
	processor := pipeline.NewPhotoProcessor(store, blobs, cascade, embedder, matcher, cfg.Matching)

	slog.Info("vision pipeline initialized")

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumePhotoJobs(ctx, "photo-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var job queue.PhotoJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			slog.Error("unmarshal photo job", "error", err)
			return nil
		}
		eventID, err := uuid.Parse(job.EventID)
		if err != nil {
			slog.Error("invalid event id in photo job", "error", err)
			return nil
		}

		if _, err := processor.ProcessPhoto(ctx, eventID, job.StorageKey, job.Filename, job.Force); err != nil {
			return fmt.Errorf("process photo %s: %w", job.StorageKey, err)
		}
		return nil
	}, cfg.Vision.WorkerCount)
	if err != nil {
		slog.Error("start photo job consumer", "error", err)
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
