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

	"github.com/eventface/facecore/internal/api"
	"github.com/eventface/facecore/internal/api/ws"
	"github.com/eventface/facecore/internal/batch"
	"github.com/eventface/facecore/internal/blobstore"
	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/livescan"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/internal/observability"
	"github.com/eventface/facecore/internal/pipeline"
	"github.com/eventface/facecore/internal/queue"
	"github.com/eventface/facecore/internal/vision"
	"github.com/eventface/facecore/pkg/dto"
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
	slog.Info("starting facecore API service", "port", cfg.Server.Port)

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
	if err := blobs.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create batch progress consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeBatchProgress(ctx, "api-batch-progress", func(ctx context.Context, msg jetstream.Msg) error {
		var update dto.BatchProgress
		if err := json.Unmarshal(msg.Data(), &update); err != nil {
			slog.Error("unmarshal batch progress", "error", err)
			return nil
		}
		hub.BroadcastEvent(&dto.WSEvent{
			Type:    "batch_progress",
			BatchID: update.BatchID,
			Data:    update,
		})
		return nil
	})
	if err != nil {
		slog.Warn("start batch progress consumer", "error", err)
	}

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	cascade := vision.BuildCascade(cfg.Vision, nil)
	embedder, err := vision.BuildEmbedder(cfg.Vision, nil)
	if err != nil {
		slog.Error("init embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	matcher := match.NewMatcher(store, cfg.Matching)
	processor := pipeline.NewPhotoProcessor(store, blobs, cascade, embedder, matcher, cfg.Matching)
	runner := batch.NewRunner(processor, blobs, producer)
	scanMgr := livescan.NewManager(cfg.LiveScan, cfg.Matching, cascade, embedder, matcher, store)

	router := api.NewRouter(api.RouterConfig{
		APIKey:    cfg.Server.APIKey,
		Upload:    cfg.Upload,
		Store:     store,
		Blobs:     blobs,
		Producer:  producer,
		Processor: processor,
		Runner:    runner,
		Matcher:   matcher,
		LiveScan:  scanMgr,
		Hub:       hub,
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
