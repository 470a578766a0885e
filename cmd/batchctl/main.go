// Command batchctl runs a one-shot folder batch against a running facecore
// deployment's storage, without going through the HTTP surface. Useful for
// bulk-loading an event's photos from an operator's machine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/google/uuid"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/eventface/facecore/internal/batch"
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
	eventIDStr := flag.String("event", "", "event id to process photos for")
	photosDir := flag.String("dir", "", "directory of photos to ingest")
	force := flag.Bool("force", false, "force reprocessing of already-processed photos")
	flag.Parse()

	if *eventIDStr == "" || *photosDir == "" {
		fmt.Fprintln(os.Stderr, "usage: batchctl -event <uuid> -dir <photos_dir> [-force]")
		os.Exit(2)
	}
	eventID, err := uuid.Parse(*eventIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -event: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

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
	if err := blobs.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Warn("connect to nats (progress updates disabled)", "error", err)
		producer = nil
	}
	if producer != nil {
		defer producer.Close()
		if err := producer.EnsureStreams(context.Background()); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
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
	runner := batch.NewRunner(processor, blobs, producer)

	result, err := runner.RunEventBatch(context.Background(), eventID, *photosDir, *force)
	if err != nil {
		slog.Error("batch run failed", "error", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
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
