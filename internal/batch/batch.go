// Package batch walks a folder of photos for one event and drives each
// through the C7 pipeline, publishing progress as it goes. The walk/lifecycle
// shape is adapted from the teacher's stream ingestion manager, repointed from
// a long-lived video feed to a one-shot folder batch.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/blobstore"
	"github.com/eventface/facecore/internal/pipeline"
	"github.com/eventface/facecore/internal/queue"
	"github.com/eventface/facecore/pkg/dto"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
}

// Runner processes a directory of photos for one event.
type Runner struct {
	processor *pipeline.PhotoProcessor
	blobs     *blobstore.Store
	producer  *queue.Producer
}

func NewRunner(processor *pipeline.PhotoProcessor, blobs *blobstore.Store, producer *queue.Producer) *Runner {
	return &Runner{processor: processor, blobs: blobs, producer: producer}
}

// RunEventBatch walks photosDir, uploads each image to the blob store under
// events/<eventID>/<filename> if not already present, and runs it through the
// photo pipeline. One photo's failure is recorded in Errors and does not stop
// the rest of the batch, per the batch contract.
func (r *Runner) RunEventBatch(ctx context.Context, eventID uuid.UUID, photosDir string, force bool) (*dto.ProcessEventResponse, error) {
	entries, err := os.ReadDir(photosDir)
	if err != nil {
		return nil, fmt.Errorf("read photos dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}

	batchID := uuid.New().String()
	resp := &dto.ProcessEventResponse{Total: len(files)}

	for i, filename := range files {
		storageKey := fmt.Sprintf("events/%s/%s", eventID, filename)

		if err := r.ensureUploaded(ctx, photosDir, filename, storageKey); err != nil {
			resp.Errors = append(resp.Errors, dto.PhotoError{Filename: filename, Error: err.Error()})
			r.reportProgress(ctx, eventID, batchID, len(files), i+1, false)
			continue
		}

		result, err := r.processor.ProcessPhoto(ctx, eventID, storageKey, filename, force)
		if err != nil {
			slog.Warn("batch photo failed", "event_id", eventID, "filename", filename, "error", err)
			resp.Errors = append(resp.Errors, dto.PhotoError{Filename: filename, Error: err.Error()})
			r.reportProgress(ctx, eventID, batchID, len(files), i+1, false)
			continue
		}

		resp.Processed++
		resp.TotalFaces += len(result.Faces)
		r.reportProgress(ctx, eventID, batchID, len(files), i+1, false)
	}

	r.reportProgress(ctx, eventID, batchID, len(files), len(files), true)
	return resp, nil
}

func (r *Runner) ensureUploaded(ctx context.Context, photosDir, filename, storageKey string) error {
	if _, err := r.blobs.Open(ctx, storageKey); err == nil {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(photosDir, filename))
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	contentType := "image/jpeg"
	if strings.ToLower(filepath.Ext(filename)) == ".png" {
		contentType = "image/png"
	}
	return r.blobs.Put(ctx, storageKey, data, contentType)
}

func (r *Runner) reportProgress(ctx context.Context, eventID uuid.UUID, batchID string, total, completed int, done bool) {
	if r.producer == nil {
		return
	}
	update := dto.BatchProgress{EventID: eventID, BatchID: batchID, Total: total, Completed: completed, Done: done}
	if err := r.producer.PublishBatchProgress(ctx, batchID, update); err != nil {
		slog.Warn("publish batch progress failed", "error", err)
	}
}
