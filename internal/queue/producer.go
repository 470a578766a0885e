package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// PhotosStreamName is the work-queue stream carrying individual
	// photo-processing jobs enqueued by a batch event submission.
	PhotosStreamName   = "PHOTOS"
	PhotosSubjectBase  = "photos"

	// BatchProgressStreamName carries per-batch progress updates the API
	// relays to clients over the websocket hub.
	BatchProgressStreamName  = "BATCH_PROGRESS"
	BatchProgressSubjectBase = "batch"
)

// PhotoJob is one unit of work on the PHOTOS stream: one photo, already
// uploaded to the blob store, waiting to be run through the pipeline.
type PhotoJob struct {
	EventID    string `json:"event_id"`
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename"`
	Force      bool   `json:"force"`
}

// Producer publishes photo jobs and batch progress updates to JetStream.
type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates or updates the PHOTOS and BATCH_PROGRESS streams,
// retrying while NATS is still coming up alongside the rest of the stack.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	configs := []jetstream.StreamConfig{
		{
			Name:        PhotosStreamName,
			Subjects:    []string{PhotosSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      5 * time.Minute,
			MaxMsgs:     100000,
			MaxBytes:    1 << 30,
			Discard:     jetstream.DiscardOld,
			Duplicates:  30 * time.Second,
		},
		{
			Name:       BatchProgressStreamName,
			Subjects:   []string{BatchProgressSubjectBase + ".>"},
			Retention:  jetstream.InterestPolicy,
			MaxAge:     24 * time.Hour,
			MaxMsgs:    1000000,
		},
	}

	var lastErr error
	for attempt := 0; attempt < 30; attempt++ {
		lastErr = nil
		for _, cfg := range configs {
			if _, err := p.js.CreateOrUpdateStream(ctx, cfg); err != nil {
				lastErr = fmt.Errorf("create or update stream %s: %w", cfg.Name, err)
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return lastErr
}

// PublishPhotoJob enqueues one photo for processing under the given batch.
func (p *Producer) PublishPhotoJob(ctx context.Context, batchID string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal photo job: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", PhotosSubjectBase, batchID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish photo job: %w", err)
	}
	return nil
}

// PublishBatchProgress announces a progress update for a running batch.
func (p *Producer) PublishBatchProgress(ctx context.Context, batchID string, update any) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal batch progress: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", BatchProgressSubjectBase, batchID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish batch progress: %w", err)
	}
	return nil
}

// QueueDepth reports the number of pending messages on the PHOTOS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, PhotosStreamName)
	if err != nil {
		return 0, fmt.Errorf("get stream %s: %w", PhotosStreamName, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream info: %w", err)
	}
	return info.State.Msgs, nil
}

// Ping reports whether the underlying NATS connection is alive.
func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats connection not established")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
