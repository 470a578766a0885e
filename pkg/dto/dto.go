// Package dto holds the wire-format request/response shapes for the HTTP
// surface, kept separate from internal/models so storage and transport can
// evolve independently.
package dto

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every HTTP response in the common success/message/data shape.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func Ok(data any) Envelope {
	return Envelope{Success: true, Data: data, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func Fail(message string) Envelope {
	return Envelope{Success: false, Message: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// UploadPhotoResponse is returned by POST /photos/upload.
type UploadPhotoResponse struct {
	PhotoID    uuid.UUID `json:"photo_id"`
	StorageKey string    `json:"storage_key"`
}

// ProcessEventRequest is the body of POST /photos/process-event.
type ProcessEventRequest struct {
	EventID        uuid.UUID `json:"event_id" binding:"required"`
	PhotosDir      string    `json:"photos_dir" binding:"required"`
	ForceReprocess bool      `json:"force_reprocess"`
}

// PhotoError records one photo's failure within a batch run.
type PhotoError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// ProcessEventResponse is the batch contract result for process-event.
type ProcessEventResponse struct {
	Total      int          `json:"total"`
	Processed  int          `json:"processed"`
	TotalFaces int          `json:"total_faces"`
	Errors     []PhotoError `json:"errors"`
}

// ScanCaptureRequest starts a live-scan session.
type ScanCaptureRequest struct {
	EventID    uuid.UUID `json:"event_id" binding:"required"`
	CameraIndex *int     `json:"camera_index,omitempty"`
	TimeoutSeconds *int  `json:"timeout_seconds,omitempty"`
	MinQuality *float64  `json:"min_quality,omitempty"`
}

// ScanCaptureResponse reports a session's terminal state after Run completes.
type ScanCaptureResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
}

// ScanMatchRequest names the session to retrieve a match result for.
type ScanMatchRequest struct {
	SessionID uuid.UUID `json:"session_id" binding:"required"`
}

// PersonPhotosResponse is the individual/group split returned by scan/match
// and the search/person/:id/photos endpoint.
type PersonPhotosResponse struct {
	PersonID   uuid.UUID      `json:"person_id"`
	Individual []PhotoSummary `json:"individual"`
	Group      []PhotoSummary `json:"group"`
}

// PhotoSummary is the photo projection exposed over the wire.
type PhotoSummary struct {
	PhotoID   uuid.UUID `json:"photo_id"`
	Filename  string    `json:"filename"`
	FaceCount int       `json:"face_count"`
}

// SimilarFacesRequest carries a raw query embedding for a k-NN search.
type SimilarFacesRequest struct {
	EventID   uuid.UUID `json:"event_id" binding:"required"`
	Embedding []float32 `json:"embedding" binding:"required"`
	K         int       `json:"k"`
}

// SimilarFace is one candidate returned by similar-faces search.
type SimilarFace struct {
	PersonID uuid.UUID `json:"person_id"`
	Distance float32   `json:"distance"`
}

// SystemStatusResponse reports dependency health and queue depth.
type SystemStatusResponse struct {
	Database    string `json:"database"`
	BlobStore   string `json:"blob_store"`
	Queue       string `json:"queue"`
	QueueDepth  uint64 `json:"queue_depth"`
	ActiveScans int    `json:"active_live_scans"`
}

// WSEvent is relayed over the websocket hub to subscribed clients.
type WSEvent struct {
	Type    string    `json:"type"`
	BatchID string    `json:"batch_id,omitempty"`
	Data    any       `json:"data"`
}

// BatchProgress is the payload published to the BATCH_PROGRESS stream and
// relayed to websocket clients as a batch runs.
type BatchProgress struct {
	EventID   uuid.UUID `json:"event_id"`
	BatchID   string    `json:"batch_id"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Done      bool      `json:"done"`
}
