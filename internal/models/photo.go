package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Photo is a single uploaded image belonging to an event.
type Photo struct {
	ID         uuid.UUID  `json:"id"`
	EventID    uuid.UUID  `json:"event_id"`
	StorageKey string     `json:"storage_key"`
	Filename   string     `json:"filename"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	FaceCount  int        `json:"face_count"`
	Processed  bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Angle is one of the five discrete pose labels C2 produces.
type Angle string

const (
	AngleFrontal  Angle = "frontal"
	AngleLeft45   Angle = "left_45"
	AngleRight45  Angle = "right_45"
	AngleLeft90   Angle = "left_90"
	AngleRight90  Angle = "right_90"
)

// DetectorKind names which cascade stage produced a detection.
type DetectorKind string

const (
	DetectorHaar  DetectorKind = "haar"
	DetectorHOG   DetectorKind = "hog"
	DetectorDNN   DetectorKind = "dnn"
	DetectorMTCNN DetectorKind = "mtcnn"
)

// BBox is a pixel-space axis-aligned bounding box.
type BBox struct {
	X1, Y1, X2, Y2 float32
}

// Point is a 2-D landmark coordinate in pixel space.
type Point struct {
	X, Y float32
}

// FaceDetection is one face found in a Photo, with its scored attributes.
type FaceDetection struct {
	ID            uuid.UUID    `json:"id"`
	PhotoID       uuid.UUID    `json:"photo_id"`
	BBox          BBox         `json:"bbox"`
	Detector      DetectorKind `json:"detector"`
	DetConfidence float32      `json:"det_confidence"`
	Angle         Angle        `json:"angle"`
	QualityBlur   float32      `json:"quality_blur"`
	QualityLight  float32      `json:"quality_light"`
	QualitySize   float32      `json:"quality_size"`
	QualityOverall float32     `json:"quality_overall"`
	PersonID      *uuid.UUID   `json:"person_id,omitempty"`
	MatchConfidence *float32   `json:"match_confidence,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Landmarks holds the 68-point face geometry and derived measurements for a detection.
type Landmarks struct {
	FaceDetectionID uuid.UUID `json:"face_detection_id"`
	Points          [68]Point `json:"points"`
	Regions         map[string][]Point `json:"regions"`
	EyeDistance     float32   `json:"eye_distance"`
	NoseWidth       float32   `json:"nose_width"`
	JawWidth        float32   `json:"jaw_width"`
	HasGlasses      bool      `json:"has_glasses"`
	HasFacialHair   bool      `json:"has_facial_hair"`
}

// CanonicalRegions are the nine named landmark groupings C4 must produce.
var CanonicalRegions = []string{
	"jaw", "right_eyebrow", "left_eyebrow", "nose_bridge", "nose_tip",
	"right_eye", "left_eye", "outer_lip", "inner_lip",
}

// Person is a single identified individual with bounded, angle-tagged embeddings.
type Person struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	Name        string          `json:"name"`
	Metadata    json.RawMessage `json:"metadata"`
	PhotoCount  int             `json:"photo_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MaxAnglesPerPerson is the hard cap K on embeddings stored per person.
const MaxAnglesPerPerson = 5

// Embedding is one of a Person's up-to-K stored feature vectors, tagged with the
// pose angle it was extracted under.
type Embedding struct {
	ID              uuid.UUID `json:"id"`
	PersonID        uuid.UUID `json:"person_id"`
	FaceDetectionID uuid.UUID `json:"face_detection_id"`
	Vector          []float32 `json:"-"`
	Angle           Angle     `json:"angle"`
	Quality         float32   `json:"quality"`
	IsPrimary       bool      `json:"is_primary"`
	CreatedAt       time.Time `json:"created_at"`
}

// PersonPhoto is the idempotent association between a Person and a Photo they appear in.
type PersonPhoto struct {
	PersonID uuid.UUID `json:"person_id"`
	PhotoID  uuid.UUID `json:"photo_id"`
	Confidence float32 `json:"confidence"`
	CreatedAt time.Time `json:"created_at"`
}
