package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/blobstore"
	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/coreerr"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/internal/models"
	"github.com/eventface/facecore/internal/observability"
	"github.com/eventface/facecore/internal/vision"
)

// PhotoProcessor is C7: it orchestrates one photo end-to-end (decode, detect,
// pose/quality/embed per face, match-or-create person, associate) inside a
// single outer transaction per photo. Folder/event batches drive it one photo
// at a time through ProcessPhoto (see internal/batch and cmd/worker).
type PhotoProcessor struct {
	store    *identity.Store
	blobs    *blobstore.Store
	cascade  *vision.Cascade
	embedder *vision.Embedder
	matcher  *match.Matcher
	cfg      config.MatchingConfig
}

func NewPhotoProcessor(store *identity.Store, blobs *blobstore.Store, cascade *vision.Cascade, embedder *vision.Embedder, matcher *match.Matcher, cfg config.MatchingConfig) *PhotoProcessor {
	return &PhotoProcessor{store: store, blobs: blobs, cascade: cascade, embedder: embedder, matcher: matcher, cfg: cfg}
}

// FaceOutcome summarizes what happened for one detected face, for API responses.
type FaceOutcome struct {
	PersonID   uuid.UUID
	Angle      models.Angle
	Quality    float32
	Matched    bool
	Confidence float32
}

// PhotoResult is what ProcessPhoto returns for a single photo.
type PhotoResult struct {
	PhotoID uuid.UUID
	Faces   []FaceOutcome
	Skipped bool // already processed and force was not set
}

// ProcessPhoto runs the full pipeline for one photo already stored under
// storageKey in the blob store. If a photo for (eventID, storageKey) already
// exists and is processed, the call is a no-op unless force is true, in which
// case prior detections/associations are deleted before reprocessing.
func (p *PhotoProcessor) ProcessPhoto(ctx context.Context, eventID uuid.UUID, storageKey, filename string, force bool) (*PhotoResult, error) {
	start := time.Now()
	data, err := p.blobs.Open(ctx, storageKey)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrStorage, err)
	}

	img, err := vision.DecodePhoto(data)
	if err != nil {
		observability.PhotosProcessed.WithLabelValues(eventID.String(), "input_error").Inc()
		return nil, coreerr.Wrap(coreerr.ErrInput, err)
	}
	bounds := img.Bounds()

	existing, err := p.store.GetPhotoByStorageKey(ctx, eventID, storageKey)
	if err != nil {
		return nil, err
	}

	var photoID uuid.UUID
	result := &PhotoResult{}

	err = p.store.WithTx(ctx, func(db identity.DBTX) error {
		if existing != nil {
			if existing.Processed && !force {
				photoID = existing.ID
				result.Skipped = true
				return nil
			}
			if force {
				if err := p.store.ResetPhoto(ctx, db, existing.ID); err != nil {
					return err
				}
			}
			photoID = existing.ID
		} else {
			photo, err := p.store.CreatePhoto(ctx, db, eventID, storageKey, filename, bounds.Dx(), bounds.Dy())
			if err != nil {
				return err
			}
			photoID = photo.ID
		}

		detections, err := p.cascade.Detect(img)
		if err != nil {
			return coreerr.Wrap(coreerr.ErrDetectionMiss, err)
		}

		faceCount := len(detections)
		for _, det := range detections {
			outcome, err := p.processFace(ctx, db, eventID, photoID, faceCount, det, img)
			if err != nil {
				slog.Warn("face processing failed, continuing with remaining faces", "photo_id", photoID, "error", err)
				continue
			}
			result.Faces = append(result.Faces, *outcome)
		}

		return p.store.MarkPhotoProcessed(ctx, db, photoID, faceCount)
	})
	if err != nil {
		observability.PhotosProcessed.WithLabelValues(eventID.String(), "error").Inc()
		return nil, err
	}

	if !result.Skipped {
		p.matcher.Invalidate(eventID)
		observability.PhotosProcessed.WithLabelValues(eventID.String(), "ok").Inc()
	}
	observability.StageDuration.WithLabelValues("process_photo").Observe(time.Since(start).Seconds())

	result.PhotoID = photoID
	return result, nil
}

// processFace runs pose/quality/extraction/matching for one detected face and
// persists the resulting rows. A detected-but-unextractable face is still
// recorded (with no person) rather than dropped, per the failure model: the
// face row survives with person_id left null so nothing is silently lost.
func (p *PhotoProcessor) processFace(ctx context.Context, db identity.DBTX, eventID, photoID uuid.UUID, faceCountInPhoto int, det vision.Detection, img image.Image) (*FaceOutcome, error) {
	crop := vision.CropBBox(img, det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3])
	if crop == nil {
		return nil, coreerr.Wrap(coreerr.ErrDetectionMiss, errDegenerateBox)
	}

	angle := vision.EstimatePose(det.Landmarks)
	quality, err := vision.ScoreQuality(crop)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrExtraction, err)
	}

	fd := &models.FaceDetection{
		PhotoID:        photoID,
		BBox:           models.BBox{X1: det.BBox[0], Y1: det.BBox[1], X2: det.BBox[2], Y2: det.BBox[3]},
		Detector:       det.Detector,
		DetConfidence:  det.Confidence,
		Angle:          angle,
		QualityBlur:    quality.Blur,
		QualityLight:   quality.Light,
		QualitySize:    quality.Size,
		QualityOverall: quality.Overall,
	}

	observability.FacesDetected.WithLabelValues(string(det.Detector)).Inc()

	if vision.IsTooSmall(crop) {
		if err := p.store.InsertFaceDetection(ctx, db, fd); err != nil {
			return nil, err
		}
		return &FaceOutcome{Angle: angle, Quality: quality.Overall}, nil
	}

	embedding, err := p.embedder.Extract(crop)
	if err != nil {
		if insertErr := p.store.InsertFaceDetection(ctx, db, fd); insertErr != nil {
			return nil, insertErr
		}
		return &FaceOutcome{Angle: angle, Quality: quality.Overall}, nil
	}

	matchResult, err := p.matcher.Match(ctx, eventID, embedding, angle, quality.Overall)
	if err != nil && !errors.Is(err, coreerr.ErrMatchingEmpty) {
		return nil, err
	}

	var personID uuid.UUID
	var confidence float32
	if matchResult.Matched {
		personID = matchResult.PersonID
		confidence = matchResult.Confidence
	} else {
		person, err := p.store.CreatePerson(ctx, db, eventID, "", nil)
		if err != nil {
			return nil, err
		}
		personID = person.ID
		confidence = 1.0
	}

	fd.PersonID = &personID
	fd.MatchConfidence = &confidence
	if err := p.store.InsertFaceDetection(ctx, db, fd); err != nil {
		return nil, err
	}

	landmarks := vision.BuildLandmarks(fd.ID, det.Landmarks, nil)
	if err := p.store.InsertLandmarks(ctx, db, &landmarks); err != nil {
		return nil, err
	}

	if _, err := p.store.UpsertEmbedding(ctx, db, personID, fd.ID, embedding, angle, quality.Overall, p.cfg.MaxAnglesPerPerson); err != nil {
		return nil, err
	}

	if err := p.store.AssociatePersonPhoto(ctx, db, personID, photoID, faceCountInPhoto, confidence); err != nil {
		return nil, err
	}

	if matchResult.Matched {
		observability.FacesMatched.WithLabelValues(eventID.String()).Inc()
	}

	return &FaceOutcome{
		PersonID:   personID,
		Angle:      angle,
		Quality:    quality.Overall,
		Matched:    matchResult.Matched,
		Confidence: confidence,
	}, nil
}

var errDegenerateBox = degenerateBoxErr{}

type degenerateBoxErr struct{}

func (degenerateBoxErr) Error() string { return "detection bbox degenerates after padding" }
