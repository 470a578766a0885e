package livescan

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/coreerr"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/internal/models"
	"github.com/eventface/facecore/internal/observability"
	"github.com/eventface/facecore/internal/vision"
)

// State is one of the C8 live-scan session states.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateCaptured   State = "captured"
	StateMatched    State = "matched"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// FailureReason names why a session ended in StateFailed.
type FailureReason string

const (
	FailureNoFace   FailureReason = "no_face"
	FailureNoDevice FailureReason = "no_device"
)

// PersonPhotos is the split individual/group result of a completed scan.
type PersonPhotos struct {
	Individual []models.Photo
	Group      []models.Photo
}

// Session drives one live-scan capture from camera acquisition through person
// lookup. Exactly one camera device is owned by a Session at a time, and the
// device is released on every exit path (completion, timeout, failure, or
// explicit cancel).
type Session struct {
	ID      uuid.UUID
	EventID uuid.UUID

	cfg      config.LiveScanConfig
	matchCfg config.MatchingConfig
	cascade  *vision.Cascade
	embedder *vision.Embedder
	matcher  *match.Matcher
	store    *identity.Store

	mu            sync.Mutex
	state         State
	failureReason FailureReason
	bestQuality   float32
	bestCrop      image.Image
	bestAngle     models.Angle
	personID      uuid.UUID
	cancel        chan struct{}
	done          chan struct{}
}

func NewSession(eventID uuid.UUID, cfg config.LiveScanConfig, matchCfg config.MatchingConfig, cascade *vision.Cascade, embedder *vision.Embedder, matcher *match.Matcher, store *identity.Store) *Session {
	return &Session{
		ID:       uuid.New(),
		EventID:  eventID,
		cfg:      cfg,
		matchCfg: matchCfg,
		cascade:  cascade,
		embedder: embedder,
		matcher:  matcher,
		store:    store,
		state:    StateIdle,
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// PersonID returns the person matched by this session, valid once State is
// StateMatched or StateDone.
func (s *Session) PersonID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personID
}

// Cancel frees the camera on whichever state the session is currently in and
// transitions to Cancelled without emitting partial results.
func (s *Session) Cancel() {
	select {
	case <-s.cancel:
	default:
		close(s.cancel)
	}
}

// Run executes the capture loop, then the match-and-retrieve steps, blocking
// until the session reaches Done, Failed, or Cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateCapturing)
	observability.ActiveLiveScans.Inc()
	defer observability.ActiveLiveScans.Dec()
	defer close(s.done)

	cap, err := gocv.OpenVideoCapture(s.cfg.CameraIndex)
	if err != nil || !cap.IsOpened() {
		s.setState(StateFailed)
		s.failureReason = FailureNoDevice
		return coreerr.Wrap(coreerr.ErrDevice, fmt.Errorf("open camera %d: %w", s.cfg.CameraIndex, err))
	}
	defer cap.Close()

	if err := s.captureLoop(ctx, cap); err != nil {
		return err
	}

	if s.State() == StateCancelled {
		return nil
	}

	if s.bestCrop == nil {
		s.setState(StateFailed)
		s.failureReason = FailureNoFace
		return coreerr.Wrap(coreerr.ErrDetectionMiss, fmt.Errorf("no face acquired before timeout"))
	}

	s.setState(StateCaptured)

	if err := s.matchBestCapture(ctx); err != nil {
		s.setState(StateFailed)
		return err
	}

	s.setState(StateMatched)
	s.setState(StateDone)
	return nil
}

// captureLoop reads frames at native rate, running the cascade + quality
// scorer on every SampleEveryNth frame, tracking the best-quality capture seen
// so far. It returns once a frame clears min_live_quality, the timeout
// elapses with a non-empty best capture, or a cancel signal arrives.
func (s *Session) captureLoop(ctx context.Context, cap *gocv.VideoCapture) error {
	deadline := time.Now().Add(time.Duration(s.cfg.TimeoutSeconds) * time.Second)
	frame := gocv.NewMat()
	defer frame.Close()

	var frameNum int64
	for {
		select {
		case <-s.cancel:
			s.setState(StateCancelled)
			return nil
		case <-ctx.Done():
			s.setState(StateCancelled)
			return nil
		default:
		}

		if !cap.Read(&frame) || frame.Empty() {
			if time.Now().After(deadline) {
				return nil
			}
			continue
		}
		frameNum++
		if frameNum%int64(s.cfg.SampleEveryNth) != 0 {
			if time.Now().After(deadline) && s.bestCrop != nil {
				return nil
			}
			continue
		}

		img, err := matToImage(frame)
		if err != nil {
			slog.Warn("live-scan frame decode failed", "error", err)
			continue
		}

		if err := s.evaluateFrame(img); err != nil {
			slog.Warn("live-scan frame evaluation failed", "error", err)
		}

		if s.bestQuality >= float32(s.cfg.MinLiveQuality) {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
	}
}

// evaluateFrame runs detection + quality scoring on the largest detected face
// and updates the running best capture.
func (s *Session) evaluateFrame(img image.Image) error {
	dets, err := s.cascade.Detect(img)
	if err != nil || len(dets) == 0 {
		return err
	}

	largest := dets[0]
	largestArea := boxArea(largest.BBox)
	for _, d := range dets[1:] {
		if a := boxArea(d.BBox); a > largestArea {
			largest = d
			largestArea = a
		}
	}

	crop := vision.CropBBox(img, largest.BBox[0], largest.BBox[1], largest.BBox[2], largest.BBox[3])
	if crop == nil {
		return nil
	}
	quality, err := vision.ScoreQuality(crop)
	if err != nil {
		return err
	}

	if quality.Overall > s.bestQuality {
		s.bestQuality = quality.Overall
		s.bestCrop = crop
		s.bestAngle = vision.EstimatePose(largest.Landmarks)
	}
	return nil
}

func boxArea(b [4]float32) float32 {
	return (b[2] - b[0]) * (b[3] - b[1])
}

// matchBestCapture runs C4 + C6 against the best crop captured and resolves
// the matched person's photos.
func (s *Session) matchBestCapture(ctx context.Context) error {
	if vision.IsTooSmall(s.bestCrop) {
		return coreerr.Wrap(coreerr.ErrExtraction, fmt.Errorf("best capture too small to embed"))
	}
	embedding, err := s.embedder.Extract(s.bestCrop)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrExtraction, err)
	}

	result, err := s.matcher.Match(ctx, s.EventID, embedding, s.bestAngle, s.bestQuality)
	if err != nil {
		return err
	}
	if !result.Matched {
		return coreerr.Wrap(coreerr.ErrMatchingEmpty, fmt.Errorf("no person matched this capture"))
	}
	s.personID = result.PersonID
	return nil
}

// PhotosForMatch returns the matched person's individual/group photo split.
// Valid only after Run has completed in StateDone.
func (s *Session) PhotosForMatch(ctx context.Context) (*PersonPhotos, error) {
	if s.State() != StateDone {
		return nil, fmt.Errorf("session not in done state")
	}
	individual, group, err := s.store.PhotosForPerson(ctx, s.personID)
	if err != nil {
		return nil, err
	}
	return &PersonPhotos{Individual: individual, Group: group}, nil
}

// matToImage converts a BGR gocv.Mat to an image.Image via a JPEG round trip,
// the same bridge preprocess.go uses in the other direction.
func matToImage(mat gocv.Mat) (image.Image, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return vision.DecodePhoto(buf.GetBytes())
}
