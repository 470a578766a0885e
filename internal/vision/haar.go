package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/eventface/facecore/internal/models"
)

// haarConfidence is the synthetic confidence Haar detections are tagged with;
// Viola-Jones produces no calibrated score of its own.
const haarConfidence = 0.75

// haarScaleFactor, haarMinNeighbors and haarMinSize are the fixed
// DetectMultiScale parameters for both the frontal and profile cascades.
var (
	haarScaleFactor  = 1.1
	haarMinNeighbors = 5
	haarMinSize      = image.Pt(30, 30)
	haarMaxSize      = image.Pt(0, 0)
)

// HaarVariant is the first, cheapest stage of the cascade: OpenCV's classic
// Viola-Jones classifier, run with both a frontal-face and a profile-face
// cascade so side-on faces aren't missed entirely at this stage.
type HaarVariant struct {
	frontal    gocv.CascadeClassifier
	profile    gocv.CascadeClassifier
	hasProfile bool
}

// NewHaarVariant loads a frontal Haar cascade XML file (e.g.
// haarcascade_frontalface_default.xml) and, if profilePath is non-empty, a
// second cascade for side-on faces (e.g. haarcascade_profileface.xml).
func NewHaarVariant(frontalPath, profilePath string) (*HaarVariant, error) {
	if frontalPath == "" {
		return nil, errNoModel("haar")
	}
	frontal := gocv.NewCascadeClassifier()
	if !frontal.Load(frontalPath) {
		frontal.Close()
		return nil, fmt.Errorf("load haar frontal cascade %s", frontalPath)
	}

	profile := gocv.NewCascadeClassifier()
	hasProfile := false
	if profilePath != "" {
		if !profile.Load(profilePath) {
			profile.Close()
			frontal.Close()
			return nil, fmt.Errorf("load haar profile cascade %s", profilePath)
		}
		hasProfile = true
	}

	return &HaarVariant{frontal: frontal, profile: profile, hasProfile: hasProfile}, nil
}

func (h *HaarVariant) Detect(img image.Image) ([]Detection, error) {
	mat, err := imageToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	rects := h.frontal.DetectMultiScaleWithParams(gray, haarScaleFactor, haarMinNeighbors, 0, haarMinSize, haarMaxSize)
	if h.hasProfile {
		rects = append(rects, h.profile.DetectMultiScaleWithParams(gray, haarScaleFactor, haarMinNeighbors, 0, haarMinSize, haarMaxSize)...)
	}

	dets := make([]Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, Detection{
			BBox:       [4]float32{float32(r.Min.X), float32(r.Min.Y), float32(r.Max.X), float32(r.Max.Y)},
			Confidence: haarConfidence,
			Detector:   models.DetectorHaar,
		})
	}
	return dets, nil
}

func (h *HaarVariant) Close() {
	h.frontal.Close()
	if h.hasProfile {
		h.profile.Close()
	}
}
