package vision

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/eventface/facecore/internal/models"
)

// hogConfidence is the synthetic confidence HOG detections are tagged with;
// pigo's cluster score isn't a calibrated probability.
const hogConfidence = 0.90

// HOGVariant is the cascade's second stage: a pure-Go pixel-intensity-comparison
// classifier (pigo), used where cgo/OpenCV is unavailable or as a fallback before
// the heavier DNN/MTCNN stages.
type HOGVariant struct {
	classifier *pigo.Pigo
	minSize    int
	maxSize    int
	shiftFactor float64
	scaleFactor float64
	iouThreshold float64
	minConfidence float32
}

// NewHOGVariant loads a pigo binary cascade file (commonly named "facefinder").
func NewHOGVariant(cascadePath string) (*HOGVariant, error) {
	if cascadePath == "" {
		return nil, errNoModel("hog")
	}
	raw, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read pigo cascade: %w", err)
	}
	p := pigo.NewPigo()
	classifier, err := p.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("unpack pigo cascade: %w", err)
	}
	return &HOGVariant{
		classifier:    classifier,
		minSize:       40,
		maxSize:       1000,
		shiftFactor:   0.1,
		scaleFactor:   1.1,
		iouThreshold:  0.2,
		minConfidence: 5.0,
	}, nil
}

func (h *HOGVariant) Detect(img image.Image) ([]Detection, error) {
	pixels := pigo.RgbToGrayscale(img)
	bounds := img.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y

	params := pigo.CascadeParams{
		MinSize:     h.minSize,
		MaxSize:     h.maxSize,
		ShiftFactor: h.shiftFactor,
		ScaleFactor: h.scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   height,
			Cols:   width,
			Dim:    width,
		},
	}

	raw := h.classifier.RunCascade(params, 0.0)
	raw = h.classifier.ClusterDetections(raw, h.iouThreshold)

	dets := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if float32(d.Q) < h.minConfidence {
			continue
		}
		half := float32(d.Scale) / 2
		x1 := float32(d.Col) - half
		y1 := float32(d.Row) - half
		dets = append(dets, Detection{
			BBox:       [4]float32{x1, y1, x1 + float32(d.Scale), y1 + float32(d.Scale)},
			Confidence: hogConfidence,
			Detector:   models.DetectorHOG,
		})
	}
	return dets, nil
}

func (h *HOGVariant) Close() {}
