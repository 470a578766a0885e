package vision

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/eventface/facecore/internal/models"
)

// Detection is one face found by a detector variant.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2 in pixel coordinates
	Confidence float32
	Landmarks  [5][2]float32 // eyes, nose, mouth corners; zero value if the variant has none
	Detector   models.DetectorKind
}

// Variant is one stage of the C1 cascade.
type Variant interface {
	Detect(img image.Image) ([]Detection, error)
	Close()
}

// Cascade runs the detector fallback chain haar -> hog -> dnn -> mtcnn, and on a total
// miss retries the same chain against each enhancement pass in turn.
type Cascade struct {
	haar  *HaarVariant
	hog   *HOGVariant
	dnn   *DNNVariant
	mtcnn *MTCNNVariant
}

// NewCascade wires up whichever variants loaded successfully. A variant that fails to
// load (missing model file) is skipped rather than failing cascade construction, so a
// deployment can run with a partial model set.
func NewCascade(haar *HaarVariant, hog *HOGVariant, dnn *DNNVariant, mtcnn *MTCNNVariant) *Cascade {
	return &Cascade{haar: haar, hog: hog, dnn: dnn, mtcnn: mtcnn}
}

func (c *Cascade) ordered() []Variant {
	var vs []Variant
	if c.haar != nil {
		vs = append(vs, c.haar)
	}
	if c.hog != nil {
		vs = append(vs, c.hog)
	}
	if c.dnn != nil {
		vs = append(vs, c.dnn)
	}
	if c.mtcnn != nil {
		vs = append(vs, c.mtcnn)
	}
	return vs
}

// Detect tries each variant in cascade order against img. If all variants come back
// empty, it reruns the full cascade against each enhancement pass until one succeeds.
// A variant error is logged and treated as a miss so the cascade continues.
func (c *Cascade) Detect(img image.Image) ([]Detection, error) {
	if dets := c.tryAll(img); len(dets) > 0 {
		return dets, nil
	}

	for _, variant := range AllEnhancements {
		enhanced, err := Enhance(img, variant)
		if err != nil {
			slog.Warn("enhancement pass failed", "variant", variant, "error", err)
			continue
		}
		if dets := c.tryAll(enhanced); len(dets) > 0 {
			return dets, nil
		}
	}

	return nil, nil
}

func (c *Cascade) tryAll(img image.Image) []Detection {
	for _, v := range c.ordered() {
		dets, err := v.Detect(img)
		if err != nil {
			slog.Warn("detector variant failed", "error", err)
			continue
		}
		if len(dets) > 0 {
			return nms(dets, 0.4)
		}
	}
	return nil
}

func (c *Cascade) Close() {
	if c.haar != nil {
		c.haar.Close()
	}
	if c.hog != nil {
		c.hog.Close()
	}
	if c.dnn != nil {
		c.dnn.Close()
	}
	if c.mtcnn != nil {
		c.mtcnn.Close()
	}
}

// nms performs Non-Maximum Suppression on detections.
func nms(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if !keep[j] {
				continue
			}
			if iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Detection
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func boxWH(b [4]float32) (float32, float32) {
	return b[2] - b[0], b[3] - b[1]
}

func errNoModel(name string) error {
	return fmt.Errorf("%s: model not configured", name)
}
