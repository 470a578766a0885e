package vision

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// QualityScore holds the four [0,1] quality signals C3 produces for a face crop.
type QualityScore struct {
	Blur    float32
	Light   float32
	Size    float32
	Overall float32
}

// blurVarianceCeiling is the Laplacian-variance value treated as "perfectly sharp"
// when normalising into [0,1]; empirically this saturates well before typical
// in-focus portrait crops.
const blurVarianceCeiling = 500.0

// sizeScoreFloor and sizeScoreCeiling bound the piecewise-linear size signal:
// a crop whose shortest side is at or below sizeScoreFloor scores 0, at or
// above sizeScoreCeiling scores 1, and ramps linearly in between.
const (
	sizeScoreFloor   = 80.0
	sizeScoreCeiling = 200.0
)

// ScoreQuality computes blur, lighting, size and an overall weighted score for a
// face crop. The weighting (0.4 blur, 0.3 lighting, 0.3 size) favors sharpness,
// since a blurry embedding is the likeliest cause of a bad match.
func ScoreQuality(crop image.Image) (QualityScore, error) {
	mat, err := imageToMat(crop)
	if err != nil {
		return QualityScore{}, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	blur := scoreBlur(gray)
	light := scoreLighting(gray)

	bounds := crop.Bounds()
	shortest := bounds.Dx()
	if bounds.Dy() < shortest {
		shortest = bounds.Dy()
	}
	size := scoreSize(shortest)

	overall := 0.4*blur + 0.3*light + 0.3*size

	return QualityScore{Blur: blur, Light: light, Size: size, Overall: overall}, nil
}

// scoreSize is 0 below sizeScoreFloor, 1 at or above sizeScoreCeiling, and
// ramps linearly in between.
func scoreSize(shortestSidePx int) float32 {
	if shortestSidePx <= sizeScoreFloor {
		return 0
	}
	if shortestSidePx >= sizeScoreCeiling {
		return 1
	}
	return float32(float64(shortestSidePx)-sizeScoreFloor) / float32(sizeScoreCeiling-sizeScoreFloor)
}

// scoreBlur normalises the variance of the Laplacian of gray into [0,1].
func scoreBlur(gray gocv.Mat) float32 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	variance := sd * sd

	return clampF(float32(variance/blurVarianceCeiling), 0, 1)
}

// scoreLighting reduces a 256-bin grayscale histogram to Shannon entropy and
// normalises by the maximum possible entropy (log2(256) = 8 bits).
func scoreLighting(gray gocv.Mat) float32 {
	hist := gocv.NewMat()
	defer hist.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	gocv.CalcHist([]gocv.Mat{gray}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false)

	total := 0.0
	rows := hist.Rows()
	counts := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := float64(hist.GetFloatAt(i, 0))
		counts[i] = v
		total += v
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := c / total
		entropy -= p * math.Log2(p)
	}

	return clampF(float32(entropy/8.0), 0, 1)
}
