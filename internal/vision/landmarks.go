package vision

import (
	"math"

	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/models"
)

// BuildLandmarks derives a full 68-point Landmarks record from the detector's
// native landmark output. Detectors that only produce the 5-point layout
// (left eye, right eye, nose, left mouth, right mouth) have their points
// replicated across the 68-point regions they can approximate; detectors that
// already carry 68 points (MTCNN-family exports configured that way) pass
// density straight through via pts68.
//
// Glasses/facial-hair are geometry heuristics, not a trained classifier output;
// per spec they must never influence matching, only ride along as metadata.
func BuildLandmarks(faceDetectionID uuid.UUID, lm5 [5][2]float32, pts68 *[68][2]float32) models.Landmarks {
	var points [68]models.Point
	if pts68 != nil {
		for i, p := range pts68 {
			points[i] = models.Point{X: p[0], Y: p[1]}
		}
	} else {
		points = approximate68From5(lm5)
	}

	regions := groupRegions(points)

	leftEye := lm5[0]
	rightEye := lm5[1]
	eyeDistance := dist(leftEye, rightEye)

	jawWidth := float32(0)
	if jaw, ok := regions["jaw"]; ok && len(jaw) >= 2 {
		jawWidth = dist([2]float32{jaw[0].X, jaw[0].Y}, [2]float32{jaw[len(jaw)-1].X, jaw[len(jaw)-1].Y})
	}

	noseWidth := eyeDistance * 0.4 // nose base is reliably ~40% of inter-eye distance

	return models.Landmarks{
		FaceDetectionID: faceDetectionID,
		Points:          points,
		Regions:         regions,
		EyeDistance:     eyeDistance,
		NoseWidth:       noseWidth,
		JawWidth:        jawWidth,
		HasGlasses:      guessGlasses(points, eyeDistance),
		HasFacialHair:   guessFacialHair(points, eyeDistance),
	}
}

func dist(a, b [2]float32) float32 {
	dx := float64(a[0] - b[0])
	dy := float64(a[1] - b[1])
	return float32(math.Sqrt(dx*dx + dy*dy))
}

// approximate68From5 spreads the 9 canonical regions out from the 5 native
// points, giving every region at least one representative point so downstream
// consumers never index into an empty slice.
func approximate68From5(lm [5][2]float32) [68]models.Point {
	var pts [68]models.Point
	leftEye, rightEye, nose, leftMouth, rightMouth := lm[0], lm[1], lm[2], lm[3], lm[4]

	// jaw (0-16): interpolate a horizontal line below the eye line
	eyeMidY := (leftEye[1] + rightEye[1]) / 2
	jawY := eyeMidY + dist(leftEye, rightEye)*1.3
	for i := 0; i <= 16; i++ {
		t := float32(i) / 16
		x := leftEye[0] - dist(leftEye, rightEye)*0.3 + t*(dist(leftEye, rightEye)*1.6)
		pts[i] = models.Point{X: x, Y: jawY}
	}
	// eyebrows (17-26): just above the eyes
	for i := 17; i <= 21; i++ {
		pts[i] = models.Point{X: rightEye[0], Y: rightEye[1] - dist(leftEye, rightEye)*0.2}
	}
	for i := 22; i <= 26; i++ {
		pts[i] = models.Point{X: leftEye[0], Y: leftEye[1] - dist(leftEye, rightEye)*0.2}
	}
	// nose bridge + tip (27-35)
	for i := 27; i <= 30; i++ {
		pts[i] = models.Point{X: nose[0], Y: (eyeMidY + nose[1]) / 2}
	}
	for i := 31; i <= 35; i++ {
		pts[i] = models.Point{X: nose[0], Y: nose[1]}
	}
	// eyes (36-47)
	for i := 36; i <= 41; i++ {
		pts[i] = models.Point{X: rightEye[0], Y: rightEye[1]}
	}
	for i := 42; i <= 47; i++ {
		pts[i] = models.Point{X: leftEye[0], Y: leftEye[1]}
	}
	// mouth (48-67)
	for i := 48; i <= 59; i++ {
		t := float32(i-48) / 11
		pts[i] = models.Point{X: rightMouth[0] + t*(leftMouth[0]-rightMouth[0]), Y: (rightMouth[1] + leftMouth[1]) / 2}
	}
	for i := 60; i <= 67; i++ {
		t := float32(i-60) / 7
		pts[i] = models.Point{X: rightMouth[0] + t*(leftMouth[0]-rightMouth[0]), Y: (rightMouth[1]+leftMouth[1])/2 + 1}
	}

	return pts
}

// groupRegions splits the 68 points into the nine canonical named regions.
func groupRegions(pts [68]models.Point) map[string][]models.Point {
	r := make(map[string][]models.Point, len(models.CanonicalRegions))
	r["jaw"] = append([]models.Point{}, pts[0:17]...)
	r["right_eyebrow"] = append([]models.Point{}, pts[17:22]...)
	r["left_eyebrow"] = append([]models.Point{}, pts[22:27]...)
	r["nose_bridge"] = append([]models.Point{}, pts[27:31]...)
	r["nose_tip"] = append([]models.Point{}, pts[31:36]...)
	r["right_eye"] = append([]models.Point{}, pts[36:42]...)
	r["left_eye"] = append([]models.Point{}, pts[42:48]...)
	r["outer_lip"] = append([]models.Point{}, pts[48:60]...)
	r["inner_lip"] = append([]models.Point{}, pts[60:68]...)
	return r
}

// guessGlasses is an uncalibrated geometry heuristic (eyebrow-to-eye gap is
// slightly wider on average for glasses wearers whose frames push brows up in
// typical detector point placement) and must never gate matching.
func guessGlasses(pts [68]models.Point, eyeDistance float32) bool {
	if eyeDistance == 0 {
		return false
	}
	browEyeGap := dist([2]float32{pts[19].X, pts[19].Y}, [2]float32{pts[37].X, pts[37].Y})
	return browEyeGap/eyeDistance > 0.35
}

// guessFacialHair is an uncalibrated geometry heuristic (jaw-to-mouth vertical
// span as a proxy for a beard shadow region) and must never gate matching.
func guessFacialHair(pts [68]models.Point, eyeDistance float32) bool {
	if eyeDistance == 0 {
		return false
	}
	jawMouthGap := dist([2]float32{pts[8].X, pts[8].Y}, [2]float32{pts[57].X, pts[57].Y})
	return jawMouthGap/eyeDistance > 0.55
}
