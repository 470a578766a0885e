package vision

import (
	"github.com/eventface/facecore/internal/models"
)

// EstimatePose classifies a face into one of five discrete angle labels using the
// 5-point landmark layout (left eye, right eye, nose, left mouth corner, right
// mouth corner) that the MTCNN variant produces. The nose tip's horizontal
// offset from the eye-center, normalised by inter-eye distance, drives the split:
// a centered nose is frontal, a moderate offset is a 45 degree turn, and a large
// offset (nose near or past one eye) is a 90 degree profile. Haar, HOG and DNN
// detections carry all-zero landmarks, so their inter-eye distance is zero and
// they are always reported frontal; the face's pixels are not examined.
func EstimatePose(lm [5][2]float32) models.Angle {
	leftEye := lm[0]
	rightEye := lm[1]
	nose := lm[2]

	eyeCenterX := (leftEye[0] + rightEye[0]) / 2
	eyeDist := rightEye[0] - leftEye[0]
	if eyeDist == 0 {
		return models.AngleFrontal
	}

	offset := (nose[0] - eyeCenterX) / eyeDist

	switch {
	case offset <= -0.5:
		return models.AngleRight90
	case offset <= -0.15:
		return models.AngleRight45
	case offset < 0.15:
		return models.AngleFrontal
	case offset < 0.5:
		return models.AngleLeft45
	default:
		return models.AngleLeft90
	}
}
