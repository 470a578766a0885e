package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eventface/facecore/internal/models"
)

func TestEstimatePose(t *testing.T) {
	// Landmark layout: left eye, right eye, nose, left mouth, right mouth.
	// Eyes fixed at x=40/60 (center 50, inter-eye distance 20) for every case;
	// only the nose's x position changes.
	landmarks := func(noseX float32) [5][2]float32 {
		return [5][2]float32{{40, 50}, {60, 50}, {noseX, 70}, {42, 90}, {58, 90}}
	}

	tests := []struct {
		name   string
		noseX  float32
		expect models.Angle
	}{
		{"centered nose is frontal", 50, models.AngleFrontal},
		{"slight left offset stays frontal", 52, models.AngleFrontal},
		{"moderate left offset is a 45 turn", 56, models.AngleLeft45},
		{"large left offset is a 90 profile", 65, models.AngleLeft90},
		{"moderate right offset is a 45 turn", 44, models.AngleRight45},
		{"large right offset is a 90 profile", 35, models.AngleRight90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimatePose(landmarks(tt.noseX))
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestEstimatePose_DegenerateEyes(t *testing.T) {
	lm := [5][2]float32{{50, 50}, {50, 50}, {50, 70}, {45, 90}, {55, 90}}
	assert.Equal(t, models.AngleFrontal, EstimatePose(lm))
}

func TestClampF(t *testing.T) {
	assert.Equal(t, float32(0), clampF(-1, 0, 1))
	assert.Equal(t, float32(1), clampF(2, 0, 1))
	assert.Equal(t, float32(0.5), clampF(0.5, 0, 1))
}

func TestScoreSize(t *testing.T) {
	assert.Equal(t, float32(0), scoreSize(40))
	assert.Equal(t, float32(0), scoreSize(80))
	assert.Equal(t, float32(0.5), scoreSize(140))
	assert.Equal(t, float32(1), scoreSize(200))
	assert.Equal(t, float32(1), scoreSize(260))
}
