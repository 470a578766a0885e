package match

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/coreerr"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/models"
)

type fakeSource struct {
	rows []identity.EmbeddingRow
	err  error
	n    int
}

func (f *fakeSource) AllEmbeddings(ctx context.Context, eventID uuid.UUID) ([]identity.EmbeddingRow, error) {
	f.n++
	return f.rows, f.err
}

func testConfig() config.MatchingConfig {
	return config.MatchingConfig{
		MatchThreshold:     0.60,
		MaxAnglesPerPerson: 5,
		CacheTTLSeconds:    300,
		AngleWeights: map[string]float64{
			"frontal": 1.0, "left_45": 0.8, "right_45": 0.8, "left_90": 0.6, "right_90": 0.6,
		},
	}
}

func TestMatcher_Match(t *testing.T) {
	eventID := uuid.New()
	personA := uuid.New()
	personB := uuid.New()

	src := &fakeSource{rows: []identity.EmbeddingRow{
		{PersonID: personA, Vector: []float32{0, 0, 0}, Angle: models.AngleFrontal, Quality: 0.9},
		{PersonID: personB, Vector: []float32{5, 5, 5}, Angle: models.AngleFrontal, Quality: 0.5},
	}}
	m := NewMatcher(src, testConfig())

	t.Run("matches the nearest embedding within threshold", func(t *testing.T) {
		res, err := m.Match(context.Background(), eventID, []float32{0, 0, 0.1}, models.AngleFrontal, 0.8)
		require.NoError(t, err)
		assert.True(t, res.Matched)
		assert.Equal(t, personA, res.PersonID)
		assert.Greater(t, res.Confidence, float32(0))
	})

	t.Run("reports no match past the threshold", func(t *testing.T) {
		res, err := m.Match(context.Background(), eventID, []float32{50, 50, 50}, models.AngleFrontal, 0.8)
		require.NoError(t, err)
		assert.False(t, res.Matched)
	})

	t.Run("uses the snapshot cache on a second call", func(t *testing.T) {
		_, err := m.Match(context.Background(), eventID, []float32{0, 0, 0}, models.AngleFrontal, 0.8)
		require.NoError(t, err)
		assert.Equal(t, 1, src.n, "second call within the TTL should not hit the store again")
	})

	t.Run("invalidate forces a fresh snapshot", func(t *testing.T) {
		m.Invalidate(eventID)
		_, err := m.Match(context.Background(), eventID, []float32{0, 0, 0}, models.AngleFrontal, 0.8)
		require.NoError(t, err)
		assert.Equal(t, 2, src.n)
	})
}

func TestMatcher_Match_WeightsByStoredEmbeddingAngle(t *testing.T) {
	eventID := uuid.New()
	personA := uuid.New()

	// The query is tagged frontal but the nearest stored embedding is left_90,
	// so confidence must reflect left_90's weight (0.6), not frontal's (1.0).
	src := &fakeSource{rows: []identity.EmbeddingRow{
		{PersonID: personA, Vector: []float32{0, 0, 0}, Angle: models.AngleLeft90, Quality: 0.9},
	}}
	m := NewMatcher(src, testConfig())

	res, err := m.Match(context.Background(), eventID, []float32{0, 0, 0.1}, models.AngleFrontal, 0.8)
	require.NoError(t, err)
	require.True(t, res.Matched)

	dist := euclidean([]float32{0, 0, 0.1}, []float32{0, 0, 0})
	wantWeight := float32(0.6)
	wantConfidence := wantWeight * (0.7*float32(math.Exp(-float64(dist))) + 0.3*0.8)
	assert.InDelta(t, wantConfidence, res.Confidence, 1e-6)
}

func TestMatcher_Match_EmptyPool(t *testing.T) {
	src := &fakeSource{rows: nil}
	m := NewMatcher(src, testConfig())

	res, err := m.Match(context.Background(), uuid.New(), []float32{0, 0, 0}, models.AngleFrontal, 0.5)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestMatcher_MatchMulti(t *testing.T) {
	eventID := uuid.New()
	personA := uuid.New()

	src := &fakeSource{rows: []identity.EmbeddingRow{
		{PersonID: personA, Vector: []float32{0, 0, 0}, Angle: models.AngleFrontal, Quality: 0.9},
	}}
	m := NewMatcher(src, testConfig())

	queries := []Query{
		{Embedding: []float32{0, 0, 0.05}, Angle: models.AngleFrontal, Quality: 0.9},
		{Embedding: []float32{0, 0.05, 0}, Angle: models.AngleLeft45, Quality: 0.7},
	}

	res, err := m.MatchMulti(context.Background(), eventID, queries)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, personA, res.PersonID)
}

func TestMatcher_MatchMulti_NoQueries(t *testing.T) {
	m := NewMatcher(&fakeSource{}, testConfig())
	_, err := m.MatchMulti(context.Background(), uuid.New(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerr.ErrInput))
}

func TestMatcher_Similar(t *testing.T) {
	eventID := uuid.New()
	near := uuid.New()
	far := uuid.New()

	src := &fakeSource{rows: []identity.EmbeddingRow{
		{PersonID: near, Vector: []float32{0, 0, 0}},
		{PersonID: far, Vector: []float32{10, 10, 10}},
	}}
	m := NewMatcher(src, testConfig())

	candidates, err := m.Similar(context.Background(), eventID, []float32{0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, near, candidates[0].PersonID)
}

func TestEuclidean(t *testing.T) {
	assert.Equal(t, float32(5), euclidean([]float32{0, 0}, []float32{3, 4}))
	assert.Equal(t, float32(0), euclidean([]float32{1, 1}, []float32{1, 1}))
	assert.Equal(t, float32(math.MaxFloat32), euclidean([]float32{1}, []float32{1, 2}))
}
