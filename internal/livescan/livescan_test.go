package livescan

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventface/facecore/internal/config"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(uuid.New(), config.LiveScanConfig{}, config.MatchingConfig{}, nil, nil, nil, nil)
}

func TestSession_InitialState(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, uuid.Nil, s.PersonID())
}

func TestSession_SetState(t *testing.T) {
	s := newTestSession(t)
	s.setState(StateCapturing)
	assert.Equal(t, StateCapturing, s.State())
	s.setState(StateDone)
	assert.Equal(t, StateDone, s.State())
}

func TestSession_Cancel_IsIdempotent(t *testing.T) {
	s := newTestSession(t)
	assert.NotPanics(t, func() {
		s.Cancel()
		s.Cancel()
	})
	select {
	case <-s.cancel:
	default:
		t.Fatal("cancel channel should be closed after Cancel()")
	}
}

func TestSession_PhotosForMatch_RequiresDoneState(t *testing.T) {
	s := newTestSession(t)

	_, err := s.PhotosForMatch(context.Background())
	require.Error(t, err)

	s.setState(StateMatched)
	_, err = s.PhotosForMatch(context.Background())
	require.Error(t, err, "matched but not yet done should still be rejected")
}

func TestBoxArea(t *testing.T) {
	assert.Equal(t, float32(200), boxArea([4]float32{10, 10, 30, 20}))
	assert.Equal(t, float32(0), boxArea([4]float32{10, 10, 10, 20}))
}
