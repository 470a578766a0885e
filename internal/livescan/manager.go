package livescan

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/internal/vision"
)

// Manager tracks in-flight and completed live-scan sessions, one per
// /scan/capture call, retrievable by /scan/match afterward.
type Manager struct {
	cfg      config.LiveScanConfig
	matchCfg config.MatchingConfig
	cascade  *vision.Cascade
	embedder *vision.Embedder
	matcher  *match.Matcher
	store    *identity.Store

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewManager(cfg config.LiveScanConfig, matchCfg config.MatchingConfig, cascade *vision.Cascade, embedder *vision.Embedder, matcher *match.Matcher, store *identity.Store) *Manager {
	return &Manager{
		cfg: cfg, matchCfg: matchCfg, cascade: cascade, embedder: embedder, matcher: matcher, store: store,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Capture creates a session, overriding defaults from cfg where provided, and
// runs it to completion before returning.
func (m *Manager) Capture(ctx context.Context, eventID uuid.UUID, cameraIndex *int, timeoutSeconds *int, minQuality *float64) (*Session, error) {
	cfg := m.cfg
	if cameraIndex != nil {
		cfg.CameraIndex = *cameraIndex
	}
	if timeoutSeconds != nil {
		cfg.TimeoutSeconds = *timeoutSeconds
	}
	if minQuality != nil {
		cfg.MinLiveQuality = *minQuality
	}

	session := NewSession(eventID, cfg, m.matchCfg, m.cascade, m.embedder, m.matcher, m.store)

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	err := session.Run(ctx)
	return session, err
}

// Get retrieves a previously captured session by ID.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("scan session not found")
	}
	return s, nil
}

// Cancel signals an in-flight session to stop.
func (m *Manager) Cancel(id uuid.UUID) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Cancel()
	return nil
}
