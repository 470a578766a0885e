package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/coreerr"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/models"
	"github.com/eventface/facecore/internal/observability"
)

// Result is the outcome of matching one embedding against a person pool.
type Result struct {
	PersonID   uuid.UUID
	Distance   float32
	Confidence float32
	Matched    bool
}

// snapshot is an immutable, per-event copy of every stored embedding, taken
// under the cache's write lock and read freely afterwards.
type snapshot struct {
	takenAt time.Time
	rows    []identity.EmbeddingRow
}

// embeddingSource is the slice of identity.Store the matcher needs to build
// its snapshot cache, narrowed so tests can supply a fake in place of Postgres.
type embeddingSource interface {
	AllEmbeddings(ctx context.Context, eventID uuid.UUID) ([]identity.EmbeddingRow, error)
}

// Matcher implements C6: Euclidean nearest-neighbor identity matching with an
// angle/quality-weighted confidence score, backed by a short-lived snapshot
// cache so a batch run doesn't hit Postgres once per face.
type Matcher struct {
	store       embeddingSource
	threshold   float32
	angleWeight map[models.Angle]float32
	ttl         time.Duration

	mu        sync.RWMutex
	snapshots map[uuid.UUID]*snapshot
}

func NewMatcher(store embeddingSource, cfg config.MatchingConfig) *Matcher {
	weights := make(map[models.Angle]float32, len(cfg.AngleWeights))
	for k, v := range cfg.AngleWeights {
		weights[models.Angle(k)] = float32(v)
	}
	return &Matcher{
		store:       store,
		threshold:   float32(cfg.MatchThreshold),
		angleWeight: weights,
		ttl:         time.Duration(cfg.CacheTTLSeconds) * time.Second,
		snapshots:   make(map[uuid.UUID]*snapshot),
	}
}

// Invalidate drops the cached snapshot for an event. Every identity mutation
// (new embedding, evicted embedding, deleted person) must call this before the
// next match against that event can be trusted.
func (m *Matcher) Invalidate(eventID uuid.UUID) {
	m.mu.Lock()
	delete(m.snapshots, eventID)
	m.mu.Unlock()
}

func (m *Matcher) snapshotFor(ctx context.Context, eventID uuid.UUID) (*snapshot, error) {
	m.mu.RLock()
	s, ok := m.snapshots[eventID]
	m.mu.RUnlock()
	if ok && time.Since(s.takenAt) < m.ttl {
		observability.MatchCacheHits.WithLabelValues("hit").Inc()
		return s, nil
	}
	observability.MatchCacheHits.WithLabelValues("miss").Inc()

	rows, err := m.store.AllEmbeddings(ctx, eventID)
	if err != nil {
		return nil, err
	}
	fresh := &snapshot{takenAt: time.Now(), rows: rows}

	m.mu.Lock()
	m.snapshots[eventID] = fresh
	m.mu.Unlock()

	return fresh, nil
}

// Match finds the best person for a query embedding extracted at the given
// angle/quality. It returns Matched=false (not an error) when the closest
// candidate is farther than the threshold, or when the event has no stored
// embeddings at all.
func (m *Matcher) Match(ctx context.Context, eventID uuid.UUID, query []float32, angle models.Angle, quality float32) (Result, error) {
	snap, err := m.snapshotFor(ctx, eventID)
	if err != nil {
		return Result{}, err
	}
	if len(snap.rows) == 0 {
		return Result{Matched: false}, nil
	}

	var best identity.EmbeddingRow
	bestDist := float32(math.MaxFloat32)
	found := false
	for _, row := range snap.rows {
		d := euclidean(query, row.Vector)
		if d < bestDist {
			bestDist = d
			best = row
			found = true
		}
	}
	if !found || bestDist > m.threshold {
		return Result{PersonID: best.PersonID, Distance: bestDist, Matched: false}, nil
	}

	w := m.angleWeight[best.Angle]
	if w == 0 {
		w = 1.0
	}
	confidence := w * (0.7*float32(math.Exp(-float64(bestDist))) + 0.3*quality)

	return Result{
		PersonID:   best.PersonID,
		Distance:   bestDist,
		Confidence: confidence,
		Matched:    true,
	}, nil
}

// Query is one angle-tagged embedding submitted to MatchMulti, typically the
// set of faces extracted from several photos of the same live subject.
type Query struct {
	Embedding []float32
	Angle     models.Angle
	Quality   float32
}

// MatchMulti aggregates several embeddings of (presumably) the same face,
// grouping per-embedding best matches by person, averaging their weighted
// confidence, and returning the best-scoring person whose single closest
// embedding still satisfies the distance threshold.
func (m *Matcher) MatchMulti(ctx context.Context, eventID uuid.UUID, queries []Query) (Result, error) {
	if len(queries) == 0 {
		return Result{}, coreerr.Wrap(coreerr.ErrInput, fmt.Errorf("no queries supplied"))
	}

	type agg struct {
		sumConfidence float32
		n             int
		bestDist      float32
		satisfiesTau  bool
	}
	byPerson := make(map[uuid.UUID]*agg)

	for _, q := range queries {
		res, err := m.Match(ctx, eventID, q.Embedding, q.Angle, q.Quality)
		if err != nil {
			if errors.Is(err, coreerr.ErrMatchingEmpty) {
				continue
			}
			return Result{}, err
		}
		a, ok := byPerson[res.PersonID]
		if !ok {
			a = &agg{bestDist: float32(math.MaxFloat32)}
			byPerson[res.PersonID] = a
		}
		a.n++
		if res.Matched {
			a.sumConfidence += res.Confidence
			if res.Distance < a.bestDist {
				a.bestDist = res.Distance
			}
			a.satisfiesTau = a.satisfiesTau || res.Distance <= m.threshold
		}
	}

	var bestPerson uuid.UUID
	var bestMean float32 = -1
	var bestDist float32
	found := false
	for personID, a := range byPerson {
		if !a.satisfiesTau || a.n == 0 {
			continue
		}
		mean := a.sumConfidence / float32(a.n)
		if mean > bestMean {
			bestMean = mean
			bestPerson = personID
			bestDist = a.bestDist
			found = true
		}
	}
	if !found {
		return Result{Matched: false}, nil
	}
	return Result{PersonID: bestPerson, Distance: bestDist, Confidence: bestMean, Matched: true}, nil
}

// Candidate is one ranked result from Similar.
type Candidate struct {
	PersonID uuid.UUID
	Distance float32
}

// Similar returns the k nearest persons to query by Euclidean distance,
// ignoring the match threshold entirely (unlike Match, this is a ranked
// browse, not a yes/no decision).
func (m *Matcher) Similar(ctx context.Context, eventID uuid.UUID, query []float32, k int) ([]Candidate, error) {
	snap, err := m.snapshotFor(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}

	best := make(map[uuid.UUID]float32)
	for _, row := range snap.rows {
		d := euclidean(query, row.Vector)
		if cur, ok := best[row.PersonID]; !ok || d < cur {
			best[row.PersonID] = d
		}
	}

	out := make([]Candidate, 0, len(best))
	for personID, dist := range best {
		out = append(out, Candidate{PersonID: personID, Distance: dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func euclidean(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.MaxFloat32)
	}
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

var errEmptyPool = emptyPoolErr{}

type emptyPoolErr struct{}

func (emptyPoolErr) Error() string { return "no stored embeddings for event" }
