package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/coreerr"
	"github.com/eventface/facecore/internal/models"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// method below can run either standalone or as one step of a caller-owned
// transaction (needed by the photo pipeline's single-transaction-per-photo
// rule).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pool is the slice of *pgxpool.Pool the store needs, narrowed to an interface
// so tests can substitute a pgxmock pool in place of a live Postgres.
type pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store is the C5 IdentityStore: a pgx/pgvector-backed repository over the
// photos/persons/face_detections/landmarks/embeddings/person_photos schema.
type Store struct {
	pool pool
}

func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pgxPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pgxPool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pgxPool}, nil
}

// NewStoreWithPool builds a Store around an already-established pool,
// primarily so tests can inject a pgxmock pool in place of a live Postgres.
func NewStoreWithPool(p pool) *Store {
	return &Store{pool: p}
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithTx runs fn inside a single transaction, committing on a nil return and
// rolling back otherwise. PhotoProcessor drives its whole per-photo pipeline
// through one call to this so a failure anywhere rolls back every row for
// that photo, per the single-transaction-per-photo rule.
func (s *Store) WithTx(ctx context.Context, fn func(db DBTX) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, err)
	}
	return nil
}

// --- Photos ---

func (s *Store) CreatePhoto(ctx context.Context, db DBTX, eventID uuid.UUID, storageKey, filename string, width, height int) (*models.Photo, error) {
	p := &models.Photo{
		ID:         uuid.New(),
		EventID:    eventID,
		StorageKey: storageKey,
		Filename:   filename,
		Width:      width,
		Height:     height,
	}
	err := db.QueryRow(ctx,
		`INSERT INTO photos (id, event_id, storage_key, filename, width, height)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`,
		p.ID, p.EventID, p.StorageKey, p.Filename, p.Width, p.Height,
	).Scan(&p.CreatedAt)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("create photo: %w", err))
	}
	return p, nil
}

func (s *Store) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	return s.getPhoto(ctx, s.pool, id)
}

// GetPhotoTx is GetPhoto scoped to an in-flight transaction.
func (s *Store) GetPhotoTx(ctx context.Context, db DBTX, id uuid.UUID) (*models.Photo, error) {
	return s.getPhoto(ctx, db, id)
}

func (s *Store) getPhoto(ctx context.Context, db DBTX, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := db.QueryRow(ctx,
		`SELECT id, event_id, storage_key, filename, width, height, face_count, processed, processed_at, created_at
		 FROM photos WHERE id=$1`, id,
	).Scan(&p.ID, &p.EventID, &p.StorageKey, &p.Filename, &p.Width, &p.Height, &p.FaceCount, &p.Processed, &p.ProcessedAt, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("get photo: %w", err))
	}
	return p, nil
}

// GetPhotoByStorageKey finds an already-ingested photo by its blob key, used to
// decide whether an upload is a duplicate within an event.
func (s *Store) GetPhotoByStorageKey(ctx context.Context, eventID uuid.UUID, storageKey string) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, storage_key, filename, width, height, face_count, processed, processed_at, created_at
		 FROM photos WHERE event_id=$1 AND storage_key=$2`, eventID, storageKey,
	).Scan(&p.ID, &p.EventID, &p.StorageKey, &p.Filename, &p.Width, &p.Height, &p.FaceCount, &p.Processed, &p.ProcessedAt, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("lookup photo by key: %w", err))
	}
	return p, nil
}

// ResetPhoto clears a photo's prior processing results (face detections cascade
// to landmarks, and this photo's person associations) ahead of a forced
// reprocess, and flips processed back to false. Runs inside the caller's
// transaction so the reset and the re-run it precedes are atomic together.
func (s *Store) ResetPhoto(ctx context.Context, db DBTX, photoID uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM face_detections WHERE photo_id=$1`, photoID); err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("delete detections: %w", err))
	}
	if _, err := db.Exec(ctx, `DELETE FROM person_photos WHERE photo_id=$1`, photoID); err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("delete associations: %w", err))
	}
	if _, err := db.Exec(ctx, `UPDATE photos SET processed=false, processed_at=NULL, face_count=0 WHERE id=$1`, photoID); err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("reset photo: %w", err))
	}
	return nil
}

// MarkPhotoProcessed records the photo's final face count and marks it done.
func (s *Store) MarkPhotoProcessed(ctx context.Context, db DBTX, photoID uuid.UUID, faceCount int) error {
	_, err := db.Exec(ctx,
		`UPDATE photos SET processed=true, processed_at=$1, face_count=$2 WHERE id=$3`,
		time.Now(), faceCount, photoID)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("mark photo processed: %w", err))
	}
	return nil
}

// --- Persons ---

func (s *Store) CreatePerson(ctx context.Context, db DBTX, eventID uuid.UUID, name string, metadata json.RawMessage) (*models.Person, error) {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	p := &models.Person{ID: uuid.New(), EventID: eventID, Name: name, Metadata: metadata}
	err := db.QueryRow(ctx,
		`INSERT INTO persons (id, event_id, name, metadata) VALUES ($1,$2,$3,$4) RETURNING created_at, updated_at`,
		p.ID, p.EventID, p.Name, p.Metadata,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("create person: %w", err))
	}
	return p, nil
}

func (s *Store) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, name, metadata, photo_count, created_at, updated_at FROM persons WHERE id=$1`, id,
	).Scan(&p.ID, &p.EventID, &p.Name, &p.Metadata, &p.PhotoCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("get person: %w", err))
	}
	return p, nil
}

func (s *Store) DeletePerson(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE id=$1`, id)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("delete person: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person not found")
	}
	return nil
}

func (s *Store) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM photos WHERE id=$1`, id)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("delete photo: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("photo not found")
	}
	return nil
}

// --- Face detections + landmarks ---

func (s *Store) InsertFaceDetection(ctx context.Context, db DBTX, fd *models.FaceDetection) error {
	fd.ID = uuid.New()
	err := db.QueryRow(ctx,
		`INSERT INTO face_detections
		 (id, photo_id, bbox_x1, bbox_y1, bbox_x2, bbox_y2, detector, det_confidence, angle,
		  quality_blur, quality_light, quality_size, quality_overall, person_id, match_confidence)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING created_at`,
		fd.ID, fd.PhotoID, fd.BBox.X1, fd.BBox.Y1, fd.BBox.X2, fd.BBox.Y2, fd.Detector, fd.DetConfidence, fd.Angle,
		fd.QualityBlur, fd.QualityLight, fd.QualitySize, fd.QualityOverall, fd.PersonID, fd.MatchConfidence,
	).Scan(&fd.CreatedAt)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("insert face detection: %w", err))
	}
	return nil
}

// SetDetectionMatch records the winning person/confidence for a face detection.
func (s *Store) SetDetectionMatch(ctx context.Context, db DBTX, faceDetectionID uuid.UUID, personID uuid.UUID, confidence float32) error {
	_, err := db.Exec(ctx,
		`UPDATE face_detections SET person_id=$1, match_confidence=$2 WHERE id=$3`,
		personID, confidence, faceDetectionID)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("set detection match: %w", err))
	}
	return nil
}

func (s *Store) InsertLandmarks(ctx context.Context, db DBTX, l *models.Landmarks) error {
	points, err := json.Marshal(l.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	regions, err := json.Marshal(l.Regions)
	if err != nil {
		return fmt.Errorf("marshal regions: %w", err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO landmarks (face_detection_id, points, regions, eye_distance, nose_width, jaw_width, has_glasses, has_facial_hair)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		l.FaceDetectionID, points, regions, l.EyeDistance, l.NoseWidth, l.JawWidth, l.HasGlasses, l.HasFacialHair)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("insert landmarks: %w", err))
	}
	return nil
}

// --- Embeddings: the single eviction chokepoint ---

// EmbeddingRow is a lightweight projection used both internally for eviction
// decisions and externally by the matcher's snapshot query.
type EmbeddingRow struct {
	ID        uuid.UUID
	PersonID  uuid.UUID
	Vector    []float32
	Angle     models.Angle
	Quality   float32
	IsPrimary bool
	CreatedAt time.Time
}

// UpsertEmbedding is the only place embeddings are inserted or evicted. If the
// person already holds maxAngles embeddings, the new one is stored only when
// its quality strictly exceeds the current minimum (oldest wins ties for
// eviction), otherwise the call is a no-op and inserted=false. On every
// successful insert, is_primary is recomputed for the whole person (highest
// quality wins, most recent breaks ties). Runs against the caller's
// transaction so it composes into the single per-photo transaction.
func (s *Store) UpsertEmbedding(ctx context.Context, db DBTX, personID, faceDetectionID uuid.UUID, vector []float32, angle models.Angle, quality float32, maxAngles int) (inserted bool, err error) {
	rows, err := db.Query(ctx,
		`SELECT id, quality, created_at FROM embeddings WHERE person_id=$1 FOR UPDATE`, personID)
	if err != nil {
		return false, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("lock embeddings: %w", err))
	}
	type existing struct {
		id        uuid.UUID
		quality   float32
		createdAt time.Time
	}
	var current []existing
	for rows.Next() {
		var e existing
		if err := rows.Scan(&e.id, &e.quality, &e.createdAt); err != nil {
			rows.Close()
			return false, coreerr.Wrap(coreerr.ErrStorage, err)
		}
		current = append(current, e)
	}
	rows.Close()

	if len(current) >= maxAngles {
		// Find the eviction victim: minimum quality, oldest among ties.
		victim := current[0]
		for _, e := range current[1:] {
			if e.quality < victim.quality || (e.quality == victim.quality && e.createdAt.Before(victim.createdAt)) {
				victim = e
			}
		}
		if quality <= victim.quality {
			return false, nil
		}
		if _, err := db.Exec(ctx, `DELETE FROM embeddings WHERE id=$1`, victim.id); err != nil {
			return false, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("evict embedding: %w", err))
		}
	}

	newID := uuid.New()
	vec := pgvector.NewVector(vector)
	if _, err := db.Exec(ctx,
		`INSERT INTO embeddings (id, person_id, face_detection_id, vector, angle, quality, is_primary)
		 VALUES ($1,$2,$3,$4,$5,$6,false)`,
		newID, personID, faceDetectionID, vec, angle, quality); err != nil {
		return false, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("insert embedding: %w", err))
	}

	if err := recomputePrimary(ctx, db, personID); err != nil {
		return false, err
	}

	return true, nil
}

// recomputePrimary clears is_primary for personID and sets it on the
// highest-quality embedding, breaking ties toward the most recently created.
func recomputePrimary(ctx context.Context, db DBTX, personID uuid.UUID) error {
	if _, err := db.Exec(ctx, `UPDATE embeddings SET is_primary=false WHERE person_id=$1`, personID); err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("clear primary: %w", err))
	}
	_, err := db.Exec(ctx,
		`UPDATE embeddings SET is_primary=true WHERE id = (
			SELECT id FROM embeddings WHERE person_id=$1
			ORDER BY quality DESC, created_at DESC LIMIT 1)`, personID)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("set primary: %w", err))
	}
	return nil
}

func (s *Store) ListEmbeddingsForPerson(ctx context.Context, personID uuid.UUID) ([]models.Embedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, person_id, face_detection_id, angle, quality, is_primary, created_at
		 FROM embeddings WHERE person_id=$1 ORDER BY created_at DESC`, personID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.Embedding
	for rows.Next() {
		var e models.Embedding
		if err := rows.Scan(&e.ID, &e.PersonID, &e.FaceDetectionID, &e.Angle, &e.Quality, &e.IsPrimary, &e.CreatedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.ErrStorage, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// AllEmbeddings returns every stored embedding for an event's persons, used by
// the matcher to build its snapshot cache.
func (s *Store) AllEmbeddings(ctx context.Context, eventID uuid.UUID) ([]EmbeddingRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.person_id, e.vector, e.angle, e.quality, e.is_primary, e.created_at
		 FROM embeddings e
		 JOIN persons p ON p.id = e.person_id
		 WHERE p.event_id = $1`, eventID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("list embeddings: %w", err))
	}
	defer rows.Close()

	var out []EmbeddingRow
	for rows.Next() {
		var er EmbeddingRow
		var vec pgvector.Vector
		if err := rows.Scan(&er.ID, &er.PersonID, &vec, &er.Angle, &er.Quality, &er.IsPrimary, &er.CreatedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.ErrStorage, err)
		}
		er.Vector = vec.Slice()
		out = append(out, er)
	}
	return out, nil
}

// --- Person-photo associations ---

// AssociatePersonPhoto idempotently records that personID appears in photoID,
// a photo with faceCountInPhoto faces in total (is_group = faceCountInPhoto > 1 is
// derived from this at read time, never stored redundantly), keeping the
// higher confidence on repeat calls (e.g. a reprocess run), and keeps
// persons.photo_count in sync without a full scan.
func (s *Store) AssociatePersonPhoto(ctx context.Context, db DBTX, personID, photoID uuid.UUID, faceCountInPhoto int, confidence float32) error {
	tag, err := db.Exec(ctx,
		`INSERT INTO person_photos (person_id, photo_id, face_count_in_photo, confidence) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (person_id, photo_id) DO UPDATE SET
		 	face_count_in_photo = EXCLUDED.face_count_in_photo,
		 	confidence = GREATEST(person_photos.confidence, EXCLUDED.confidence)
		 WHERE person_photos.confidence < EXCLUDED.confidence`,
		personID, photoID, faceCountInPhoto, confidence)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("associate person photo: %w", err))
	}

	if tag.RowsAffected() > 0 {
		if _, err := db.Exec(ctx,
			`UPDATE persons SET photo_count = (SELECT COUNT(*) FROM person_photos WHERE person_id=$1), updated_at=now() WHERE id=$1`,
			personID); err != nil {
			return coreerr.Wrap(coreerr.ErrStorage, fmt.Errorf("update photo count: %w", err))
		}
	}
	return nil
}

// ListPhotosForPerson returns every photo a person was matched in, most recent
// association first.
func (s *Store) ListPhotosForPerson(ctx context.Context, personID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ph.id, ph.event_id, ph.storage_key, ph.filename, ph.width, ph.height, ph.face_count, ph.processed, ph.processed_at, ph.created_at
		 FROM photos ph
		 JOIN person_photos pp ON pp.photo_id = ph.id
		 WHERE pp.person_id = $1
		 ORDER BY pp.created_at DESC`, personID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrStorage, err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.EventID, &p.StorageKey, &p.Filename, &p.Width, &p.Height, &p.FaceCount, &p.Processed, &p.ProcessedAt, &p.CreatedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.ErrStorage, err)
		}
		photos = append(photos, p)
	}
	return photos, nil
}

// PhotosForPerson splits a person's matched photos into individual (one face)
// and group shots, each sorted by match confidence descending, for the
// live-scan retrieval step. is_group is derived from this person's own
// person_photos.face_count_in_photo row, not photos.face_count, since the
// latter counts every face in the photo while the split is specific to how
// many faces this particular person shared the frame with.
func (s *Store) PhotosForPerson(ctx context.Context, personID uuid.UUID) (individual, group []models.Photo, err error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ph.id, ph.event_id, ph.storage_key, ph.filename, ph.width, ph.height, ph.face_count, ph.processed, ph.processed_at, ph.created_at, pp.face_count_in_photo
		 FROM photos ph
		 JOIN person_photos pp ON pp.photo_id = ph.id
		 WHERE pp.person_id = $1
		 ORDER BY pp.confidence DESC`, personID)
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Photo
		var faceCountInPhoto int
		if err := rows.Scan(&p.ID, &p.EventID, &p.StorageKey, &p.Filename, &p.Width, &p.Height, &p.FaceCount, &p.Processed, &p.ProcessedAt, &p.CreatedAt, &faceCountInPhoto); err != nil {
			return nil, nil, coreerr.Wrap(coreerr.ErrStorage, err)
		}
		if faceCountInPhoto <= 1 {
			individual = append(individual, p)
		} else {
			group = append(group, p)
		}
	}
	return individual, group, nil
}
