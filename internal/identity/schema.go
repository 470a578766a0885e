package identity

import "context"

// Schema is the full relational layout backing the identity store. The teacher
// repo assumed an externally-applied schema and shipped no migration tooling;
// this is carried here as the minimal addition needed to make the store
// runnable against a fresh database.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS photos (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	storage_key TEXT NOT NULL,
	filename TEXT NOT NULL,
	width INT NOT NULL DEFAULT 0,
	height INT NOT NULL DEFAULT 0,
	face_count INT NOT NULL DEFAULT 0,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS persons (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	photo_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS face_detections (
	id UUID PRIMARY KEY,
	photo_id UUID NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
	bbox_x1 REAL NOT NULL,
	bbox_y1 REAL NOT NULL,
	bbox_x2 REAL NOT NULL,
	bbox_y2 REAL NOT NULL,
	detector TEXT NOT NULL,
	det_confidence REAL NOT NULL,
	angle TEXT NOT NULL,
	quality_blur REAL NOT NULL,
	quality_light REAL NOT NULL,
	quality_size REAL NOT NULL,
	quality_overall REAL NOT NULL,
	person_id UUID REFERENCES persons(id) ON DELETE SET NULL,
	match_confidence REAL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS landmarks (
	face_detection_id UUID PRIMARY KEY REFERENCES face_detections(id) ON DELETE CASCADE,
	points JSONB NOT NULL,
	regions JSONB NOT NULL,
	eye_distance REAL NOT NULL,
	nose_width REAL NOT NULL,
	jaw_width REAL NOT NULL,
	has_glasses BOOLEAN NOT NULL,
	has_facial_hair BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS embeddings (
	id UUID PRIMARY KEY,
	person_id UUID NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	face_detection_id UUID NOT NULL REFERENCES face_detections(id) ON DELETE CASCADE,
	vector vector(128) NOT NULL,
	angle TEXT NOT NULL,
	quality REAL NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS embeddings_person_id_idx ON embeddings(person_id);

CREATE TABLE IF NOT EXISTS person_photos (
	person_id UUID NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	photo_id UUID NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
	face_count_in_photo INT NOT NULL DEFAULT 1,
	confidence REAL NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (person_id, photo_id)
);
`

// Migrate applies the schema. Safe to call repeatedly (every statement is
// idempotent via IF NOT EXISTS).
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}
