package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventface/facecore/internal/coreerr"
	"github.com/eventface/facecore/internal/models"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStoreWithPool(mock), mock
}

func TestStore_CreatePhoto(t *testing.T) {
	store, mock := newMockStore(t)
	eventID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO photos`).
		WithArgs(pgxmock.AnyArg(), eventID, "events/e/1.jpg", "1.jpg", 800, 600).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	photo, err := store.CreatePhoto(context.Background(), mock, eventID, "events/e/1.jpg", "1.jpg", 800, 600)
	require.NoError(t, err)
	assert.Equal(t, eventID, photo.EventID)
	assert.Equal(t, now, photo.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetPhoto_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM photos WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	photo, err := store.GetPhoto(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, photo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetPhoto_StorageError(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM photos WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(assert.AnError)

	_, err := store.GetPhoto(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerr.ErrStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AssociatePersonPhoto(t *testing.T) {
	store, mock := newMockStore(t)
	personID := uuid.New()
	photoID := uuid.New()

	mock.ExpectExec(`INSERT INTO person_photos`).
		WithArgs(personID, photoID, 3, float32(0.9)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE persons SET photo_count`).
		WithArgs(personID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.AssociatePersonPhoto(context.Background(), mock, personID, photoID, 3, 0.9)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AssociatePersonPhoto_NoOpWhenConfidenceNotImproved(t *testing.T) {
	store, mock := newMockStore(t)
	personID := uuid.New()
	photoID := uuid.New()

	mock.ExpectExec(`INSERT INTO person_photos`).
		WithArgs(personID, photoID, 1, float32(0.2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.AssociatePersonPhoto(context.Background(), mock, personID, photoID, 1, 0.2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertEmbedding_SkipsBelowEvictionVictim(t *testing.T) {
	store, mock := newMockStore(t)
	personID := uuid.New()
	faceDetID := uuid.New()

	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "quality", "created_at"})
	for i := 0; i < 5; i++ {
		rows.AddRow(uuid.New(), float32(0.8), now.Add(time.Duration(i)*time.Minute))
	}
	mock.ExpectQuery(`SELECT id, quality, created_at FROM embeddings WHERE person_id=\$1 FOR UPDATE`).
		WithArgs(personID).
		WillReturnRows(rows)

	inserted, err := store.UpsertEmbedding(context.Background(), mock, personID, faceDetID,
		[]float32{0.1, 0.2, 0.3}, models.AngleFrontal, 0.5, 5)
	require.NoError(t, err)
	assert.False(t, inserted, "quality below every stored embedding's quality should be rejected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertEmbedding_EvictsWorstAndInserts(t *testing.T) {
	store, mock := newMockStore(t)
	personID := uuid.New()
	faceDetID := uuid.New()
	victimID := uuid.New()

	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "quality", "created_at"}).
		AddRow(victimID, float32(0.3), now).
		AddRow(uuid.New(), float32(0.8), now).
		AddRow(uuid.New(), float32(0.85), now).
		AddRow(uuid.New(), float32(0.9), now).
		AddRow(uuid.New(), float32(0.95), now)

	mock.ExpectQuery(`SELECT id, quality, created_at FROM embeddings WHERE person_id=\$1 FOR UPDATE`).
		WithArgs(personID).
		WillReturnRows(rows)
	mock.ExpectExec(`DELETE FROM embeddings WHERE id=\$1`).
		WithArgs(victimID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO embeddings`).
		WithArgs(pgxmock.AnyArg(), personID, faceDetID, pgvector.NewVector([]float32{1, 2, 3}), models.AngleFrontal, float32(0.7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE embeddings SET is_primary=false WHERE person_id=\$1`).
		WithArgs(personID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 5))
	mock.ExpectExec(`UPDATE embeddings SET is_primary=true WHERE id`).
		WithArgs(personID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	inserted, err := store.UpsertEmbedding(context.Background(), mock, personID, faceDetID,
		[]float32{1, 2, 3}, models.AngleFrontal, 0.7, 5)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
