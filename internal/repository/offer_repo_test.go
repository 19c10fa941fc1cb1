package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradematch/backend/internal/models"
)

func newOfferMock(t *testing.T) (pgxmock.PgxPoolIface, *OfferRepo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewOfferRepo(mock)
}

func TestOfferRepo_CreateTx_DuplicatePair(t *testing.T) {
	mock, repo := newOfferMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO offers`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectRollback()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	offer := &models.Offer{
		ID:        uuid.New(),
		JobID:     uuid.New(),
		VendorID:  uuid.New(),
		State:     models.OfferStateOffered,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	err = repo.CreateTx(ctx, tx, offer)
	assert.ErrorIs(t, err, ErrDuplicateOffer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_CreateTx_PersistsDistanceMiles(t *testing.T) {
	mock, repo := newOfferMock(t)
	ctx := context.Background()
	now := time.Now()

	offer := &models.Offer{
		ID:            uuid.New(),
		JobID:         uuid.New(),
		VendorID:      uuid.New(),
		MatchScore:    72,
		Breakdown:     models.MatchBreakdown{Distance: 20, Specialty: 15, Budget: 12, Performance: 10, Rotation: 15},
		DistanceMiles: 3.4,
		Rank:          1,
		PricePence:    500,
		State:         models.OfferStateOffered,
		ExpiresAt:     now.Add(24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO offers`).
		WithArgs(offer.ID, offer.JobID, offer.VendorID, 72, 20, 15, 12, 10, 15, 3.4, 1, int64(500), "offered", offer.ExpiresAt).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.CreateTx(ctx, tx, offer))
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, now, offer.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_GetByID_NotFound(t *testing.T) {
	mock, repo := newOfferMock(t)

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM offers WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_MarkAcceptedTx(t *testing.T) {
	mock, repo := newOfferMock(t)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE offers SET state = 'accepted'`).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.MarkAcceptedTx(ctx, tx, id, now))
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_MarkAcceptedTx_LostRace(t *testing.T) {
	// The conditional update hits no row when another request resolved the
	// offer first.
	mock, repo := newOfferMock(t)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE offers SET state = 'accepted'`).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	err = repo.MarkAcceptedTx(ctx, tx, id, now)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_MarkRefundedTx_NotRefundable(t *testing.T) {
	mock, repo := newOfferMock(t)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE offers SET refunded = TRUE`).
		WithArgs(id, int64(250), "quality_issue").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	err = repo.MarkRefundedTx(ctx, tx, id, 250, "quality_issue")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_ExpirePast(t *testing.T) {
	mock, repo := newOfferMock(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE offers SET state = 'expired'`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ExpirePast(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_CountRecentByVendor(t *testing.T) {
	mock, repo := newOfferMock(t)
	vendorID := uuid.New()
	since := time.Now().Add(-7 * 24 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM offers`).
		WithArgs(vendorID, since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountRecentByVendor(context.Background(), vendorID, since)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
