package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/backend/internal/domain"
)

func newMockRepository(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewPostgresRepository(mock), mock
}

func TestCollisionFilter(t *testing.T) {
	start := time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)

	where, args := collisionFilter(domain.CollisionQuery{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = collisionFilter(domain.CollisionQuery{Location: "100%", Severity: "Injury", StartDate: &start})
	assert.Equal(t, " WHERE tc.location ILIKE $1 AND s.description ILIKE $2 AND tc.occurred_at >= $3", where)
	assert.Equal(t, []any{`%100\%%`, "%Injury%", start}, args)
}

func TestListCollisions_EmptyPage(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM traffic_collisions tc LEFT JOIN severity s ON s.id = tc.severity_id WHERE tc.location ILIKE $1")).
		WithArgs("%ALASKAN%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY tc.occurred_at DESC, tc.id DESC LIMIT $2 OFFSET $3")).
		WithArgs("%ALASKAN%", 25, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	page, err := repo.ListCollisions(context.Background(), domain.CollisionQuery{Location: "ALASKAN", Limit: 25, Offset: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.Equal(t, 25, page.Limit)
	assert.Equal(t, 50, page.Offset)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCollisions_CountError(t *testing.T) {
	repo, mock := newMockRepository(t)
	boom := errors.New("relation does not exist")

	mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)

	_, err := repo.ListCollisions(context.Background(), domain.CollisionQuery{Limit: 10})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCollision_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE tc.id = $1")).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetCollision(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLookups_Named(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM light_condition ORDER BY name ASC")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow(int64(2), "Dark - Street Lights On").
			AddRow(int64(1), "Daylight"))

	entries, err := repo.ListLookups(context.Background(), domain.LookupLightConditions)
	require.NoError(t, err)
	assert.Equal(t, []domain.LookupEntry{
		{ID: 2, Name: "Dark - Street Lights On"},
		{ID: 1, Name: "Daylight"},
	}, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLookups_UnknownKind(t *testing.T) {
	repo, mock := newMockRepository(t)

	_, err := repo.ListLookups(context.Background(), domain.LookupKind("vehicles"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupTablesCoverEveryKind(t *testing.T) {
	for _, kind := range domain.LookupKinds {
		_, ok := lookupTables[kind]
		assert.True(t, ok, kind)
	}
}

func TestHealth(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectPing()
	assert.NoError(t, repo.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, repo.Health(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func testRecord(incKey int64) domain.CollisionRecord {
	injuries := int32(1)
	return domain.CollisionRecord{
		IncKey:      incKey,
		OccurredAt:  time.Date(2020, 3, 14, 8, 30, 0, 0, time.UTC),
		Counts:      domain.CollisionCounts{Injuries: &injuries},
		Severity:    &domain.CodedValue{Code: "2", Desc: "Injury Collision"},
		AddressType: "Block",
	}
}

// upsertArgs matches the 21 columns bound by the collision upsert
func upsertArgs() []any {
	args := make([]any, 21)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestIngestBatch_ResolvesLookupsOnce(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO severity (code, description)")).
		WithArgs("2", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO address_type (name)")).
		WithArgs("Block").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("INSERT INTO traffic_collisions").
		WithArgs(upsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// the second record reuses the cached lookup ids
	mock.ExpectExec("INSERT INTO traffic_collisions").
		WithArgs(upsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	written, err := repo.IngestBatch(context.Background(), []domain.CollisionRecord{testRecord(1001), testRecord(1002)})
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestBatch_RollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepository(t)
	boom := errors.New("deadlock detected")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO severity").
		WithArgs("2", pgxmock.AnyArg()).
		WillReturnError(boom)
	mock.ExpectRollback()

	written, err := repo.IngestBatch(context.Background(), []domain.CollisionRecord{testRecord(1)})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestBatch_Empty(t *testing.T) {
	repo, mock := newMockRepository(t)

	written, err := repo.IngestBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}
