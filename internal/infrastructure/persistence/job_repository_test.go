package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dropcraft/backend/internal/domain/job"
)

// newMockDB creates a GORM connection backed by sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

// fullJob builds a job with every persisted column populated
func fullJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New(uuid.New(), uuid.New(), job.TypeSync, "stores", map[string]any{"strategy": "manual"})
	require.NoError(t, err)
	j.Name = "sync all stores"
	require.NoError(t, j.Start(3))
	require.NoError(t, j.RecordProgress(3, 1))
	require.NoError(t, j.Fail("platform unavailable"))
	j.OutputData = map[string]any{"synced": 2}
	j.Metadata = map[string]any{"conflicts_found": 0}
	return j
}

func TestGormJobRepository_FindByID(t *testing.T) {
	t.Run("finds existing job", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		jobID := uuid.New()
		userID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "user_id", "type", "subtype", "status", "total_items", "processed_items", "failed_items", "input_data", "metadata"}).
			AddRow(jobID, userID, "sync", "stores", "running", 10, 4, 1, `{"strategy":"local_wins"}`, `{"conflicts_found":2}`)

		mock.ExpectQuery(`SELECT \* FROM "jobs" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(jobID, 1).
			WillReturnRows(rows)

		found, err := repo.FindByID(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, jobID, found.ID)
		assert.Equal(t, job.StatusRunning, found.Status)
		assert.Equal(t, 4, found.ProcessedItems)
		assert.Equal(t, "local_wins", found.InputData["strategy"])
		assert.Equal(t, float64(2), found.Metadata["conflicts_found"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrJobNotFound for missing job", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		jobID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "jobs"`).
			WithArgs(jobID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByID(context.Background(), jobID)
		assert.ErrorIs(t, err, job.ErrJobNotFound)
	})
}

func TestGormJobRepository_FindByIDForUser(t *testing.T) {
	t.Run("scopes the lookup to the owner", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		jobID := uuid.New()
		userID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "jobs" WHERE user_id = \$1 AND id = \$2`).
			WithArgs(userID, jobID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByIDForUser(context.Background(), userID, jobID)
		assert.ErrorIs(t, err, job.ErrJobNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_ListByUser(t *testing.T) {
	t.Run("filters by status with pagination", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		userID := uuid.New()
		status := job.StatusCompleted

		mock.ExpectQuery(`SELECT count\(\*\) FROM "jobs" WHERE user_id = \$1 AND status = \$2`).
			WithArgs(userID, status).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))

		rows := sqlmock.NewRows([]string{"id", "user_id", "type", "status"}).
			AddRow(uuid.New(), userID, "sync", "completed").
			AddRow(uuid.New(), userID, "import", "completed")

		mock.ExpectQuery(`SELECT \* FROM "jobs" WHERE user_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT .* OFFSET .*`).
			WithArgs(userID, status, 10, 10).
			WillReturnRows(rows)

		jobs, total, err := repo.ListByUser(context.Background(), userID, job.Filter{
			Status:   &status,
			Page:     2,
			PageSize: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		assert.Len(t, jobs, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_Upsert(t *testing.T) {
	t.Run("inserts with on conflict update", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		mock.ExpectExec(`INSERT INTO "jobs" .* ON CONFLICT \("id"\) DO UPDATE SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(context.Background(), fullJob(t))
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_IncrementProgress(t *testing.T) {
	t.Run("applies additive deltas", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		jobID := uuid.New()
		mock.ExpectExec(`UPDATE "jobs" SET .*failed_items.*=.*failed_items \+ .*processed_items.*=.*processed_items \+ .*WHERE id = .*`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.IncrementProgress(context.Background(), jobID, 10, 2)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrJobNotFound when no row matches", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		mock.ExpectExec(`UPDATE "jobs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.IncrementProgress(context.Background(), uuid.New(), 1, 0)
		assert.ErrorIs(t, err, job.ErrJobNotFound)
	})
}

func TestGormJobRepository_SetMetadata(t *testing.T) {
	t.Run("merges keys into the jsonb column", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		mock.ExpectExec(`UPDATE "jobs" SET .*metadata.*\|\|.*jsonb.*WHERE id = .*`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetMetadata(context.Background(), uuid.New(), map[string]any{"conflicts_found": 3})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no-op for empty metadata", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		err := repo.SetMetadata(context.Background(), uuid.New(), nil)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobRepository_DeleteTerminalBefore(t *testing.T) {
	t.Run("deletes terminal jobs past the cutoff", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobRepository(db)

		cutoff := time.Now().Add(-7 * 24 * time.Hour)
		mock.ExpectExec(`DELETE FROM "jobs" WHERE status IN \(\$1,\$2,\$3\) AND completed_at < \$4`).
			WithArgs(job.StatusCompleted, job.StatusFailed, job.StatusCancelled, cutoff).
			WillReturnResult(sqlmock.NewResult(0, 12))

		deleted, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(12), deleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobItemRepository_Append(t *testing.T) {
	t.Run("inserts an item outcome", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobItemRepository(db)

		item, err := job.NewItem(uuid.New(), job.ItemStatusFailed, "push rejected")
		require.NoError(t, err)
		item.WithProduct(uuid.New()).
			WithErrorCode("validation").
			WithStates(map[string]any{"price": "20"}, map[string]any{"price": "25"})

		mock.ExpectExec(`INSERT INTO "job_items"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Append(context.Background(), item)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormJobItemRepository_ListFailedByJob(t *testing.T) {
	t.Run("selects only failure statuses", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormJobItemRepository(db)

		jobID := uuid.New()
		productID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "job_id", "product_id", "status", "message"}).
			AddRow(uuid.New(), jobID, productID, "failed", "push rejected")

		mock.ExpectQuery(`SELECT \* FROM "job_items" WHERE job_id = \$1 AND status IN \(\$2,\$3\) ORDER BY processed_at ASC`).
			WithArgs(jobID, job.ItemStatusFailed, job.ItemStatusError).
			WillReturnRows(rows)

		items, err := repo.ListFailedByJob(context.Background(), jobID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, job.ItemStatusFailed, items[0].Status)
		require.NotNil(t, items[0].ProductID)
		assert.Equal(t, productID, *items[0].ProductID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
