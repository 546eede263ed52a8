package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropcraft/backend/internal/domain/catalog"
)

func TestGormProductSyncRepository_FindByIDs(t *testing.T) {
	t.Run("loads a keyed set of products", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormProductSyncRepository(db)

		id1, id2 := uuid.New(), uuid.New()
		rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "sku", "price", "stock", "tags"}).
			AddRow(id1, uuid.New(), "Walnut Desk", "DESK-01", decimal.NewFromFloat(249.99), 12, `["furniture","oak"]`).
			AddRow(id2, uuid.New(), "Oak Chair", "CHAIR-02", decimal.NewFromFloat(89.50), 40, "[]")

		mock.ExpectQuery(`SELECT \* FROM "products" WHERE id IN \(\$1,\$2\)`).
			WithArgs(id1, id2).
			WillReturnRows(rows)

		products, err := repo.FindByIDs(context.Background(), []uuid.UUID{id1, id2})
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "Walnut Desk", products[id1].Title)
		assert.Equal(t, []string{"furniture", "oak"}, products[id1].Tags)
		assert.True(t, products[id2].Price.Equal(decimal.NewFromFloat(89.50)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty id set skips the query", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormProductSyncRepository(db)

		products, err := repo.FindByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, products)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormProductSyncRepository_UpdateFields(t *testing.T) {
	t.Run("writes whitelisted columns", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormProductSyncRepository(db)

		mock.ExpectExec(`UPDATE "products" SET .*price.*stock.*WHERE id = .*`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateFields(context.Background(), uuid.New(), map[string]any{
			"price": decimal.NewFromInt(25),
			"stock": 7,
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects columns outside the sync surface", func(t *testing.T) {
		db, _, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormProductSyncRepository(db)

		err := repo.UpdateFields(context.Background(), uuid.New(), map[string]any{
			"owner_id": uuid.New(),
		})
		assert.Error(t, err)
	})

	t.Run("returns ErrProductNotFound when no row matches", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormProductSyncRepository(db)

		mock.ExpectExec(`UPDATE "products" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateFields(context.Background(), uuid.New(), map[string]any{"stock": 3})
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	})
}
