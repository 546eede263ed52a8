package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropcraft/backend/internal/domain/platform"
)

func TestGormLinkRepository_FindForOwner(t *testing.T) {
	t.Run("filters by store and products", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormLinkRepository(db)

		ownerID := uuid.New()
		storeID := uuid.New()
		productID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "owner_id", "product_id", "store_id", "external_product_id", "sync_status", "pending_conflicts"}).
			AddRow(uuid.New(), ownerID, productID, storeID, "gid-123", "synced", "[]")

		mock.ExpectQuery(`SELECT \* FROM "product_store_links" WHERE owner_id = \$1 AND store_id = \$2 AND product_id IN \(\$3\) ORDER BY created_at ASC`).
			WithArgs(ownerID, storeID, productID).
			WillReturnRows(rows)

		links, err := repo.FindForOwner(context.Background(), ownerID, platform.LinkFilter{
			StoreID:    &storeID,
			ProductIDs: []uuid.UUID{productID},
		})
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "gid-123", links[0].ExternalProductID)
		assert.Equal(t, platform.SyncStatusSynced, links[0].SyncStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deserializes pending conflicts", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormLinkRepository(db)

		ownerID := uuid.New()
		conflictsJSON := `[{"field":"price","local_value":"20","remote_value":"25","detected_at":"2026-08-30T10:00:00Z"}]`

		rows := sqlmock.NewRows([]string{"id", "owner_id", "product_id", "store_id", "sync_status", "pending_conflicts"}).
			AddRow(uuid.New(), ownerID, uuid.New(), uuid.New(), "conflict", conflictsJSON)

		mock.ExpectQuery(`SELECT \* FROM "product_store_links" WHERE owner_id = \$1 ORDER BY created_at ASC`).
			WithArgs(ownerID).
			WillReturnRows(rows)

		links, err := repo.FindForOwner(context.Background(), ownerID, platform.LinkFilter{})
		require.NoError(t, err)
		require.Len(t, links, 1)
		require.Len(t, links[0].PendingConflicts, 1)
		assert.Equal(t, "price", links[0].PendingConflicts[0].Field)
		assert.Equal(t, "20", links[0].PendingConflicts[0].LocalValue)
		assert.Equal(t, "25", links[0].PendingConflicts[0].RemoteValue)
	})
}

func TestGormLinkRepository_FindByProductAndStore(t *testing.T) {
	t.Run("returns ErrLinkNotFound for unlinked product", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormLinkRepository(db)

		ownerID, productID, storeID := uuid.New(), uuid.New(), uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "product_store_links" WHERE owner_id = \$1 AND product_id = \$2 AND store_id = \$3`).
			WithArgs(ownerID, productID, storeID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.FindByProductAndStore(context.Background(), ownerID, productID, storeID)
		assert.ErrorIs(t, err, platform.ErrLinkNotFound)
	})
}

func TestGormLinkRepository_Save(t *testing.T) {
	t.Run("upserts the link row", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormLinkRepository(db)

		link, err := platform.NewProductStoreLink(uuid.New(), uuid.New(), uuid.New())
		require.NoError(t, err)
		link.ExternalProductID = "gid-123"
		link.RecordSyncError("push rejected")

		mock.ExpectExec(`INSERT INTO "product_store_links" .* ON CONFLICT \("id"\) DO UPDATE SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.Save(context.Background(), link)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreRepository_ListActiveByOwner(t *testing.T) {
	t.Run("lists only active stores", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormStoreRepository(db)

		ownerID := uuid.New()
		rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "platform", "is_active", "created_at"}).
			AddRow(uuid.New(), ownerID, "My Shopify", "shopify", true, time.Now()).
			AddRow(uuid.New(), ownerID, "My Woo", "woocommerce", true, time.Now())

		mock.ExpectQuery(`SELECT \* FROM "stores" WHERE owner_id = \$1 AND is_active = \$2 ORDER BY created_at ASC`).
			WithArgs(ownerID, true).
			WillReturnRows(rows)

		stores, err := repo.ListActiveByOwner(context.Background(), ownerID)
		require.NoError(t, err)
		require.Len(t, stores, 2)
		assert.Equal(t, platform.CodeShopify, stores[0].Platform)
		assert.Equal(t, platform.CodeWooCommerce, stores[1].Platform)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStoreRepository_FindByIDForOwner(t *testing.T) {
	t.Run("hides other owners' stores", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormStoreRepository(db)

		ownerID, storeID := uuid.New(), uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "stores" WHERE owner_id = \$1 AND id = \$2`).
			WithArgs(ownerID, storeID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.FindByIDForOwner(context.Background(), ownerID, storeID)
		assert.ErrorIs(t, err, platform.ErrStoreNotFound)
	})
}
