package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dropcraft/backend/internal/domain/platform"
	"github.com/dropcraft/backend/internal/infrastructure/persistence/models"
)

// GormStoreRepository implements platform.StoreRepository using GORM
type GormStoreRepository struct {
	db *gorm.DB
}

// NewGormStoreRepository creates a new GormStoreRepository
func NewGormStoreRepository(db *gorm.DB) *GormStoreRepository {
	return &GormStoreRepository{db: db}
}

var _ platform.StoreRepository = (*GormStoreRepository)(nil)

// FindByID finds a store by ID
func (r *GormStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*platform.Store, error) {
	var model models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platform.ErrStoreNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForOwner finds a store by ID scoped to its owner
func (r *GormStoreRepository) FindByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (*platform.Store, error) {
	var model models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platform.ErrStoreNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListActiveByOwner lists a user's active stores
func (r *GormStoreRepository) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]platform.Store, error) {
	var storeModels []models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Order("created_at ASC").
		Find(&storeModels).Error; err != nil {
		return nil, err
	}

	stores := make([]platform.Store, len(storeModels))
	for i, model := range storeModels {
		stores[i] = *model.ToDomain()
	}
	return stores, nil
}

// Save creates or updates a store
func (r *GormStoreRepository) Save(ctx context.Context, s *platform.Store) error {
	model := models.StoreModelFromDomain(s)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"credentials_ciphertext",
				"is_active",
				"updated_at",
			}),
		}).
		Create(model).Error
}
