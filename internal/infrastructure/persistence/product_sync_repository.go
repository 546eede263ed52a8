package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dropcraft/backend/internal/domain/catalog"
	"github.com/dropcraft/backend/internal/infrastructure/persistence/models"
)

// productSyncColumns are the columns a pull-direction resolution may write.
// Anything else on the product row is owned by the wider catalog.
var productSyncColumns = map[string]bool{
	"title":            true,
	"description":      true,
	"price":            true,
	"compare_at_price": true,
	"stock":            true,
	"status":           true,
}

// GormProductSyncRepository implements catalog.Repository using GORM
type GormProductSyncRepository struct {
	db *gorm.DB
}

// NewGormProductSyncRepository creates a new GormProductSyncRepository
func NewGormProductSyncRepository(db *gorm.DB) *GormProductSyncRepository {
	return &GormProductSyncRepository{db: db}
}

var _ catalog.Repository = (*GormProductSyncRepository)(nil)

// FindByID finds a product by ID
func (r *GormProductSyncRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads a set of products keyed by ID. Missing ids are simply
// absent from the result map.
func (r *GormProductSyncRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*catalog.Product{}, nil
	}

	var productModels []models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&productModels).Error; err != nil {
		return nil, err
	}

	products := make(map[uuid.UUID]*catalog.Product, len(productModels))
	for i := range productModels {
		p := productModels[i].ToDomain()
		products[p.ID] = p
	}
	return products, nil
}

// UpdateFields writes the given field values onto a product row. Fields
// outside the sync-owned column set are rejected.
func (r *GormProductSyncRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	updates := make(map[string]any, len(fields)+1)
	for column, value := range fields {
		if !productSyncColumns[column] {
			return fmt.Errorf("persistence: column %q is not writable by sync", column)
		}
		updates[column] = value
	}
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&models.ProductModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}
