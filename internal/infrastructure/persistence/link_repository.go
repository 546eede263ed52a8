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

// GormLinkRepository implements platform.LinkRepository using GORM
type GormLinkRepository struct {
	db *gorm.DB
}

// NewGormLinkRepository creates a new GormLinkRepository
func NewGormLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: db}
}

var _ platform.LinkRepository = (*GormLinkRepository)(nil)

// FindByID finds a link by ID
func (r *GormLinkRepository) FindByID(ctx context.Context, id uuid.UUID) (*platform.ProductStoreLink, error) {
	var model models.ProductStoreLinkModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platform.ErrLinkNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindForOwner lists links matching the filter scoped to an owner
func (r *GormLinkRepository) FindForOwner(ctx context.Context, ownerID uuid.UUID, filter platform.LinkFilter) ([]platform.ProductStoreLink, error) {
	query := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID)

	if filter.StoreID != nil {
		query = query.Where("store_id = ?", *filter.StoreID)
	}
	if len(filter.ProductIDs) > 0 {
		query = query.Where("product_id IN ?", filter.ProductIDs)
	}
	if filter.SyncStatus != nil {
		query = query.Where("sync_status = ?", *filter.SyncStatus)
	}

	var linkModels []models.ProductStoreLinkModel
	if err := query.Order("created_at ASC").Find(&linkModels).Error; err != nil {
		return nil, err
	}

	links := make([]platform.ProductStoreLink, len(linkModels))
	for i, model := range linkModels {
		links[i] = *model.ToDomain()
	}
	return links, nil
}

// FindByProductAndStore finds the link for one product on one store
func (r *GormLinkRepository) FindByProductAndStore(ctx context.Context, ownerID, productID, storeID uuid.UUID) (*platform.ProductStoreLink, error) {
	var model models.ProductStoreLinkModel
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND product_id = ? AND store_id = ?", ownerID, productID, storeID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platform.ErrLinkNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a link
func (r *GormLinkRepository) Save(ctx context.Context, link *platform.ProductStoreLink) error {
	model := models.ProductStoreLinkModelFromDomain(link)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"external_product_id",
				"sync_status",
				"pending_conflicts",
				"last_sync_at",
				"last_error",
				"updated_at",
			}),
		}).
		Create(model).Error
}
