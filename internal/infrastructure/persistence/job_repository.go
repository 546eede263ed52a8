package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dropcraft/backend/internal/domain/job"
	"github.com/dropcraft/backend/internal/infrastructure/persistence/models"
)

// jobUpsertColumns are the columns a redelivered upsert may overwrite.
// Progress counters are excluded: they only move through IncrementProgress.
var jobUpsertColumns = []string{
	"status",
	"total_items",
	"input_data",
	"output_data",
	"metadata",
	"error_message",
	"started_at",
	"completed_at",
	"updated_at",
}

// GormJobRepository implements job.Repository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

var _ job.Repository = (*GormJobRepository)(nil)

// FindByID finds a job by ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	var model models.JobModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUser finds a job by ID scoped to its owner
func (r *GormJobRepository) FindByIDForUser(ctx context.Context, userID, id uuid.UUID) (*job.Job, error) {
	var model models.JobModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByUser lists a user's jobs with filtering and pagination, newest first
func (r *GormJobRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter job.Filter) ([]job.Job, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.JobModel{}).
		Where("user_id = ?", userID)

	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	sortField := ValidateSortField(filter.SortBy, JobSortFields, "created_at")
	query = query.Order(sortField + " " + ValidateSortOrder(filter.SortDir))

	var jobModels []models.JobModel
	if err := query.Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]job.Job, len(jobModels))
	for i, model := range jobModels {
		jobs[i] = *model.ToDomain()
	}
	return jobs, totalCount, nil
}

// Upsert creates the job row or updates it in place, keyed by id. Delivery
// is at-least-once, so the same row may be written more than once.
func (r *GormJobRepository) Upsert(ctx context.Context, j *job.Job) error {
	model := models.JobModelFromDomain(j)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(jobUpsertColumns),
		}).
		Create(model).Error
}

// IncrementProgress adds the deltas to the job's counters atomically so that
// concurrent or redelivered writers never clobber each other.
func (r *GormJobRepository) IncrementProgress(ctx context.Context, id uuid.UUID, processedDelta, failedDelta int) error {
	result := r.db.WithContext(ctx).Model(&models.JobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_items": gorm.Expr("processed_items + ?", processedDelta),
			"failed_items":    gorm.Expr("failed_items + ?", failedDelta),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// SetMetadata merges the given keys into the job's metadata column.
func (r *GormJobRepository) SetMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error {
	if len(metadata) == 0 {
		return nil
	}
	patch := models.JobModelFromDomain(&job.Job{Metadata: metadata}).Metadata

	result := r.db.WithContext(ctx).Model(&models.JobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"metadata":   gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", patch),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// DeleteTerminalBefore removes terminal jobs finished before the cutoff.
// Their items go with them via the foreign key cascade.
func (r *GormJobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?", []job.Status{
			job.StatusCompleted,
			job.StatusFailed,
			job.StatusCancelled,
		}, cutoff).
		Delete(&models.JobModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// GormJobItemRepository implements job.ItemRepository using GORM
type GormJobItemRepository struct {
	db *gorm.DB
}

// NewGormJobItemRepository creates a new GormJobItemRepository
func NewGormJobItemRepository(db *gorm.DB) *GormJobItemRepository {
	return &GormJobItemRepository{db: db}
}

var _ job.ItemRepository = (*GormJobItemRepository)(nil)

// Append inserts an item outcome record
func (r *GormJobItemRepository) Append(ctx context.Context, item *job.Item) error {
	model := models.JobItemModelFromDomain(item)
	return r.db.WithContext(ctx).Create(model).Error
}

// ListByJob returns all items of a job in processing order
func (r *GormJobItemRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]job.Item, error) {
	var itemModels []models.JobItemModel
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("processed_at ASC").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}

	items := make([]job.Item, len(itemModels))
	for i, model := range itemModels {
		items[i] = *model.ToDomain()
	}
	return items, nil
}

// ListFailedByJob returns the failed items of a job, the input set for a resume
func (r *GormJobItemRepository) ListFailedByJob(ctx context.Context, jobID uuid.UUID) ([]job.Item, error) {
	var itemModels []models.JobItemModel
	if err := r.db.WithContext(ctx).
		Where("job_id = ? AND status IN ?", jobID, []job.ItemStatus{
			job.ItemStatusFailed,
			job.ItemStatusError,
		}).
		Order("processed_at ASC").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}

	items := make([]job.Item, len(itemModels))
	for i, model := range itemModels {
		items[i] = *model.ToDomain()
	}
	return items, nil
}
