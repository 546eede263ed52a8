package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dropcraft/backend/internal/domain/job"
)

// JobModel is the persistence model for the Job ledger aggregate.
type JobModel struct {
	ID             uuid.UUID   `gorm:"type:uuid;primary_key"`
	UserID         uuid.UUID   `gorm:"type:uuid;not null;index:idx_jobs_user,priority:1"`
	Type           job.JobType `gorm:"type:varchar(20);not null;index"`
	Subtype        string      `gorm:"type:varchar(50);not null;default:''"`
	Name           string      `gorm:"type:varchar(255);not null;default:''"`
	Status         job.Status  `gorm:"type:varchar(20);not null;index:idx_jobs_status_completed,priority:1"`
	TotalItems     int         `gorm:"not null;default:0"`
	ProcessedItems int         `gorm:"not null;default:0"`
	FailedItems    int         `gorm:"not null;default:0"`
	InputData      string      `gorm:"type:jsonb;default:'{}'"`
	OutputData     string      `gorm:"type:jsonb;default:'{}'"`
	Metadata       string      `gorm:"type:jsonb;default:'{}'"`
	ErrorMessage   string      `gorm:"type:varchar(2000);not null;default:''"`
	RetryOf        *uuid.UUID  `gorm:"type:uuid"`
	ResumedFrom    *uuid.UUID  `gorm:"type:uuid"`
	StartedAt      *time.Time  `gorm:"type:timestamptz"`
	CompletedAt    *time.Time  `gorm:"type:timestamptz;index:idx_jobs_status_completed,priority:2"`
	CreatedAt      time.Time   `gorm:"not null"`
	UpdatedAt      time.Time   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JobModel) TableName() string {
	return "jobs"
}

// ToDomain converts the persistence model to a domain Job.
func (m *JobModel) ToDomain() *job.Job {
	return &job.Job{
		ID:             m.ID,
		UserID:         m.UserID,
		Type:           m.Type,
		Subtype:        m.Subtype,
		Name:           m.Name,
		Status:         m.Status,
		TotalItems:     m.TotalItems,
		ProcessedItems: m.ProcessedItems,
		FailedItems:    m.FailedItems,
		InputData:      jsonToMap(m.InputData),
		OutputData:     jsonToMap(m.OutputData),
		Metadata:       jsonToMap(m.Metadata),
		ErrorMessage:   m.ErrorMessage,
		RetryOf:        m.RetryOf,
		ResumedFrom:    m.ResumedFrom,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Job.
func (m *JobModel) FromDomain(j *job.Job) {
	m.ID = j.ID
	m.UserID = j.UserID
	m.Type = j.Type
	m.Subtype = j.Subtype
	m.Name = j.Name
	m.Status = j.Status
	m.TotalItems = j.TotalItems
	m.ProcessedItems = j.ProcessedItems
	m.FailedItems = j.FailedItems
	m.InputData = mapToJSON(j.InputData)
	m.OutputData = mapToJSON(j.OutputData)
	m.Metadata = mapToJSON(j.Metadata)
	m.ErrorMessage = j.ErrorMessage
	m.RetryOf = j.RetryOf
	m.ResumedFrom = j.ResumedFrom
	m.StartedAt = j.StartedAt
	m.CompletedAt = j.CompletedAt
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt
}

// JobModelFromDomain creates a new persistence model from a domain Job.
func JobModelFromDomain(j *job.Job) *JobModel {
	m := &JobModel{}
	m.FromDomain(j)
	return m
}

// JobItemModel is the persistence model for per-unit job outcome records.
type JobItemModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key"`
	JobID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_job_items_job,priority:1"`
	ProductID   *uuid.UUID     `gorm:"type:uuid;index"`
	Status      job.ItemStatus `gorm:"type:varchar(20);not null;index:idx_job_items_job,priority:2"`
	Message     string         `gorm:"type:varchar(500);not null;default:''"`
	ErrorCode   string         `gorm:"type:varchar(50);not null;default:''"`
	BeforeState string         `gorm:"type:jsonb;default:'{}'"`
	AfterState  string         `gorm:"type:jsonb;default:'{}'"`
	ProcessedAt time.Time      `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (JobItemModel) TableName() string {
	return "job_items"
}

// ToDomain converts the persistence model to a domain Item.
func (m *JobItemModel) ToDomain() *job.Item {
	return &job.Item{
		ID:          m.ID,
		JobID:       m.JobID,
		ProductID:   m.ProductID,
		Status:      m.Status,
		Message:     m.Message,
		ErrorCode:   m.ErrorCode,
		BeforeState: jsonToMap(m.BeforeState),
		AfterState:  jsonToMap(m.AfterState),
		ProcessedAt: m.ProcessedAt,
	}
}

// FromDomain populates the persistence model from a domain Item.
func (m *JobItemModel) FromDomain(i *job.Item) {
	m.ID = i.ID
	m.JobID = i.JobID
	m.ProductID = i.ProductID
	m.Status = i.Status
	m.Message = i.Message
	m.ErrorCode = i.ErrorCode
	m.BeforeState = mapToJSON(i.BeforeState)
	m.AfterState = mapToJSON(i.AfterState)
	m.ProcessedAt = i.ProcessedAt
}

// JobItemModelFromDomain creates a new persistence model from a domain Item.
func JobItemModelFromDomain(i *job.Item) *JobItemModel {
	m := &JobItemModel{}
	m.FromDomain(i)
	return m
}
