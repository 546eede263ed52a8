package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dropcraft/backend/internal/domain/platform"
)

// StoreModel is the persistence model for a connected platform store.
type StoreModel struct {
	ID                    uuid.UUID     `gorm:"type:uuid;primary_key"`
	OwnerID               uuid.UUID     `gorm:"type:uuid;not null;index:idx_stores_owner,priority:1"`
	Name                  string        `gorm:"type:varchar(255);not null"`
	Platform              platform.Code `gorm:"type:varchar(20);not null;index"`
	CredentialsCiphertext []byte        `gorm:"type:bytea"`
	IsActive              bool          `gorm:"not null;default:true"`
	CreatedAt             time.Time     `gorm:"not null"`
	UpdatedAt             time.Time     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "stores"
}

// ToDomain converts the persistence model to a domain Store.
func (m *StoreModel) ToDomain() *platform.Store {
	return &platform.Store{
		ID:                    m.ID,
		OwnerID:               m.OwnerID,
		Name:                  m.Name,
		Platform:              m.Platform,
		CredentialsCiphertext: m.CredentialsCiphertext,
		IsActive:              m.IsActive,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Store.
func (m *StoreModel) FromDomain(s *platform.Store) {
	m.ID = s.ID
	m.OwnerID = s.OwnerID
	m.Name = s.Name
	m.Platform = s.Platform
	m.CredentialsCiphertext = s.CredentialsCiphertext
	m.IsActive = s.IsActive
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// StoreModelFromDomain creates a new persistence model from a domain Store.
func StoreModelFromDomain(s *platform.Store) *StoreModel {
	m := &StoreModel{}
	m.FromDomain(s)
	return m
}

// ProductStoreLinkModel is the persistence model for the association between
// a local product and a product on one remote store.
type ProductStoreLinkModel struct {
	ID                uuid.UUID           `gorm:"type:uuid;primary_key"`
	OwnerID           uuid.UUID           `gorm:"type:uuid;not null;index:idx_links_owner,priority:1"`
	ProductID         uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_links_product_store,priority:1"`
	StoreID           uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_links_product_store,priority:2;index"`
	ExternalProductID string              `gorm:"type:varchar(100);not null;default:''"`
	SyncStatus        platform.SyncStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	PendingConflicts  string              `gorm:"type:jsonb;default:'[]'"`
	LastSyncAt        *time.Time          `gorm:"type:timestamptz;index"`
	LastError         string              `gorm:"type:varchar(500);not null;default:''"`
	CreatedAt         time.Time           `gorm:"not null"`
	UpdatedAt         time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductStoreLinkModel) TableName() string {
	return "product_store_links"
}

// ToDomain converts the persistence model to a domain ProductStoreLink.
func (m *ProductStoreLinkModel) ToDomain() *platform.ProductStoreLink {
	link := &platform.ProductStoreLink{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		ProductID:         m.ProductID,
		StoreID:           m.StoreID,
		ExternalProductID: m.ExternalProductID,
		SyncStatus:        m.SyncStatus,
		LastSyncAt:        m.LastSyncAt,
		LastError:         m.LastError,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.PendingConflicts != "" && m.PendingConflicts != "[]" {
		_ = json.Unmarshal([]byte(m.PendingConflicts), &link.PendingConflicts)
	}
	return link
}

// FromDomain populates the persistence model from a domain ProductStoreLink.
func (m *ProductStoreLinkModel) FromDomain(l *platform.ProductStoreLink) {
	m.ID = l.ID
	m.OwnerID = l.OwnerID
	m.ProductID = l.ProductID
	m.StoreID = l.StoreID
	m.ExternalProductID = l.ExternalProductID
	m.SyncStatus = l.SyncStatus
	m.PendingConflicts = sliceToJSON(l.PendingConflicts)
	m.LastSyncAt = l.LastSyncAt
	m.LastError = l.LastError
	m.CreatedAt = l.CreatedAt
	m.UpdatedAt = l.UpdatedAt
}

// ProductStoreLinkModelFromDomain creates a new persistence model from a
// domain ProductStoreLink.
func ProductStoreLinkModelFromDomain(l *platform.ProductStoreLink) *ProductStoreLinkModel {
	m := &ProductStoreLinkModel{}
	m.FromDomain(l)
	return m
}
