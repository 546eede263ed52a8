package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dropcraft/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for the catalog snapshot the sync
// engine works against.
type ProductModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	OwnerID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_products_owner,priority:1"`
	Title          string          `gorm:"type:varchar(255);not null"`
	Description    string          `gorm:"type:text;not null;default:''"`
	SKU            string          `gorm:"type:varchar(100);not null;index"`
	Price          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CompareAtPrice decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Stock          int             `gorm:"not null;default:0"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'USD'"`
	ImageURLs      string          `gorm:"type:jsonb;default:'[]'"`
	Tags           string          `gorm:"type:jsonb;default:'[]'"`
	Status         string          `gorm:"type:varchar(20);not null;default:'draft'"`
	Weight         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product.
func (m *ProductModel) ToDomain() *catalog.Product {
	p := &catalog.Product{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Title:          m.Title,
		Description:    m.Description,
		SKU:            m.SKU,
		Price:          m.Price,
		CompareAtPrice: m.CompareAtPrice,
		Stock:          m.Stock,
		Currency:       m.Currency,
		Status:         m.Status,
		Weight:         m.Weight,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.ImageURLs != "" && m.ImageURLs != "[]" {
		_ = json.Unmarshal([]byte(m.ImageURLs), &p.ImageURLs)
	}
	if m.Tags != "" && m.Tags != "[]" {
		_ = json.Unmarshal([]byte(m.Tags), &p.Tags)
	}
	return p
}

// FromDomain populates the persistence model from a domain Product.
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.ID = p.ID
	m.OwnerID = p.OwnerID
	m.Title = p.Title
	m.Description = p.Description
	m.SKU = p.SKU
	m.Price = p.Price
	m.CompareAtPrice = p.CompareAtPrice
	m.Stock = p.Stock
	m.Currency = p.Currency
	m.ImageURLs = sliceToJSON(p.ImageURLs)
	m.Tags = sliceToJSON(p.Tags)
	m.Status = p.Status
	m.Weight = p.Weight
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// ProductModelFromDomain creates a new persistence model from a domain Product.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}
