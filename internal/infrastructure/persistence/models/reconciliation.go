package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wms/backend/internal/domain/reconciliation"
)

// ReconciliationSessionModel is the persistence model for reconciliation
// sessions. The total/counted/variance columns are projections maintained by
// the item repository, never by handlers.
type ReconciliationSessionModel struct {
	TenantAggregateModel
	Number         string     `gorm:"size:32;not null;uniqueIndex:idx_recon_tenant_number,composite:tenant_id"`
	Name           string     `gorm:"size:255;not null"`
	Description    string     `gorm:"type:text"`
	Status         string     `gorm:"size:20;not null;index"`
	CycleType      string     `gorm:"size:20;not null"`
	WarehouseID    *uuid.UUID `gorm:"type:uuid;index"`
	LocationFilter []byte     `gorm:"type:jsonb"`
	ProductFilter  []byte     `gorm:"type:jsonb"`
	TotalItems     int        `gorm:"not null;default:0"`
	CountedItems   int        `gorm:"not null;default:0"`
	TotalVariance  int64      `gorm:"not null;default:0"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ApprovedBy     *uuid.UUID `gorm:"type:uuid"`
	ApprovedAt     *time.Time
	ApprovalNotes  string `gorm:"type:text"`
	Notes          string `gorm:"type:text"`
}

// TableName returns the table name for ReconciliationSessionModel
func (ReconciliationSessionModel) TableName() string {
	return "reconciliation_sessions"
}

// ToDomain converts the model to a domain Session
func (m *ReconciliationSessionModel) ToDomain() *reconciliation.Session {
	s := &reconciliation.Session{
		Number:         m.Number,
		Name:           m.Name,
		Description:    m.Description,
		Status:         reconciliation.Status(m.Status),
		CycleType:      reconciliation.CycleType(m.CycleType),
		WarehouseID:    m.WarehouseID,
		LocationFilter: json.RawMessage(m.LocationFilter),
		ProductFilter:  json.RawMessage(m.ProductFilter),
		TotalItems:     m.TotalItems,
		CountedItems:   m.CountedItems,
		TotalVariance:  m.TotalVariance,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		ApprovedBy:     m.ApprovedBy,
		ApprovedAt:     m.ApprovedAt,
		ApprovalNotes:  m.ApprovalNotes,
		Notes:          m.Notes,
	}
	m.PopulateTenantAggregateRoot(&s.TenantAggregateRoot)
	return s
}

// FromDomain populates the model from a domain Session
func (m *ReconciliationSessionModel) FromDomain(s *reconciliation.Session) {
	m.FromDomainTenantAggregateRoot(s.TenantAggregateRoot)
	m.Number = s.Number
	m.Name = s.Name
	m.Description = s.Description
	m.Status = s.Status.String()
	m.CycleType = s.CycleType.String()
	m.WarehouseID = s.WarehouseID
	m.LocationFilter = []byte(s.LocationFilter)
	m.ProductFilter = []byte(s.ProductFilter)
	m.TotalItems = s.TotalItems
	m.CountedItems = s.CountedItems
	m.TotalVariance = s.TotalVariance
	m.StartedAt = s.StartedAt
	m.CompletedAt = s.CompletedAt
	m.ApprovedBy = s.ApprovedBy
	m.ApprovedAt = s.ApprovedAt
	m.ApprovalNotes = s.ApprovalNotes
	m.Notes = s.Notes
}

// ReconciliationItemModel is the persistence model for reconciliation items.
// One row per product/warehouse pair in a session; the pair is unique within
// the session so batch counts can address lines without row IDs.
type ReconciliationItemModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID  `gorm:"type:uuid;not null;index"`
	SessionID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_recon_item_line,priority:1"`
	ProductID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_recon_item_line,priority:2"`
	WarehouseID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_recon_item_line,priority:3"`
	LocationID       *uuid.UUID `gorm:"type:uuid"`
	ExpectedQuantity int64      `gorm:"not null"`
	CountedQuantity  *int64
	UnitCost         *float64
	Notes            string     `gorm:"type:text"`
	CountedBy        *uuid.UUID `gorm:"type:uuid"`
	CountedAt        *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for ReconciliationItemModel
func (ReconciliationItemModel) TableName() string {
	return "reconciliation_items"
}

// ToDomain converts the model to a domain Item
func (m *ReconciliationItemModel) ToDomain() reconciliation.Item {
	return reconciliation.Item{
		ID:               m.ID,
		TenantID:         m.TenantID,
		SessionID:        m.SessionID,
		ProductID:        m.ProductID,
		WarehouseID:      m.WarehouseID,
		LocationID:       m.LocationID,
		ExpectedQuantity: m.ExpectedQuantity,
		CountedQuantity:  m.CountedQuantity,
		UnitCost:         m.UnitCost,
		Notes:            m.Notes,
		CountedBy:        m.CountedBy,
		CountedAt:        m.CountedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain Item
func (m *ReconciliationItemModel) FromDomain(item *reconciliation.Item) {
	m.ID = item.ID
	m.TenantID = item.TenantID
	m.SessionID = item.SessionID
	m.ProductID = item.ProductID
	m.WarehouseID = item.WarehouseID
	m.LocationID = item.LocationID
	m.ExpectedQuantity = item.ExpectedQuantity
	m.CountedQuantity = item.CountedQuantity
	m.UnitCost = item.UnitCost
	m.Notes = item.Notes
	m.CountedBy = item.CountedBy
	m.CountedAt = item.CountedAt
	m.CreatedAt = item.CreatedAt
	m.UpdatedAt = item.UpdatedAt
}
