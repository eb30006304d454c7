package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/wms/backend/internal/domain/stock"
)

// StockMoveModel is the persistence model for the append-only stock ledger.
// The idempotency key is unique per tenant; conflicting inserts are treated
// as replays and skipped.
type StockMoveModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_stock_move_idem,priority:1"`
	ProductID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	WarehouseID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	LocationID     *uuid.UUID `gorm:"type:uuid"`
	MoveType       string     `gorm:"size:20;not null"`
	Quantity       int64      `gorm:"not null"`
	UnitCostCents  *int64
	Reason         string     `gorm:"size:255"`
	Reference      string     `gorm:"size:64;index"`
	IdempotencyKey string     `gorm:"size:128;not null;uniqueIndex:idx_stock_move_idem,priority:2"`
	PerformedBy    *uuid.UUID `gorm:"type:uuid"`
	OccurredAt     time.Time  `gorm:"not null"`
	CreatedAt      time.Time  `gorm:"not null"`
}

// TableName returns the table name for StockMoveModel
func (StockMoveModel) TableName() string {
	return "stock_moves"
}

// ToDomain converts the model to a domain Move
func (m *StockMoveModel) ToDomain() *stock.Move {
	return &stock.Move{
		ID:             m.ID,
		TenantID:       m.TenantID,
		ProductID:      m.ProductID,
		WarehouseID:    m.WarehouseID,
		LocationID:     m.LocationID,
		MoveType:       stock.MoveType(m.MoveType),
		Quantity:       m.Quantity,
		UnitCostCents:  m.UnitCostCents,
		Reason:         m.Reason,
		Reference:      m.Reference,
		IdempotencyKey: m.IdempotencyKey,
		PerformedBy:    m.PerformedBy,
		OccurredAt:     m.OccurredAt,
		CreatedAt:      m.CreatedAt,
	}
}

// FromDomain populates the model from a domain Move
func (m *StockMoveModel) FromDomain(move *stock.Move) {
	m.ID = move.ID
	m.TenantID = move.TenantID
	m.ProductID = move.ProductID
	m.WarehouseID = move.WarehouseID
	m.LocationID = move.LocationID
	m.MoveType = move.MoveType.String()
	m.Quantity = move.Quantity
	m.UnitCostCents = move.UnitCostCents
	m.Reason = move.Reason
	m.Reference = move.Reference
	m.IdempotencyKey = move.IdempotencyKey
	m.PerformedBy = move.PerformedBy
	m.OccurredAt = move.OccurredAt
	m.CreatedAt = move.CreatedAt
}

// StockLevelModel is the persistence model for on-hand quantities. A location
// of NULL means the warehouse-wide level row.
type StockLevelModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_stock_level_key"`
	ProductID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_stock_level_key"`
	WarehouseID uuid.UUID  `gorm:"type:uuid;not null;index:idx_stock_level_key"`
	LocationID  *uuid.UUID `gorm:"type:uuid"`
	Quantity    int64      `gorm:"not null;default:0"`
	UnitCost    *float64
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for StockLevelModel
func (StockLevelModel) TableName() string {
	return "stock_levels"
}

// ToDomain converts the model to a domain Level
func (m *StockLevelModel) ToDomain() *stock.Level {
	return &stock.Level{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ProductID:   m.ProductID,
		WarehouseID: m.WarehouseID,
		LocationID:  m.LocationID,
		Quantity:    m.Quantity,
		UnitCost:    m.UnitCost,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ProductModel is the slim product catalog model used by the scan flow
type ProductModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	SKU       string    `gorm:"size:64;not null"`
	Barcode   string    `gorm:"size:64;index"`
	Name      string    `gorm:"size:255;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for ProductModel
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the model to a domain Product
func (m *ProductModel) ToDomain() *stock.Product {
	return &stock.Product{
		ID:       m.ID,
		TenantID: m.TenantID,
		SKU:      m.SKU,
		Barcode:  m.Barcode,
		Name:     m.Name,
		IsActive: m.IsActive,
	}
}
