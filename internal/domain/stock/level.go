package stock

import (
	"time"

	"github.com/google/uuid"
)

// Level is the current on-hand quantity of a product at a warehouse
// (optionally a specific location). Rows are maintained through signed deltas
// applied by the ledger, never written directly by callers.
type Level struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	LocationID  *uuid.UUID
	Quantity    int64
	UnitCost    *float64
	UpdatedAt   time.Time
}

// Product is the slim product view the reconciliation flows need
type Product struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	SKU      string
	Barcode  string
	Name     string
	IsActive bool
}
