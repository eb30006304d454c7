package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// AdjustmentReason is the reason recorded on every ledger write produced by
// a finalized reconciliation.
const AdjustmentReason = "Reconciliation discrepancy"

// StockAdjustment is the ephemeral record of one permanent inventory
// correction produced by finalize. Adjustments are returned to the caller
// but are not an aggregate root of this engine; the durable facts live in
// the stock-move ledger and the inventory level store.
type StockAdjustment struct {
	AdjustmentID uuid.UUID  `json:"adjustment_id"`
	ProductID    uuid.UUID  `json:"product_id"`
	WarehouseID  uuid.UUID  `json:"warehouse_id"`
	LocationID   *uuid.UUID `json:"location_id,omitempty"`
	Quantity     int64      `json:"quantity"`
	Reason       string     `json:"reason"`
	AdjustedAt   time.Time  `json:"adjusted_at"`
}

// NewStockAdjustment creates an adjustment entry for a variance
func NewStockAdjustment(item *Item, variance int64, adjustedAt time.Time) StockAdjustment {
	return StockAdjustment{
		AdjustmentID: uuid.New(),
		ProductID:    item.ProductID,
		WarehouseID:  item.WarehouseID,
		LocationID:   item.LocationID,
		Quantity:     variance,
		Reason:       AdjustmentReason,
		AdjustedAt:   adjustedAt,
	}
}
