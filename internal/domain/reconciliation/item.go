package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item represents a single line in a reconciliation session: one product at
// one warehouse (optionally one location) with an expected quantity
// snapshotted at session-creation time.
//
// ExpectedQuantity is immutable after creation — the session is a
// point-in-time comparison and is never re-read from book inventory, even if
// levels change while counting is underway.
type Item struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	SessionID        uuid.UUID
	ProductID        uuid.UUID
	WarehouseID      uuid.UUID
	LocationID       *uuid.UUID
	ExpectedQuantity int64
	CountedQuantity  *int64
	UnitCost         *float64
	Notes            string
	CountedBy        *uuid.UUID
	CountedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Counted reports whether a counted quantity has been submitted for this line.
// An uncounted item blocks finalize of its parent session.
func (i *Item) Counted() bool {
	return i.CountedQuantity != nil
}

// Variance returns counted minus expected quantity. The second return value
// is false until the item has been counted.
func (i *Item) Variance() (int64, bool) {
	if i.CountedQuantity == nil {
		return 0, false
	}
	return *i.CountedQuantity - i.ExpectedQuantity, true
}

// HasVariance reports whether the item has been counted and the count differs
// from the expected quantity
func (i *Item) HasVariance() bool {
	v, ok := i.Variance()
	return ok && v != 0
}

// VariancePercentage returns variance divided by expected quantity. It is
// undefined (false) for uncounted items and for an expected quantity of zero.
func (i *Item) VariancePercentage() (float64, bool) {
	v, ok := i.Variance()
	if !ok || i.ExpectedQuantity == 0 {
		return 0, false
	}
	return float64(v) / float64(i.ExpectedQuantity), true
}

// VarianceValue returns variance multiplied by unit cost. It is undefined
// (false) until the item is counted and a unit cost is known.
func (i *Item) VarianceValue() (decimal.Decimal, bool) {
	v, ok := i.Variance()
	if !ok || i.UnitCost == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*i.UnitCost).Mul(decimal.NewFromInt(v)), true
}

// RecordCount applies a counted quantity to the line. Subsequent counts of
// the same line overwrite earlier ones (last write wins).
func (i *Item) RecordCount(quantity int64, unitCost *float64, countedBy uuid.UUID, notes string) {
	now := time.Now()
	i.CountedQuantity = &quantity
	if unitCost != nil {
		i.UnitCost = unitCost
	}
	i.CountedBy = &countedBy
	i.CountedAt = &now
	if notes != "" {
		i.Notes = notes
	}
	i.UpdatedAt = now
}
