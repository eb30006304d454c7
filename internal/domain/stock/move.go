package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wms/backend/internal/domain/shared"
)

// MoveType classifies a ledger entry
type MoveType string

const (
	MoveTypeAdjustment MoveType = "adjustment"
	MoveTypeReceipt    MoveType = "receipt"
	MoveTypeIssue      MoveType = "issue"
	MoveTypeTransfer   MoveType = "transfer"
)

func (t MoveType) IsValid() bool {
	switch t {
	case MoveTypeAdjustment, MoveTypeReceipt, MoveTypeIssue, MoveTypeTransfer:
		return true
	}
	return false
}

func (t MoveType) String() string {
	return string(t)
}

// Move is an append-only stock ledger entry. IdempotencyKey makes replays of
// the same logical movement harmless: a second Record with the same key is a
// no-op.
type Move struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ProductID      uuid.UUID
	WarehouseID    uuid.UUID
	LocationID     *uuid.UUID
	MoveType       MoveType
	Quantity       int64
	UnitCostCents  *int64
	Reason         string
	Reference      string
	IdempotencyKey string
	PerformedBy    *uuid.UUID
	OccurredAt     time.Time
	CreatedAt      time.Time
}

// NewAdjustmentMove builds a signed adjustment ledger entry. Quantity may be
// negative (shrinkage) or positive (overage) but never zero.
func NewAdjustmentMove(tenantID, productID, warehouseID uuid.UUID, locationID *uuid.UUID, quantity int64, unitCostCents *int64, reason, reference, idempotencyKey string, performedBy *uuid.UUID, occurredAt time.Time) (*Move, error) {
	if quantity == 0 {
		return nil, shared.NewValidationError("adjustment quantity must not be zero")
	}
	if idempotencyKey == "" {
		return nil, shared.NewValidationError("idempotency key is required")
	}
	now := time.Now().UTC()
	return &Move{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ProductID:      productID,
		WarehouseID:    warehouseID,
		LocationID:     locationID,
		MoveType:       MoveTypeAdjustment,
		Quantity:       quantity,
		UnitCostCents:  unitCostCents,
		Reason:         reason,
		Reference:      reference,
		IdempotencyKey: idempotencyKey,
		PerformedBy:    performedBy,
		OccurredAt:     occurredAt,
		CreatedAt:      now,
	}, nil
}

// ReconciliationIdempotencyKey derives the replay-safe key for an adjustment
// produced by a reconciliation item.
func ReconciliationIdempotencyKey(reconciliationID, productID, warehouseID uuid.UUID) string {
	return fmt.Sprintf("rec-%s-item-%s-%s", reconciliationID, productID, warehouseID)
}
