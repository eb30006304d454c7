package reconciliation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wms/backend/internal/domain/shared"
)

// CountUpdate carries one counted line of a batch count submission
type CountUpdate struct {
	ProductID       uuid.UUID
	WarehouseID     uuid.UUID
	LocationID      *uuid.UUID
	CountedQuantity int64
	UnitCost        *float64
	CountedBy       uuid.UUID
	Notes           string
}

// ListFilter narrows a tenant-scoped session listing
type ListFilter struct {
	shared.Filter
	WarehouseID *uuid.UUID
	Status      *Status
	CycleType   *CycleType
}

// SessionRepository persists reconciliation session headers and status
// transitions. Status-changing methods use conditional updates
// (WHERE status = <expected>) and return ErrConcurrencyConflict when the row
// was already moved by another caller, which closes the finalize race between
// two callers both observing InProgress.
type SessionRepository interface {
	// Create inserts a Draft session header with zeroed aggregates,
	// assigning its sequence number.
	Create(ctx context.Context, s *Session) error

	// FindByID returns the session for the tenant or shared.ErrNotFound
	FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*Session, error)

	// List returns sessions matching the filter, newest first
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Session, error)

	// Count returns the number of sessions matching the filter
	Count(ctx context.Context, tenantID uuid.UUID, filter ListFilter) (int64, error)

	// Start transitions Draft to InProgress, recording startedAt
	Start(ctx context.Context, tenantID, sessionID uuid.UUID, startedAt time.Time) error

	// Complete transitions InProgress to Completed, recording completedAt.
	// Must be invoked with transaction-scoped repositories during finalize.
	Complete(ctx context.Context, tenantID, sessionID uuid.UUID, completedAt time.Time) error

	// Approve transitions Completed to Approved
	Approve(ctx context.Context, tenantID, sessionID, approvedBy uuid.UUID, approvedAt time.Time, notes string) error

	// Cancel transitions Draft or InProgress to Cancelled
	Cancel(ctx context.Context, tenantID, sessionID uuid.UUID) error

	// Delete removes a session header. It exists solely for the
	// best-effort compensating cleanup after a failed item population;
	// committed sessions are never deleted.
	Delete(ctx context.Context, tenantID, sessionID uuid.UUID) error
}

// ItemRepository persists reconciliation items. It owns both the
// point-in-time snapshot query that seeds items from inventory and the
// projection that keeps the parent session's aggregates in step with item
// state.
type ItemRepository interface {
	// CreateFromInventory snapshots current inventory levels into items for
	// the session, filtered by cycle type and scope, and sets the session's
	// total_items projection.
	CreateFromInventory(ctx context.Context, tenantID, sessionID uuid.UUID, cycleType CycleType, warehouseID *uuid.UUID, locationFilter, productFilter json.RawMessage) ([]Item, error)

	// FindBySession returns all items of a session
	FindBySession(ctx context.Context, tenantID, sessionID uuid.UUID) ([]Item, error)

	// FindByKey returns one item by its composite key or shared.ErrNotFound
	FindByKey(ctx context.Context, tenantID, sessionID, productID, warehouseID uuid.UUID) (*Item, error)

	// BatchUpdateCounts applies counted quantities to the given lines in a
	// single batch (last write wins per line) and refreshes the session's
	// counted_items and total_variance projections. A line that does not
	// exist in the session yields shared.ErrNotFound.
	BatchUpdateCounts(ctx context.Context, tenantID, sessionID uuid.UUID, counts []CountUpdate) error

	// VarianceAnalysis returns all items of the session in deterministic
	// (product, warehouse) order for variance computation.
	VarianceAnalysis(ctx context.Context, tenantID, sessionID uuid.UUID) ([]Item, error)
}
