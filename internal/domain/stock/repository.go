package stock

import (
	"context"

	"github.com/google/uuid"
)

// MoveRepository is the append-only stock ledger.
type MoveRepository interface {
	// Record appends a ledger entry. An entry whose idempotency key already
	// exists for the tenant is silently skipped, so replays of a finalize
	// never double-book.
	Record(ctx context.Context, move *Move) error

	// FindByIdempotencyKey returns the existing entry for the key, or
	// shared.ErrNotFound.
	FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*Move, error)
}

// LevelRepository maintains on-hand quantities.
type LevelRepository interface {
	// ApplyDelta adjusts the on-hand quantity by a signed amount, creating
	// the level row if it does not exist yet. Quantities may go negative;
	// reconciliation corrects books to reality, it does not enforce policy.
	ApplyDelta(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, locationID *uuid.UUID, delta int64) error

	// Find returns the level row, or shared.ErrNotFound when no stock has
	// ever been booked for the key.
	Find(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, locationID *uuid.UUID) (*Level, error)
}

// ProductRepository resolves products for the scan flow.
type ProductRepository interface {
	// FindByBarcode returns the active product carrying the barcode, or
	// shared.ErrNotFound.
	FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*Product, error)
}
