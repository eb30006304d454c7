package persistence

import (
	"context"

	"gorm.io/gorm"

	apprecon "github.com/wms/backend/internal/application/reconciliation"
	"github.com/wms/backend/internal/domain/reconciliation"
	"github.com/wms/backend/internal/domain/stock"
)

// GormTransactionScope implements the reconciliation TransactionScope using
// GORM transactions. Everything a finalize touches — the session transition,
// ledger entries and level deltas — commits or rolls back as one unit.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apprecon.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides repositories bound to one transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// SessionRepo returns the session repository scoped to the current transaction
func (r *gormTransactionalRepositories) SessionRepo() reconciliation.SessionRepository {
	return NewGormSessionRepository(r.tx)
}

// ItemRepo returns the item repository scoped to the current transaction
func (r *gormTransactionalRepositories) ItemRepo() reconciliation.ItemRepository {
	return NewGormItemRepository(r.tx)
}

// MoveRepo returns the stock ledger repository scoped to the current transaction
func (r *gormTransactionalRepositories) MoveRepo() stock.MoveRepository {
	return NewGormMoveRepository(r.tx)
}

// LevelRepo returns the stock level repository scoped to the current transaction
func (r *gormTransactionalRepositories) LevelRepo() stock.LevelRepository {
	return NewGormLevelRepository(r.tx)
}

var _ apprecon.TransactionScope = (*GormTransactionScope)(nil)
var _ apprecon.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
