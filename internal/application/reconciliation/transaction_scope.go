package reconciliation

import (
	"context"

	"github.com/wms/backend/internal/domain/reconciliation"
	"github.com/wms/backend/internal/domain/stock"
)

// TransactionScope provides transactional access to the repositories a
// finalize touches. When a function is executed within a transaction scope,
// all repository operations are part of the same database transaction and
// commit or roll back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the repositories within a
// transaction. All repositories returned share the same underlying database
// transaction.
//
// Aggregate boundary notes:
//   - SessionRepo/ItemRepo: the reconciliation aggregate. Item writes refresh
//     the session's counted/variance projections in the same statement scope.
//   - MoveRepo: append-only stock ledger; replay-safe via idempotency keys.
//   - LevelRepo: on-hand projection adjusted only through signed deltas.
type TransactionalRepositories interface {
	// SessionRepo returns the session repository scoped to the current transaction
	SessionRepo() reconciliation.SessionRepository
	// ItemRepo returns the item repository scoped to the current transaction
	ItemRepo() reconciliation.ItemRepository
	// MoveRepo returns the stock ledger repository scoped to the current transaction
	MoveRepo() stock.MoveRepository
	// LevelRepo returns the stock level repository scoped to the current transaction
	LevelRepo() stock.LevelRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for testing or when transaction support is not
// required.
type NoOpTransactionScope struct {
	sessionRepo reconciliation.SessionRepository
	itemRepo    reconciliation.ItemRepository
	moveRepo    stock.MoveRepository
	levelRepo   stock.LevelRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	sessionRepo reconciliation.SessionRepository,
	itemRepo reconciliation.ItemRepository,
	moveRepo stock.MoveRepository,
	levelRepo stock.LevelRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		sessionRepo: sessionRepo,
		itemRepo:    itemRepo,
		moveRepo:    moveRepo,
		levelRepo:   levelRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// SessionRepo returns the session repository.
func (s *NoOpTransactionScope) SessionRepo() reconciliation.SessionRepository {
	return s.sessionRepo
}

// ItemRepo returns the item repository.
func (s *NoOpTransactionScope) ItemRepo() reconciliation.ItemRepository {
	return s.itemRepo
}

// MoveRepo returns the stock ledger repository.
func (s *NoOpTransactionScope) MoveRepo() stock.MoveRepository {
	return s.moveRepo
}

// LevelRepo returns the stock level repository.
func (s *NoOpTransactionScope) LevelRepo() stock.LevelRepository {
	return s.levelRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
