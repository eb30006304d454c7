package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wms/backend/internal/domain/reconciliation"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/infrastructure/persistence/models"
)

// GormSessionRepository implements reconciliation.SessionRepository using GORM.
//
// Status transitions are conditional UPDATEs guarded on the current status.
// Zero rows affected with an existing row means another caller moved the
// session first, which surfaces as a concurrency conflict rather than a
// silent double-apply.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// numberRetries bounds how often Create regenerates a session number after
// losing the read-then-insert race on the (tenant, number) unique index.
const numberRetries = 3

// Create inserts a new session, assigning its sequence number. Number
// generation is a read-then-insert, so two concurrent creators in the same
// tenant can pick the same number; the loser hits the unique index and
// retries with a fresh one.
func (r *GormSessionRepository) Create(ctx context.Context, s *reconciliation.Session) error {
	var lastErr error
	for attempt := 0; attempt < numberRetries; attempt++ {
		number, err := r.generateNumber(ctx, s.TenantID)
		if err != nil {
			return err
		}
		s.Number = number

		var model models.ReconciliationSessionModel
		model.FromDomain(s)
		err = r.db.WithContext(ctx).Create(&model).Error
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return shared.NewDatabaseError(fmt.Sprintf("Failed to create session: %v", err))
		}
		lastErr = err
	}
	return shared.NewDatabaseError(fmt.Sprintf("Failed to create session after %d number collisions: %v", numberRetries, lastErr))
}

// isUniqueViolation reports whether err is a unique-index violation, across
// the translated gorm error and the raw postgres/sqlite messages.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

// FindByID finds a session by ID within a tenant
func (r *GormSessionRepository) FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*reconciliation.Session, error) {
	var model models.ReconciliationSessionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List finds sessions matching the filter
func (r *GormSessionRepository) List(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ListFilter) ([]reconciliation.Session, error) {
	var sessionModels []models.ReconciliationSessionModel
	query := r.applyListFilter(
		r.db.WithContext(ctx).Model(&models.ReconciliationSessionModel{}).
			Where("tenant_id = ?", tenantID),
		filter,
	)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	query = query.Order(r.orderClause(filter))

	if err := query.Find(&sessionModels).Error; err != nil {
		return nil, err
	}
	sessions := make([]reconciliation.Session, len(sessionModels))
	for i := range sessionModels {
		sessions[i] = *sessionModels[i].ToDomain()
	}
	return sessions, nil
}

// Count counts sessions matching the filter
func (r *GormSessionRepository) Count(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ListFilter) (int64, error) {
	var count int64
	query := r.applyListFilter(
		r.db.WithContext(ctx).Model(&models.ReconciliationSessionModel{}).
			Where("tenant_id = ?", tenantID),
		filter,
	)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Start transitions Draft to InProgress
func (r *GormSessionRepository) Start(ctx context.Context, tenantID, sessionID uuid.UUID, startedAt time.Time) error {
	return r.conditionalTransition(ctx, tenantID, sessionID,
		[]reconciliation.Status{reconciliation.StatusDraft},
		map[string]any{
			"status":     reconciliation.StatusInProgress.String(),
			"started_at": startedAt,
			"updated_at": startedAt,
		})
}

// Complete transitions InProgress to Completed
func (r *GormSessionRepository) Complete(ctx context.Context, tenantID, sessionID uuid.UUID, completedAt time.Time) error {
	return r.conditionalTransition(ctx, tenantID, sessionID,
		[]reconciliation.Status{reconciliation.StatusInProgress},
		map[string]any{
			"status":       reconciliation.StatusCompleted.String(),
			"completed_at": completedAt,
			"updated_at":   completedAt,
		})
}

// Approve transitions Completed to Approved
func (r *GormSessionRepository) Approve(ctx context.Context, tenantID, sessionID, approvedBy uuid.UUID, approvedAt time.Time, notes string) error {
	return r.conditionalTransition(ctx, tenantID, sessionID,
		[]reconciliation.Status{reconciliation.StatusCompleted},
		map[string]any{
			"status":         reconciliation.StatusApproved.String(),
			"approved_by":    approvedBy,
			"approved_at":    approvedAt,
			"approval_notes": notes,
			"updated_at":     approvedAt,
		})
}

// Cancel transitions Draft or InProgress to Cancelled
func (r *GormSessionRepository) Cancel(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	return r.conditionalTransition(ctx, tenantID, sessionID,
		[]reconciliation.Status{reconciliation.StatusDraft, reconciliation.StatusInProgress},
		map[string]any{
			"status":     reconciliation.StatusCancelled.String(),
			"updated_at": time.Now().UTC(),
		})
}

// Delete removes a session header and its items. Used only by the
// compensating cleanup after a failed create.
func (r *GormSessionRepository) Delete(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
			Delete(&models.ReconciliationItemModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("tenant_id = ? AND id = ?", tenantID, sessionID).
			Delete(&models.ReconciliationSessionModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// conditionalTransition updates the session only when its current status is
// one of the expected statuses, incrementing the optimistic-lock version.
func (r *GormSessionRepository) conditionalTransition(ctx context.Context, tenantID, sessionID uuid.UUID, from []reconciliation.Status, updates map[string]any) error {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = s.String()
	}
	updates["version"] = gorm.Expr("version + 1")

	result := r.db.WithContext(ctx).Model(&models.ReconciliationSessionModel{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, sessionID, statuses).
		Updates(updates)
	if result.Error != nil {
		return shared.NewDatabaseError(fmt.Sprintf("Failed to update session status: %v", result.Error))
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ReconciliationSessionModel{}).
			Where("tenant_id = ? AND id = ?", tenantID, sessionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// generateNumber produces the next per-tenant session number, REC-YYYYMMDD-NNNN
func (r *GormSessionRepository) generateNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	today := time.Now().Format("20060102")
	prefix := fmt.Sprintf("REC-%s-", today)

	var maxNumber string
	err := r.db.WithContext(ctx).Model(&models.ReconciliationSessionModel{}).
		Select("number").
		Where("tenant_id = ? AND number LIKE ?", tenantID, prefix+"%").
		Order("number DESC").
		Limit(1).
		Pluck("number", &maxNumber).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var seq int
	if maxNumber != "" {
		parts := strings.Split(maxNumber, "-")
		if len(parts) >= 3 {
			if _, err := fmt.Sscanf(parts[len(parts)-1], "%04d", &seq); err == nil {
				seq++
			}
		}
	}
	if seq == 0 {
		seq = 1
	}

	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// applyListFilter applies the optional list predicates
func (r *GormSessionRepository) applyListFilter(query *gorm.DB, filter reconciliation.ListFilter) *gorm.DB {
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.CycleType != nil {
		query = query.Where("cycle_type = ?", filter.CycleType.String())
	}
	return query
}

// orderClause builds a safe ORDER BY from the filter
func (r *GormSessionRepository) orderClause(filter reconciliation.ListFilter) string {
	orderBy := "created_at"
	validFields := map[string]bool{
		"number":     true,
		"status":     true,
		"created_at": true,
		"updated_at": true,
	}
	if validFields[filter.OrderBy] {
		orderBy = filter.OrderBy
	}

	orderDir := "DESC"
	if strings.EqualFold(filter.OrderDir, "asc") {
		orderDir = "ASC"
	}
	return fmt.Sprintf("%s %s", orderBy, orderDir)
}

var _ reconciliation.SessionRepository = (*GormSessionRepository)(nil)
