package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/wms/backend/internal/domain/reconciliation"
	"github.com/wms/backend/internal/domain/shared"
)

// AuditLogHandler writes a structured audit line for every reconciliation
// lifecycle event. It subscribes to the session events only, not the
// wildcard stream.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates a new AuditLogHandler
func NewAuditLogHandler(logger *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: logger}
}

// Handle logs the event with its aggregate and tenant identifiers
func (h *AuditLogHandler) Handle(_ context.Context, evt shared.DomainEvent) error {
	h.logger.Info("reconciliation audit",
		zap.String("event_type", evt.EventType()),
		zap.String("aggregate_id", evt.AggregateID().String()),
		zap.String("tenant_id", evt.TenantID().String()),
		zap.Time("occurred_at", evt.OccurredAt()),
	)
	return nil
}

// EventTypes returns the reconciliation lifecycle events this handler audits
func (h *AuditLogHandler) EventTypes() []string {
	return []string{
		reconciliation.EventTypeSessionCreated,
		reconciliation.EventTypeCountingStarted,
		reconciliation.EventTypeSessionCompleted,
		reconciliation.EventTypeSessionApproved,
		reconciliation.EventTypeSessionCancelled,
	}
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
