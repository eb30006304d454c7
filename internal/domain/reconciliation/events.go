package reconciliation

import (
	"github.com/google/uuid"
	"github.com/wms/backend/internal/domain/shared"
)

// Aggregate type constant for Session
const AggregateTypeSession = "ReconciliationSession"

// Session event type constants
const (
	EventTypeSessionCreated   = "ReconciliationSessionCreated"
	EventTypeCountingStarted  = "ReconciliationCountingStarted"
	EventTypeSessionCompleted = "ReconciliationSessionCompleted"
	EventTypeSessionApproved  = "ReconciliationSessionApproved"
	EventTypeSessionCancelled = "ReconciliationSessionCancelled"
)

// SessionCreatedEvent is raised when a reconciliation session is created
type SessionCreatedEvent struct {
	shared.BaseDomainEvent
	SessionID   uuid.UUID  `json:"session_id"`
	Number      string     `json:"number"`
	Name        string     `json:"name"`
	CycleType   CycleType  `json:"cycle_type"`
	WarehouseID *uuid.UUID `json:"warehouse_id,omitempty"`
}

// NewSessionCreatedEvent creates a new SessionCreatedEvent
func NewSessionCreatedEvent(s *Session) *SessionCreatedEvent {
	return &SessionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionCreated, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		Number:          s.Number,
		Name:            s.Name,
		CycleType:       s.CycleType,
		WarehouseID:     s.WarehouseID,
	}
}

// EventType returns the event type name
func (e *SessionCreatedEvent) EventType() string {
	return EventTypeSessionCreated
}

// CountingStartedEvent is raised when the first count moves a session into
// InProgress
type CountingStartedEvent struct {
	shared.BaseDomainEvent
	SessionID  uuid.UUID `json:"session_id"`
	Number     string    `json:"number"`
	TotalItems int       `json:"total_items"`
}

// NewCountingStartedEvent creates a new CountingStartedEvent
func NewCountingStartedEvent(s *Session) *CountingStartedEvent {
	return &CountingStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCountingStarted, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		Number:          s.Number,
		TotalItems:      s.TotalItems,
	}
}

// EventType returns the event type name
func (e *CountingStartedEvent) EventType() string {
	return EventTypeCountingStarted
}

// SessionCompletedEvent is raised when a session is finalized and its
// adjustments are committed
type SessionCompletedEvent struct {
	shared.BaseDomainEvent
	SessionID     uuid.UUID `json:"session_id"`
	Number        string    `json:"number"`
	TotalItems    int       `json:"total_items"`
	TotalVariance int64     `json:"total_variance"`
}

// NewSessionCompletedEvent creates a new SessionCompletedEvent
func NewSessionCompletedEvent(s *Session) *SessionCompletedEvent {
	return &SessionCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionCompleted, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		Number:          s.Number,
		TotalItems:      s.TotalItems,
		TotalVariance:   s.TotalVariance,
	}
}

// EventType returns the event type name
func (e *SessionCompletedEvent) EventType() string {
	return EventTypeSessionCompleted
}

// SessionApprovedEvent is raised when a completed session is approved
type SessionApprovedEvent struct {
	shared.BaseDomainEvent
	SessionID  uuid.UUID `json:"session_id"`
	Number     string    `json:"number"`
	ApprovedBy uuid.UUID `json:"approved_by"`
}

// NewSessionApprovedEvent creates a new SessionApprovedEvent
func NewSessionApprovedEvent(s *Session) *SessionApprovedEvent {
	e := &SessionApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionApproved, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		Number:          s.Number,
	}
	if s.ApprovedBy != nil {
		e.ApprovedBy = *s.ApprovedBy
	}
	return e
}

// EventType returns the event type name
func (e *SessionApprovedEvent) EventType() string {
	return EventTypeSessionApproved
}

// SessionCancelledEvent is raised when a session is cancelled
type SessionCancelledEvent struct {
	shared.BaseDomainEvent
	SessionID uuid.UUID `json:"session_id"`
	Number    string    `json:"number"`
}

// NewSessionCancelledEvent creates a new SessionCancelledEvent
func NewSessionCancelledEvent(s *Session) *SessionCancelledEvent {
	return &SessionCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionCancelled, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		Number:          s.Number,
	}
}

// EventType returns the event type name
func (e *SessionCancelledEvent) EventType() string {
	return EventTypeSessionCancelled
}
