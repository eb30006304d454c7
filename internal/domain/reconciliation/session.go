package reconciliation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wms/backend/internal/domain/shared"
)

// Session represents a stock reconciliation (cycle count) session.
// It is the aggregate root for reconciliation operations.
//
// TotalItems, CountedItems and TotalVariance are projections of item state
// owned by the repository layer: the engine reads them but never recomputes
// them ad hoc.
type Session struct {
	shared.TenantAggregateRoot
	Number         string
	Name           string
	Description    string
	Status         Status
	CycleType      CycleType
	WarehouseID    *uuid.UUID
	LocationFilter json.RawMessage
	ProductFilter  json.RawMessage
	TotalItems     int
	CountedItems   int
	TotalVariance  int64
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ApprovedBy     *uuid.UUID
	ApprovedAt     *time.Time
	ApprovalNotes  string
	Notes          string
}

// NewSessionParams carries the caller-supplied attributes of a new session.
// The number is assigned by the repository, items are seeded from inventory.
type NewSessionParams struct {
	Name           string
	Description    string
	CycleType      CycleType
	WarehouseID    *uuid.UUID
	LocationFilter json.RawMessage
	ProductFilter  json.RawMessage
	Notes          string
}

// NewSession creates a new reconciliation session in Draft status with
// zeroed aggregates.
func NewSession(tenantID, createdBy uuid.UUID, p NewSessionParams) (*Session, error) {
	if p.Name == "" {
		return nil, shared.NewValidationError("Session name cannot be empty")
	}
	if len(p.Name) > 255 {
		return nil, shared.NewValidationError("Session name cannot exceed 255 characters")
	}
	if !p.CycleType.IsValid() {
		return nil, shared.NewValidationError(fmt.Sprintf("Invalid cycle type %q", p.CycleType))
	}
	if createdBy == uuid.Nil {
		return nil, shared.NewValidationError("Creator ID cannot be empty")
	}

	s := &Session{
		TenantAggregateRoot: shared.NewTenantAggregateRootWithCreator(tenantID, createdBy),
		Name:                p.Name,
		Description:         p.Description,
		Status:              StatusDraft,
		CycleType:           p.CycleType,
		WarehouseID:         p.WarehouseID,
		LocationFilter:      p.LocationFilter,
		ProductFilter:       p.ProductFilter,
		Notes:               p.Notes,
	}

	s.AddDomainEvent(NewSessionCreatedEvent(s))

	return s, nil
}

// CanReceiveCounts reports whether counted quantities may still be submitted
func (s *Session) CanReceiveCounts() bool {
	return s.Status == StatusDraft || s.Status == StatusInProgress
}

// Start transitions the session from Draft to InProgress. It is triggered as
// a side effect of the first successful count submission.
func (s *Session) Start() error {
	if !s.Status.CanTransitionTo(StatusInProgress) {
		return shared.NewValidationError(fmt.Sprintf("Cannot start counting from status %s", s.Status))
	}

	now := time.Now()
	s.Status = StatusInProgress
	s.StartedAt = &now
	s.UpdatedAt = now
	s.IncrementVersion()

	s.AddDomainEvent(NewCountingStartedEvent(s))

	return nil
}

// Complete transitions the session from InProgress to Completed. The
// all-items-counted precondition is validated by the finalizer against the
// variance analysis, not here.
func (s *Session) Complete(completedAt time.Time) error {
	if !s.Status.CanTransitionTo(StatusCompleted) {
		return shared.NewValidationError(fmt.Sprintf("Cannot finalize from status %s, session must be in progress", s.Status))
	}

	s.Status = StatusCompleted
	s.CompletedAt = &completedAt
	s.UpdatedAt = completedAt
	s.IncrementVersion()

	s.AddDomainEvent(NewSessionCompletedEvent(s))

	return nil
}

// Approve transitions the session from Completed to Approved. Approval is
// not idempotent: approving an already-Approved session fails.
func (s *Session) Approve(approvedBy uuid.UUID, notes string) error {
	if !s.Status.CanTransitionTo(StatusApproved) {
		return shared.NewValidationError(fmt.Sprintf("Cannot approve from status %s, session must be completed", s.Status))
	}
	if approvedBy == uuid.Nil {
		return shared.NewValidationError("Approver ID cannot be empty")
	}

	now := time.Now()
	s.Status = StatusApproved
	s.ApprovedBy = &approvedBy
	s.ApprovedAt = &now
	s.ApprovalNotes = notes
	s.UpdatedAt = now
	s.IncrementVersion()

	s.AddDomainEvent(NewSessionApprovedEvent(s))

	return nil
}

// Cancel marks the session as cancelled. Cancellation is a terminal status,
// not a row deletion, and is only reachable from Draft or InProgress.
func (s *Session) Cancel() error {
	if !s.Status.CanTransitionTo(StatusCancelled) {
		return shared.NewValidationError(fmt.Sprintf("Cannot cancel from status %s", s.Status))
	}

	now := time.Now()
	s.Status = StatusCancelled
	s.UpdatedAt = now
	s.IncrementVersion()

	s.AddDomainEvent(NewSessionCancelledEvent(s))

	return nil
}

// IsFullyCounted reports whether every item in the session has a count
func (s *Session) IsFullyCounted() bool {
	return s.TotalItems > 0 && s.CountedItems == s.TotalItems
}

// Progress returns the counting progress as a percentage
func (s *Session) Progress() float64 {
	if s.TotalItems == 0 {
		return 0
	}
	return float64(s.CountedItems) / float64(s.TotalItems) * 100
}
