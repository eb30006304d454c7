package reconciliation

// Status represents the lifecycle state of a reconciliation session.
// Transitions are monotonic; Approved and Cancelled are terminal.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusApproved   Status = "approved"
	StatusCancelled  Status = "cancelled"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted, StatusApproved, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusDraft:
		return target == StatusInProgress || target == StatusCancelled
	case StatusInProgress:
		return target == StatusCompleted || target == StatusCancelled
	case StatusCompleted:
		return target == StatusApproved
	case StatusApproved, StatusCancelled:
		return false // Terminal states
	}
	return false
}

// IsTerminal reports whether no further transition can leave this status
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusCancelled
}

// CycleType represents the scope policy used to seed a session's items from
// current inventory. The selection policy itself lives behind the item
// repository; the engine only carries the type.
type CycleType string

const (
	CycleTypeFull          CycleType = "full"
	CycleTypeABC           CycleType = "abc"
	CycleTypeLocationBased CycleType = "location_based"
	CycleTypeRandomSample  CycleType = "random_sample"
)

// IsValid checks if the cycle type is a valid CycleType
func (c CycleType) IsValid() bool {
	switch c {
	case CycleTypeFull, CycleTypeABC, CycleTypeLocationBased, CycleTypeRandomSample:
		return true
	}
	return false
}

// String returns the string representation of CycleType
func (c CycleType) String() string {
	return string(c)
}
