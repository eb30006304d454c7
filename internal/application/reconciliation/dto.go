package reconciliation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wms/backend/internal/domain/reconciliation"
)

// CreateSessionRequest starts a new cycle count
type CreateSessionRequest struct {
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	CycleType      string          `json:"cycle_type" binding:"required"`
	WarehouseID    *uuid.UUID      `json:"warehouse_id"`
	LocationFilter json.RawMessage `json:"location_filter"`
	ProductFilter  json.RawMessage `json:"product_filter"`
	Notes          string          `json:"notes"`
}

// RecordCountsRequest submits a batch of counted lines
type RecordCountsRequest struct {
	Counts []CountLineRequest `json:"counts" binding:"required"`
}

// CountLineRequest is one counted line
type CountLineRequest struct {
	ProductID       uuid.UUID  `json:"product_id" binding:"required"`
	WarehouseID     uuid.UUID  `json:"warehouse_id" binding:"required"`
	LocationID      *uuid.UUID `json:"location_id"`
	CountedQuantity int64      `json:"counted_quantity"`
	UnitCost        *float64   `json:"unit_cost"`
	Notes           string     `json:"notes"`
}

// ApproveSessionRequest carries the approver's notes
type ApproveSessionRequest struct {
	Notes string `json:"notes"`
}

// ScanRequest submits one counted line identified by barcode instead of
// product ID, the handheld-scanner path
type ScanRequest struct {
	Barcode         string     `json:"barcode" binding:"required"`
	WarehouseID     uuid.UUID  `json:"warehouse_id" binding:"required"`
	LocationID      *uuid.UUID `json:"location_id"`
	CountedQuantity int64      `json:"counted_quantity"`
	Notes           string     `json:"notes"`
}

// ListFilter narrows session listings from query parameters
type ListFilter struct {
	Page        int
	PageSize    int
	WarehouseID *uuid.UUID
	Status      *string
	CycleType   *string
}

// SessionResponse is the full session view
type SessionResponse struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"number"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Status         string          `json:"status"`
	CycleType      string          `json:"cycle_type"`
	WarehouseID    *uuid.UUID      `json:"warehouse_id,omitempty"`
	LocationFilter json.RawMessage `json:"location_filter,omitempty"`
	ProductFilter  json.RawMessage `json:"product_filter,omitempty"`
	TotalItems     int             `json:"total_items"`
	CountedItems   int             `json:"counted_items"`
	TotalVariance  int64           `json:"total_variance"`
	Progress       float64         `json:"progress"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy     *uuid.UUID      `json:"approved_by,omitempty"`
	ApprovalNotes  string          `json:"approval_notes,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ItemResponse is one reconciliation line
type ItemResponse struct {
	ID                 uuid.UUID  `json:"id"`
	SessionID          uuid.UUID  `json:"session_id"`
	ProductID          uuid.UUID  `json:"product_id"`
	WarehouseID        uuid.UUID  `json:"warehouse_id"`
	LocationID         *uuid.UUID `json:"location_id,omitempty"`
	ExpectedQuantity   int64      `json:"expected_quantity"`
	CountedQuantity    *int64     `json:"counted_quantity,omitempty"`
	Variance           *int64     `json:"variance,omitempty"`
	VariancePercentage *float64   `json:"variance_percentage,omitempty"`
	UnitCost           *float64   `json:"unit_cost,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CountedBy          *uuid.UUID `json:"counted_by,omitempty"`
	CountedAt          *time.Time `json:"counted_at,omitempty"`
}

// SessionDetailResponse bundles a session with its items
type SessionDetailResponse struct {
	Session SessionResponse `json:"session"`
	Items   []ItemResponse  `json:"items"`
}

// FinalizeResponse reports the finalized session and the stock adjustments
// it booked
type FinalizeResponse struct {
	Session       SessionResponse                  `json:"session"`
	Adjustments   []reconciliation.StockAdjustment `json:"adjustments"`
	SkippedNoCost int                              `json:"skipped_no_cost"`
}

// VarianceBucket aggregates items whose absolute variance percentage falls in
// one band
type VarianceBucket struct {
	Label         string          `json:"label"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// VarianceAnalysisResponse is the variance breakdown of a session
type VarianceAnalysisResponse struct {
	SessionID         uuid.UUID        `json:"session_id"`
	TotalItems        int              `json:"total_items"`
	CountedItems      int              `json:"counted_items"`
	ItemsWithVariance int              `json:"items_with_variance"`
	AccuracyRate      float64          `json:"accuracy_rate"`
	TotalVarianceQty  int64            `json:"total_variance_quantity"`
	TotalVarianceVal  decimal.Decimal  `json:"total_variance_value"`
	Buckets           []VarianceBucket `json:"buckets"`
	TopVariances      []ItemResponse   `json:"top_variances"`
}

// ScanResponse reports the resolved product, the updated line and whether
// the scan was the line's first count
type ScanResponse struct {
	ProductID   uuid.UUID    `json:"product_id"`
	SKU         string       `json:"sku"`
	ProductName string       `json:"product_name"`
	Item        ItemResponse `json:"item"`
	IsNewCount  bool         `json:"is_new_count"`
}

// ToSessionResponse converts a domain session to its response DTO
func ToSessionResponse(s *reconciliation.Session) SessionResponse {
	return SessionResponse{
		ID:             s.ID,
		Number:         s.Number,
		Name:           s.Name,
		Description:    s.Description,
		Status:         s.Status.String(),
		CycleType:      s.CycleType.String(),
		WarehouseID:    s.WarehouseID,
		LocationFilter: s.LocationFilter,
		ProductFilter:  s.ProductFilter,
		TotalItems:     s.TotalItems,
		CountedItems:   s.CountedItems,
		TotalVariance:  s.TotalVariance,
		Progress:       s.Progress(),
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		ApprovedAt:     s.ApprovedAt,
		ApprovedBy:     s.ApprovedBy,
		ApprovalNotes:  s.ApprovalNotes,
		Notes:          s.Notes,
		CreatedBy:      s.CreatedBy,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// ToItemResponse converts a domain item to its response DTO
func ToItemResponse(item *reconciliation.Item) ItemResponse {
	resp := ItemResponse{
		ID:               item.ID,
		SessionID:        item.SessionID,
		ProductID:        item.ProductID,
		WarehouseID:      item.WarehouseID,
		LocationID:       item.LocationID,
		ExpectedQuantity: item.ExpectedQuantity,
		CountedQuantity:  item.CountedQuantity,
		UnitCost:         item.UnitCost,
		Notes:            item.Notes,
		CountedBy:        item.CountedBy,
		CountedAt:        item.CountedAt,
	}
	if v, ok := item.Variance(); ok {
		resp.Variance = &v
	}
	if pct, ok := item.VariancePercentage(); ok {
		resp.VariancePercentage = &pct
	}
	return resp
}

// ToItemResponses converts a slice of domain items
func ToItemResponses(items []reconciliation.Item) []ItemResponse {
	responses := make([]ItemResponse, len(items))
	for i := range items {
		responses[i] = ToItemResponse(&items[i])
	}
	return responses
}
