package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wms/backend/internal/domain/reconciliation"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

// MaxPageSize caps session listing page sizes
const MaxPageSize = 100

// Service provides application services for stock reconciliation sessions
type Service struct {
	sessionRepo reconciliation.SessionRepository
	itemRepo    reconciliation.ItemRepository
	productRepo stock.ProductRepository
	scope       TransactionScope
	eventBus    shared.EventBus
	logger      *zap.Logger
}

// NewService creates a new reconciliation Service
func NewService(
	sessionRepo reconciliation.SessionRepository,
	itemRepo reconciliation.ItemRepository,
	productRepo stock.ProductRepository,
	scope TransactionScope,
	eventBus shared.EventBus,
	logger *zap.Logger,
) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		itemRepo:    itemRepo,
		productRepo: productRepo,
		scope:       scope,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// ===================== Command Methods =====================

// Create opens a new reconciliation session in Draft status and snapshots
// current inventory levels into its items. If item population fails, the
// freshly inserted header is deleted best-effort and the population error is
// returned; a failed cleanup is logged but never masks the original error.
func (s *Service) Create(ctx context.Context, tenantID, userID uuid.UUID, req CreateSessionRequest) (*SessionDetailResponse, error) {
	cycleType := reconciliation.CycleType(req.CycleType)

	session, err := reconciliation.NewSession(tenantID, userID, reconciliation.NewSessionParams{
		Name:           req.Name,
		Description:    req.Description,
		CycleType:      cycleType,
		WarehouseID:    req.WarehouseID,
		LocationFilter: req.LocationFilter,
		ProductFilter:  req.ProductFilter,
		Notes:          req.Notes,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	items, err := s.itemRepo.CreateFromInventory(ctx, tenantID, session.ID, cycleType, req.WarehouseID, req.LocationFilter, req.ProductFilter)
	if err != nil {
		if delErr := s.sessionRepo.Delete(ctx, tenantID, session.ID); delErr != nil {
			s.logger.Warn("failed to clean up session after item population failure",
				zap.String("session_id", session.ID.String()),
				zap.Error(delErr))
		}
		return nil, err
	}

	// Read back so the response carries repository-assigned state (number,
	// total_items projection).
	created, err := s.sessionRepo.FindByID(ctx, tenantID, session.ID)
	if err != nil {
		return nil, shared.NewInternalError(fmt.Sprintf("Session %s was created but could not be read back", session.ID))
	}

	s.publishEvents(ctx, session)

	return &SessionDetailResponse{
		Session: ToSessionResponse(created),
		Items:   ToItemResponses(items),
	}, nil
}

// RecordCounts applies a batch of counted quantities to a session. The batch
// is validated in full before any line is written. Submitting counts to a
// Draft session starts it; an already-started session is left as is.
func (s *Service) RecordCounts(ctx context.Context, tenantID, userID, sessionID uuid.UUID, req RecordCountsRequest) (*SessionDetailResponse, error) {
	if len(req.Counts) == 0 {
		return nil, shared.NewValidationError("Count batch cannot be empty")
	}
	for _, line := range req.Counts {
		if line.CountedQuantity < 0 {
			return nil, shared.NewValidationError(fmt.Sprintf("Counted quantity for product %s cannot be negative", line.ProductID))
		}
	}

	session, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CanReceiveCounts() {
		return nil, shared.NewValidationError(fmt.Sprintf("Session in status %s does not accept counts", session.Status))
	}

	if session.Status == reconciliation.StatusDraft {
		if err := s.sessionRepo.Start(ctx, tenantID, sessionID, time.Now().UTC()); err != nil {
			// A concurrent counter may have started the session first;
			// that is fine, the counts still land.
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				return nil, err
			}
		} else {
			_ = s.eventBus.Publish(ctx, reconciliation.NewCountingStartedEvent(session))
		}
	}

	counts := make([]reconciliation.CountUpdate, len(req.Counts))
	for i, line := range req.Counts {
		counts[i] = reconciliation.CountUpdate{
			ProductID:       line.ProductID,
			WarehouseID:     line.WarehouseID,
			LocationID:      line.LocationID,
			CountedQuantity: line.CountedQuantity,
			UnitCost:        line.UnitCost,
			CountedBy:       userID,
			Notes:           line.Notes,
		}
	}
	if err := s.itemRepo.BatchUpdateCounts(ctx, tenantID, sessionID, counts); err != nil {
		return nil, err
	}

	updated, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := s.itemRepo.FindBySession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	itemResponses := make([]ItemResponse, len(items))
	for i := range items {
		itemResponses[i] = ToItemResponse(&items[i])
	}
	return &SessionDetailResponse{
		Session: ToSessionResponse(updated),
		Items:   itemResponses,
	}, nil
}

// Finalize closes counting: in a single transaction the session is moved from
// InProgress to Completed, every variance is booked to the stock ledger and
// on-hand levels are corrected. The session status is checked up front so a
// Draft or already-Completed session fails as a validation error; inside the
// transaction the transition still runs first as a conditional update, so of
// two concurrent finalizers that both saw InProgress exactly one books the
// adjustments and the other gets a concurrency conflict.
//
// Items with a variance but no unit cost are skipped rather than booked; the
// quantity books would drift for them, so the skip count is surfaced in the
// response and logged.
func (s *Service) Finalize(ctx context.Context, tenantID, userID, sessionID uuid.UUID) (*FinalizeResponse, error) {
	session, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != reconciliation.StatusInProgress {
		return nil, shared.NewValidationError(fmt.Sprintf("Cannot finalize from status %s, session must be in progress", session.Status))
	}

	adjustments := make([]reconciliation.StockAdjustment, 0)
	var skipped int

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := time.Now().UTC()

		if err := repos.SessionRepo().Complete(ctx, tenantID, sessionID, now); err != nil {
			return err
		}

		items, err := repos.ItemRepo().FindBySession(ctx, tenantID, sessionID)
		if err != nil {
			return err
		}

		for i := range items {
			item := &items[i]
			if !item.Counted() {
				return shared.NewValidationError(fmt.Sprintf("Item for product %s has not been counted", item.ProductID))
			}

			variance, _ := item.Variance()
			if variance == 0 {
				continue
			}
			if item.UnitCost == nil {
				skipped++
				s.logger.Warn("skipping adjustment for item without unit cost",
					zap.String("session_id", sessionID.String()),
					zap.String("product_id", item.ProductID.String()),
					zap.Int64("variance", variance))
				continue
			}

			cents, err := reconciliation.ToCents(*item.UnitCost)
			if err != nil {
				return err
			}

			key := stock.ReconciliationIdempotencyKey(sessionID, item.ProductID, item.WarehouseID)
			move, err := stock.NewAdjustmentMove(
				tenantID,
				item.ProductID,
				item.WarehouseID,
				item.LocationID,
				variance,
				&cents,
				reconciliation.AdjustmentReason,
				sessionID.String(),
				key,
				&userID,
				now,
			)
			if err != nil {
				return err
			}
			if err := repos.MoveRepo().Record(ctx, move); err != nil {
				return err
			}

			if err := repos.LevelRepo().ApplyDelta(ctx, tenantID, item.ProductID, item.WarehouseID, item.LocationID, variance); err != nil {
				return err
			}
			adjustments = append(adjustments, reconciliation.NewStockAdjustment(item, variance, now))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	completed, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, shared.NewInternalError(fmt.Sprintf("Session %s was finalized but could not be read back", sessionID))
	}

	_ = s.eventBus.Publish(ctx, reconciliation.NewSessionCompletedEvent(completed))

	return &FinalizeResponse{
		Session:       ToSessionResponse(completed),
		Adjustments:   adjustments,
		SkippedNoCost: skipped,
	}, nil
}

// Approve signs off a Completed session. Approval is a bookkeeping
// acknowledgement: the stock adjustments were already booked at finalize.
func (s *Service) Approve(ctx context.Context, tenantID, approverID, sessionID uuid.UUID, req ApproveSessionRequest) (*SessionResponse, error) {
	session, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Approve(approverID, req.Notes); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Approve(ctx, tenantID, sessionID, approverID, *session.ApprovedAt, req.Notes); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, session)

	response := ToSessionResponse(session)
	return &response, nil
}

// Cancel abandons a session that has not been finalized. No stock is touched
// and the session stays queryable in its terminal Cancelled status.
func (s *Service) Cancel(ctx context.Context, tenantID, sessionID uuid.UUID) (*SessionResponse, error) {
	session, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Cancel(); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Cancel(ctx, tenantID, sessionID); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, session)

	response := ToSessionResponse(session)
	return &response, nil
}

// ===================== Query Methods =====================

// Get retrieves a session with its items
func (s *Service) Get(ctx context.Context, tenantID, sessionID uuid.UUID) (*SessionDetailResponse, error) {
	session, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := s.itemRepo.FindBySession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionDetailResponse{
		Session: ToSessionResponse(session),
		Items:   ToItemResponses(items),
	}, nil
}

// List retrieves a paginated list of sessions, newest first
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) (*shared.Paginated[SessionResponse], error) {
	domainFilter := reconciliation.ListFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  "created_at",
			OrderDir: "desc",
		},
		WarehouseID: filter.WarehouseID,
	}
	domainFilter.Clamp(MaxPageSize)

	if filter.Status != nil {
		status := reconciliation.Status(*filter.Status)
		if !status.IsValid() {
			return nil, shared.NewValidationError(fmt.Sprintf("Invalid status %q", *filter.Status))
		}
		domainFilter.Status = &status
	}
	if filter.CycleType != nil {
		cycleType := reconciliation.CycleType(*filter.CycleType)
		if !cycleType.IsValid() {
			return nil, shared.NewValidationError(fmt.Sprintf("Invalid cycle type %q", *filter.CycleType))
		}
		domainFilter.CycleType = &cycleType
	}

	total, err := s.sessionRepo.Count(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessionRepo.List(ctx, tenantID, domainFilter)
	if err != nil {
		return nil, err
	}

	responses := make([]SessionResponse, len(sessions))
	for i := range sessions {
		responses[i] = ToSessionResponse(&sessions[i])
	}

	result := shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize)
	return &result, nil
}

// VarianceAnalysis computes the variance breakdown of a session: counted
// items are bucketed by absolute variance percentage and the ten largest
// absolute variances are returned individually. A counted item whose expected
// quantity was zero has no defined percentage and lands in the top bucket.
func (s *Service) VarianceAnalysis(ctx context.Context, tenantID, sessionID uuid.UUID) (*VarianceAnalysisResponse, error) {
	if _, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID); err != nil {
		return nil, err
	}
	items, err := s.itemRepo.VarianceAnalysis(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	buckets := []VarianceBucket{
		{Label: "0-1%"},
		{Label: "1-5%"},
		{Label: "5-10%"},
		{Label: ">10%"},
	}

	var counted, withVariance int
	var totalVarianceQty int64
	totalVarianceVal := decimal.Zero
	varied := make([]*reconciliation.Item, 0, len(items))

	for i := range items {
		item := &items[i]
		if !item.Counted() {
			continue
		}
		counted++

		variance, _ := item.Variance()

		// Every item with a defined variance percentage lands in a bucket,
		// an exact count in 0-1%. Items with no expected quantity have no
		// percentage and stay out of the buckets.
		if pct, ok := item.VariancePercentage(); ok {
			idx := 3
			switch abs := absFloat(pct); {
			case abs <= 0.01:
				idx = 0
			case abs <= 0.05:
				idx = 1
			case abs <= 0.10:
				idx = 2
			}
			buckets[idx].ItemCount++
			buckets[idx].TotalQuantity += variance
			if value, ok := item.VarianceValue(); ok {
				buckets[idx].TotalValue = buckets[idx].TotalValue.Add(value)
			}
		}

		if variance == 0 {
			continue
		}
		withVariance++
		varied = append(varied, item)
		totalVarianceQty += variance
		if value, ok := item.VarianceValue(); ok {
			totalVarianceVal = totalVarianceVal.Add(value)
		}
	}

	sort.Slice(varied, func(a, b int) bool {
		va, _ := varied[a].Variance()
		vb, _ := varied[b].Variance()
		return absInt64(va) > absInt64(vb)
	})
	top := varied
	if len(top) > 10 {
		top = top[:10]
	}
	topResponses := make([]ItemResponse, len(top))
	for i, item := range top {
		topResponses[i] = ToItemResponse(item)
	}

	accuracy := 0.0
	if counted > 0 {
		accuracy = float64(counted-withVariance) / float64(counted) * 100
	}

	return &VarianceAnalysisResponse{
		SessionID:         sessionID,
		TotalItems:        len(items),
		CountedItems:      counted,
		ItemsWithVariance: withVariance,
		AccuracyRate:      accuracy,
		TotalVarianceQty:  totalVarianceQty,
		TotalVarianceVal:  totalVarianceVal,
		Buckets:           buckets,
		TopVariances:      topResponses,
	}, nil
}

// Scan resolves a barcode against the product catalog and submits a single
// counted line for the matching item, the handheld-scanner path. Like
// RecordCounts it flips a Draft session to InProgress on the first count.
// Scans never carry a unit cost; an earlier unit cost on the line survives.
func (s *Service) Scan(ctx context.Context, tenantID, userID, sessionID uuid.UUID, req ScanRequest) (*ScanResponse, error) {
	if req.CountedQuantity < 0 {
		return nil, shared.NewValidationError("Counted quantity cannot be negative")
	}

	session, err := s.sessionRepo.FindByID(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CanReceiveCounts() {
		return nil, shared.NewValidationError(fmt.Sprintf("Session in status %s does not accept counts", session.Status))
	}

	product, err := s.productRepo.FindByBarcode(ctx, tenantID, req.Barcode)
	if err != nil {
		return nil, err
	}

	item, err := s.itemRepo.FindByKey(ctx, tenantID, sessionID, product.ID, req.WarehouseID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Product %s is not part of this reconciliation", product.SKU))
		}
		return nil, err
	}
	isNewCount := !item.Counted()

	if session.Status == reconciliation.StatusDraft {
		if err := s.sessionRepo.Start(ctx, tenantID, sessionID, time.Now().UTC()); err != nil {
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				return nil, err
			}
		} else {
			_ = s.eventBus.Publish(ctx, reconciliation.NewCountingStartedEvent(session))
		}
	}

	locationID := req.LocationID
	if locationID == nil {
		locationID = item.LocationID
	}
	count := reconciliation.CountUpdate{
		ProductID:       product.ID,
		WarehouseID:     req.WarehouseID,
		LocationID:      locationID,
		CountedQuantity: req.CountedQuantity,
		CountedBy:       userID,
		Notes:           req.Notes,
	}
	if err := s.itemRepo.BatchUpdateCounts(ctx, tenantID, sessionID, []reconciliation.CountUpdate{count}); err != nil {
		return nil, err
	}

	updated, err := s.itemRepo.FindByKey(ctx, tenantID, sessionID, product.ID, req.WarehouseID)
	if err != nil {
		return nil, shared.NewInternalError("Failed to reload the counted item")
	}

	return &ScanResponse{
		ProductID:   product.ID,
		SKU:         product.SKU,
		ProductName: product.Name,
		Item:        ToItemResponse(updated),
		IsNewCount:  isNewCount,
	}, nil
}

// publishEvents publishes domain events from the aggregate
func (s *Service) publishEvents(ctx context.Context, session *reconciliation.Session) {
	if s.eventBus == nil {
		return
	}
	for _, event := range session.GetDomainEvents() {
		_ = s.eventBus.Publish(ctx, event)
	}
	session.ClearDomainEvents()
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
