package reconciliation

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wms/backend/internal/domain/reconciliation"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

// MockEventBus collects published events for assertions
type MockEventBus struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{events: make([]shared.DomainEvent, 0)}
}

func (m *MockEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {}
func (m *MockEventBus) Unsubscribe(handler shared.EventHandler)                     {}

func (m *MockEventBus) EventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// MockSessionRepository is a mock implementation of reconciliation.SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, s *reconciliation.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepository) FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*reconciliation.Session, error) {
	args := m.Called(ctx, tenantID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Session), args.Error(1)
}

func (m *MockSessionRepository) List(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ListFilter) ([]reconciliation.Session, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]reconciliation.Session), args.Error(1)
}

func (m *MockSessionRepository) Count(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ListFilter) (int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionRepository) Start(ctx context.Context, tenantID, sessionID uuid.UUID, startedAt time.Time) error {
	args := m.Called(ctx, tenantID, sessionID, startedAt)
	return args.Error(0)
}

func (m *MockSessionRepository) Complete(ctx context.Context, tenantID, sessionID uuid.UUID, completedAt time.Time) error {
	args := m.Called(ctx, tenantID, sessionID, completedAt)
	return args.Error(0)
}

func (m *MockSessionRepository) Approve(ctx context.Context, tenantID, sessionID, approvedBy uuid.UUID, approvedAt time.Time, notes string) error {
	args := m.Called(ctx, tenantID, sessionID, approvedBy, approvedAt, notes)
	return args.Error(0)
}

func (m *MockSessionRepository) Cancel(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	args := m.Called(ctx, tenantID, sessionID)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	args := m.Called(ctx, tenantID, sessionID)
	return args.Error(0)
}

// MockItemRepository is a mock implementation of reconciliation.ItemRepository
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) CreateFromInventory(ctx context.Context, tenantID, sessionID uuid.UUID, cycleType reconciliation.CycleType, warehouseID *uuid.UUID, locationFilter, productFilter json.RawMessage) ([]reconciliation.Item, error) {
	args := m.Called(ctx, tenantID, sessionID, cycleType, warehouseID, locationFilter, productFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Item), args.Error(1)
}

func (m *MockItemRepository) FindBySession(ctx context.Context, tenantID, sessionID uuid.UUID) ([]reconciliation.Item, error) {
	args := m.Called(ctx, tenantID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reconciliation.Item), args.Error(1)
}

func (m *MockItemRepository) FindByKey(ctx context.Context, tenantID, sessionID, productID, warehouseID uuid.UUID) (*reconciliation.Item, error) {
	args := m.Called(ctx, tenantID, sessionID, productID, warehouseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Item), args.Error(1)
}

func (m *MockItemRepository) BatchUpdateCounts(ctx context.Context, tenantID, sessionID uuid.UUID, counts []reconciliation.CountUpdate) error {
	args := m.Called(ctx, tenantID, sessionID, counts)
	return args.Error(0)
}

func (m *MockItemRepository) VarianceAnalysis(ctx context.Context, tenantID, sessionID uuid.UUID) ([]reconciliation.Item, error) {
	args := m.Called(ctx, tenantID, sessionID)
	return args.Get(0).([]reconciliation.Item), args.Error(1)
}

// MockMoveRepository is a mock implementation of stock.MoveRepository
type MockMoveRepository struct {
	mock.Mock
}

func (m *MockMoveRepository) Record(ctx context.Context, move *stock.Move) error {
	args := m.Called(ctx, move)
	return args.Error(0)
}

func (m *MockMoveRepository) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*stock.Move, error) {
	args := m.Called(ctx, tenantID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Move), args.Error(1)
}

// MockLevelRepository is a mock implementation of stock.LevelRepository
type MockLevelRepository struct {
	mock.Mock
}

func (m *MockLevelRepository) ApplyDelta(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, locationID *uuid.UUID, delta int64) error {
	args := m.Called(ctx, tenantID, productID, warehouseID, locationID, delta)
	return args.Error(0)
}

func (m *MockLevelRepository) Find(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, locationID *uuid.UUID) (*stock.Level, error) {
	args := m.Called(ctx, tenantID, productID, warehouseID, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Level), args.Error(1)
}

// MockProductRepository is a mock implementation of stock.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*stock.Product, error) {
	args := m.Called(ctx, tenantID, barcode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Product), args.Error(1)
}

type serviceFixture struct {
	sessionRepo *MockSessionRepository
	itemRepo    *MockItemRepository
	moveRepo    *MockMoveRepository
	levelRepo   *MockLevelRepository
	productRepo *MockProductRepository
	eventBus    *MockEventBus
	service     *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		sessionRepo: new(MockSessionRepository),
		itemRepo:    new(MockItemRepository),
		moveRepo:    new(MockMoveRepository),
		levelRepo:   new(MockLevelRepository),
		productRepo: new(MockProductRepository),
		eventBus:    NewMockEventBus(),
	}
	scope := NewNoOpTransactionScope(f.sessionRepo, f.itemRepo, f.moveRepo, f.levelRepo)
	f.service = NewService(f.sessionRepo, f.itemRepo, f.productRepo, scope, f.eventBus, zap.NewNop())
	return f
}

func newTestSession(t *testing.T, tenantID uuid.UUID, status reconciliation.Status) *reconciliation.Session {
	t.Helper()
	session, err := reconciliation.NewSession(tenantID, uuid.New(), reconciliation.NewSessionParams{
		Name:      "Weekly count",
		CycleType: reconciliation.CycleTypeFull,
	})
	require.NoError(t, err)
	session.Number = "REC-20260828-0001"
	session.Status = status
	session.ClearDomainEvents()
	return session
}

func newCountedItem(tenantID, sessionID uuid.UUID, expected, counted int64, unitCost *float64) reconciliation.Item {
	qty := counted
	by := uuid.New()
	at := time.Now()
	return reconciliation.Item{
		ID:               uuid.New(),
		TenantID:         tenantID,
		SessionID:        sessionID,
		ProductID:        uuid.New(),
		WarehouseID:      uuid.New(),
		ExpectedQuantity: expected,
		CountedQuantity:  &qty,
		UnitCost:         unitCost,
		CountedBy:        &by,
		CountedAt:        &at,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("creates session and seeds items from inventory", func(t *testing.T) {
		f := newServiceFixture()

		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).Return(nil)
		seeded := []reconciliation.Item{
			newCountedItem(tenantID, uuid.Nil, 10, 10, nil),
		}
		seeded[0].CountedQuantity = nil
		f.itemRepo.On("CreateFromInventory", ctx, tenantID, mock.AnythingOfType("uuid.UUID"), reconciliation.CycleTypeFull, (*uuid.UUID)(nil), json.RawMessage(nil), json.RawMessage(nil)).Return(seeded, nil)

		created := newTestSession(t, tenantID, reconciliation.StatusDraft)
		created.TotalItems = 1
		f.sessionRepo.On("FindByID", ctx, tenantID, mock.AnythingOfType("uuid.UUID")).Return(created, nil)

		resp, err := f.service.Create(ctx, tenantID, userID, CreateSessionRequest{
			Name:      "Weekly count",
			CycleType: "full",
		})

		require.NoError(t, err)
		assert.Equal(t, "draft", resp.Session.Status)
		assert.Equal(t, "REC-20260828-0001", resp.Session.Number)
		assert.Equal(t, 1, resp.Session.TotalItems)
		assert.Len(t, resp.Items, 1)
		assert.Len(t, f.eventBus.EventsByType(reconciliation.EventTypeSessionCreated), 1)
		f.sessionRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid cycle type before any write", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.Create(ctx, tenantID, userID, CreateSessionRequest{
			Name:      "Weekly count",
			CycleType: "yearly",
		})

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.sessionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("deletes orphaned header when item population fails", func(t *testing.T) {
		f := newServiceFixture()

		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).Return(nil)
		popErr := shared.NewDatabaseError("insert items failed")
		f.itemRepo.On("CreateFromInventory", ctx, tenantID, mock.AnythingOfType("uuid.UUID"), reconciliation.CycleTypeFull, (*uuid.UUID)(nil), json.RawMessage(nil), json.RawMessage(nil)).Return(nil, popErr)
		f.sessionRepo.On("Delete", ctx, tenantID, mock.AnythingOfType("uuid.UUID")).Return(nil)

		_, err := f.service.Create(ctx, tenantID, userID, CreateSessionRequest{
			Name:      "Weekly count",
			CycleType: "full",
		})

		assert.ErrorIs(t, err, popErr)
		f.sessionRepo.AssertCalled(t, "Delete", ctx, tenantID, mock.AnythingOfType("uuid.UUID"))
	})

	t.Run("cleanup failure does not mask the population error", func(t *testing.T) {
		f := newServiceFixture()

		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).Return(nil)
		popErr := shared.NewDatabaseError("insert items failed")
		f.itemRepo.On("CreateFromInventory", ctx, tenantID, mock.AnythingOfType("uuid.UUID"), reconciliation.CycleTypeFull, (*uuid.UUID)(nil), json.RawMessage(nil), json.RawMessage(nil)).Return(nil, popErr)
		f.sessionRepo.On("Delete", ctx, tenantID, mock.AnythingOfType("uuid.UUID")).Return(shared.NewDatabaseError("delete failed"))

		_, err := f.service.Create(ctx, tenantID, userID, CreateSessionRequest{
			Name:      "Weekly count",
			CycleType: "full",
		})

		assert.ErrorIs(t, err, popErr)
	})

	t.Run("read-back failure surfaces as internal error", func(t *testing.T) {
		f := newServiceFixture()

		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).Return(nil)
		f.itemRepo.On("CreateFromInventory", ctx, tenantID, mock.AnythingOfType("uuid.UUID"), reconciliation.CycleTypeFull, (*uuid.UUID)(nil), json.RawMessage(nil), json.RawMessage(nil)).Return([]reconciliation.Item{}, nil)
		f.sessionRepo.On("FindByID", ctx, tenantID, mock.AnythingOfType("uuid.UUID")).Return(nil, shared.ErrNotFound)

		_, err := f.service.Create(ctx, tenantID, userID, CreateSessionRequest{
			Name:      "Weekly count",
			CycleType: "full",
		})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeInternal, domainErr.Code)
	})
}

func TestService_RecordCounts(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("rejects empty batch before touching the session", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.RecordCounts(ctx, tenantID, userID, uuid.New(), RecordCountsRequest{})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.sessionRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects negative counted quantity", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.RecordCounts(ctx, tenantID, userID, uuid.New(), RecordCountsRequest{
			Counts: []CountLineRequest{{ProductID: uuid.New(), WarehouseID: uuid.New(), CountedQuantity: -3}},
		})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.itemRepo.AssertNotCalled(t, "BatchUpdateCounts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("first count submission starts a draft session", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusDraft)

		counted := newCountedItem(tenantID, session.ID, 10, 7, nil)
		pending := newCountedItem(tenantID, session.ID, 4, 0, nil)
		pending.CountedQuantity = nil

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.sessionRepo.On("Start", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(nil)
		f.itemRepo.On("BatchUpdateCounts", ctx, tenantID, session.ID, mock.AnythingOfType("[]reconciliation.CountUpdate")).Return(nil)
		f.itemRepo.On("FindBySession", ctx, tenantID, session.ID).Return([]reconciliation.Item{counted, pending}, nil)

		resp, err := f.service.RecordCounts(ctx, tenantID, userID, session.ID, RecordCountsRequest{
			Counts: []CountLineRequest{{ProductID: counted.ProductID, WarehouseID: counted.WarehouseID, CountedQuantity: 7}},
		})

		require.NoError(t, err)
		f.sessionRepo.AssertCalled(t, "Start", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time"))
		assert.Len(t, f.eventBus.EventsByType(reconciliation.EventTypeCountingStarted), 1)

		require.Len(t, resp.Items, 2)
		assert.Equal(t, counted.ProductID, resp.Items[0].ProductID)
		require.NotNil(t, resp.Items[0].CountedQuantity)
		assert.Equal(t, int64(7), *resp.Items[0].CountedQuantity)
		assert.Nil(t, resp.Items[1].CountedQuantity)
	})

	t.Run("tolerates a concurrent start", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusDraft)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.sessionRepo.On("Start", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(shared.ErrConcurrencyConflict)
		f.itemRepo.On("BatchUpdateCounts", ctx, tenantID, session.ID, mock.AnythingOfType("[]reconciliation.CountUpdate")).Return(nil)
		f.itemRepo.On("FindBySession", ctx, tenantID, session.ID).Return([]reconciliation.Item{}, nil)

		_, err := f.service.RecordCounts(ctx, tenantID, userID, session.ID, RecordCountsRequest{
			Counts: []CountLineRequest{{ProductID: uuid.New(), WarehouseID: uuid.New(), CountedQuantity: 7}},
		})

		require.NoError(t, err)
	})

	t.Run("rejects counts on a completed session", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)

		_, err := f.service.RecordCounts(ctx, tenantID, userID, session.ID, RecordCountsRequest{
			Counts: []CountLineRequest{{ProductID: uuid.New(), WarehouseID: uuid.New(), CountedQuantity: 7}},
		})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.itemRepo.AssertNotCalled(t, "BatchUpdateCounts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_Finalize(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("books adjustments and corrects levels for variances", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		shortage := newCountedItem(tenantID, session.ID, 100, 95, floatPtr(12.50))
		exact := newCountedItem(tenantID, session.ID, 40, 40, floatPtr(3.00))
		overage := newCountedItem(tenantID, session.ID, 10, 12, floatPtr(0.99))

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil).Once()
		f.sessionRepo.On("Complete", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(nil)
		f.itemRepo.On("FindBySession", ctx, tenantID, session.ID).Return([]reconciliation.Item{shortage, exact, overage}, nil)
		f.moveRepo.On("Record", ctx, mock.AnythingOfType("*stock.Move")).Return(nil)
		f.levelRepo.On("ApplyDelta", ctx, tenantID, shortage.ProductID, shortage.WarehouseID, (*uuid.UUID)(nil), int64(-5)).Return(nil)
		f.levelRepo.On("ApplyDelta", ctx, tenantID, overage.ProductID, overage.WarehouseID, (*uuid.UUID)(nil), int64(2)).Return(nil)

		completed := newTestSession(t, tenantID, reconciliation.StatusCompleted)
		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(completed, nil)

		resp, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		require.NoError(t, err)
		require.Len(t, resp.Adjustments, 2)
		assert.Equal(t, shortage.ProductID, resp.Adjustments[0].ProductID)
		assert.Equal(t, int64(-5), resp.Adjustments[0].Quantity)
		assert.Equal(t, reconciliation.AdjustmentReason, resp.Adjustments[0].Reason)
		assert.NotEqual(t, uuid.Nil, resp.Adjustments[0].AdjustmentID)
		assert.Equal(t, overage.ProductID, resp.Adjustments[1].ProductID)
		assert.Equal(t, int64(2), resp.Adjustments[1].Quantity)
		assert.Equal(t, 0, resp.SkippedNoCost)
		f.moveRepo.AssertNumberOfCalls(t, "Record", 2)
		f.levelRepo.AssertNumberOfCalls(t, "ApplyDelta", 2)

		recorded := f.moveRepo.Calls[0].Arguments.Get(1).(*stock.Move)
		assert.Equal(t, stock.MoveTypeAdjustment, recorded.MoveType)
		assert.Equal(t, reconciliation.AdjustmentReason, recorded.Reason)
		assert.Equal(t, stock.ReconciliationIdempotencyKey(session.ID, shortage.ProductID, shortage.WarehouseID), recorded.IdempotencyKey)
		require.NotNil(t, recorded.UnitCostCents)
		assert.Equal(t, int64(1250), *recorded.UnitCostCents)

		assert.Len(t, f.eventBus.EventsByType(reconciliation.EventTypeSessionCompleted), 1)
	})

	t.Run("second finalizer loses the conditional transition", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.sessionRepo.On("Complete", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(shared.ErrConcurrencyConflict)

		_, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		f.moveRepo.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		f.levelRepo.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("finalizing a draft session is a validation error", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusDraft)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)

		_, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.sessionRepo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.moveRepo.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("finalizing a completed session again is a validation error", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)

		_, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.sessionRepo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("uncounted item blocks finalize", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		uncounted := newCountedItem(tenantID, session.ID, 10, 0, nil)
		uncounted.CountedQuantity = nil

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.sessionRepo.On("Complete", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(nil)
		f.itemRepo.On("FindBySession", ctx, tenantID, session.ID).Return([]reconciliation.Item{uncounted}, nil)

		_, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.moveRepo.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("variance without unit cost is skipped, not booked", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		noCost := newCountedItem(tenantID, session.ID, 20, 15, nil)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil).Once()
		f.sessionRepo.On("Complete", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(nil)
		f.itemRepo.On("FindBySession", ctx, tenantID, session.ID).Return([]reconciliation.Item{noCost}, nil)
		completed := newTestSession(t, tenantID, reconciliation.StatusCompleted)
		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(completed, nil)

		resp, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		require.NoError(t, err)
		assert.Empty(t, resp.Adjustments)
		assert.Equal(t, 1, resp.SkippedNoCost)
		f.moveRepo.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
		f.levelRepo.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unit cost overflow aborts the finalize", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		huge := newCountedItem(tenantID, session.ID, 1, 2, floatPtr(math.MaxFloat64))

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.sessionRepo.On("Complete", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(nil)
		f.itemRepo.On("FindBySession", ctx, tenantID, session.ID).Return([]reconciliation.Item{huge}, nil)

		_, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.moveRepo.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("read-back failure after commit surfaces as internal error", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil).Once()
		f.sessionRepo.On("Complete", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(nil)
		f.itemRepo.On("FindBySession", ctx, tenantID, session.ID).Return([]reconciliation.Item{}, nil)
		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(nil, shared.ErrNotFound)

		_, err := f.service.Finalize(ctx, tenantID, userID, session.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeInternal, domainErr.Code)
	})
}

func TestService_Approve(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	approverID := uuid.New()

	t.Run("approves a completed session", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.sessionRepo.On("Approve", ctx, tenantID, session.ID, approverID, mock.AnythingOfType("time.Time"), "all good").Return(nil)

		resp, err := f.service.Approve(ctx, tenantID, approverID, session.ID, ApproveSessionRequest{Notes: "all good"})

		require.NoError(t, err)
		assert.Equal(t, "approved", resp.Status)
		assert.Equal(t, "all good", resp.ApprovalNotes)
		assert.Len(t, f.eventBus.EventsByType(reconciliation.EventTypeSessionApproved), 1)
	})

	t.Run("rejects approval of a draft session", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusDraft)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)

		_, err := f.service.Approve(ctx, tenantID, approverID, session.ID, ApproveSessionRequest{})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.sessionRepo.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("approval is not idempotent", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusApproved)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)

		_, err := f.service.Approve(ctx, tenantID, approverID, session.ID, ApproveSessionRequest{})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
	})
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("cancels an in-progress session", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.sessionRepo.On("Cancel", ctx, tenantID, session.ID).Return(nil)

		resp, err := f.service.Cancel(ctx, tenantID, session.ID)

		require.NoError(t, err)
		assert.Equal(t, "cancelled", resp.Status)
		assert.Len(t, f.eventBus.EventsByType(reconciliation.EventTypeSessionCancelled), 1)
	})

	t.Run("completed sessions cannot be cancelled", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)

		_, err := f.service.Cancel(ctx, tenantID, session.ID)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		f.sessionRepo.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("clamps oversized page size", func(t *testing.T) {
		f := newServiceFixture()

		var captured reconciliation.ListFilter
		f.sessionRepo.On("Count", ctx, tenantID, mock.AnythingOfType("reconciliation.ListFilter")).Run(func(args mock.Arguments) {
			captured = args.Get(2).(reconciliation.ListFilter)
		}).Return(int64(0), nil)
		f.sessionRepo.On("List", ctx, tenantID, mock.AnythingOfType("reconciliation.ListFilter")).Return([]reconciliation.Session{}, nil)

		_, err := f.service.List(ctx, tenantID, ListFilter{Page: 0, PageSize: 5000})

		require.NoError(t, err)
		assert.Equal(t, 1, captured.Page)
		assert.Equal(t, MaxPageSize, captured.PageSize)
	})

	t.Run("rejects an unknown status filter", func(t *testing.T) {
		f := newServiceFixture()

		bogus := "archived"
		_, err := f.service.List(ctx, tenantID, ListFilter{Status: &bogus})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
	})

	t.Run("returns pagination metadata", func(t *testing.T) {
		f := newServiceFixture()
		sessions := []reconciliation.Session{*newTestSession(t, tenantID, reconciliation.StatusDraft)}

		f.sessionRepo.On("Count", ctx, tenantID, mock.AnythingOfType("reconciliation.ListFilter")).Return(int64(41), nil)
		f.sessionRepo.On("List", ctx, tenantID, mock.AnythingOfType("reconciliation.ListFilter")).Return(sessions, nil)

		result, err := f.service.List(ctx, tenantID, ListFilter{Page: 1, PageSize: 20})

		require.NoError(t, err)
		assert.Equal(t, int64(41), result.Total)
		assert.Equal(t, 3, result.TotalPages)
		assert.Len(t, result.Items, 1)
	})
}

func TestService_VarianceAnalysis(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("buckets items by absolute variance percentage", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		items := []reconciliation.Item{
			newCountedItem(tenantID, session.ID, 1000, 995, floatPtr(2.00)), // 0.5% -> 0-1%
			newCountedItem(tenantID, session.ID, 100, 103, floatPtr(1.00)),  // 3% -> 1-5%
			newCountedItem(tenantID, session.ID, 100, 92, floatPtr(5.00)),   // 8% -> 5-10%
			newCountedItem(tenantID, session.ID, 10, 15, floatPtr(4.00)),    // 50% -> >10%
			newCountedItem(tenantID, session.ID, 50, 50, floatPtr(9.00)),    // exact -> 0-1%
		}
		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.itemRepo.On("VarianceAnalysis", ctx, tenantID, session.ID).Return(items, nil)

		resp, err := f.service.VarianceAnalysis(ctx, tenantID, session.ID)

		require.NoError(t, err)
		assert.Equal(t, 5, resp.TotalItems)
		assert.Equal(t, 5, resp.CountedItems)
		assert.Equal(t, 4, resp.ItemsWithVariance)

		require.Len(t, resp.Buckets, 4)
		assert.Equal(t, 2, resp.Buckets[0].ItemCount)
		assert.Equal(t, 1, resp.Buckets[1].ItemCount)
		assert.Equal(t, 1, resp.Buckets[2].ItemCount)
		assert.Equal(t, 1, resp.Buckets[3].ItemCount)
		assert.Equal(t, int64(-5), resp.Buckets[0].TotalQuantity)
		assert.Equal(t, "-10", resp.Buckets[0].TotalValue.String())

		assert.InDelta(t, 100.0/5.0, resp.AccuracyRate, 0.01)
	})

	t.Run("items with no expected quantity stay out of the buckets", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		surprise := newCountedItem(tenantID, session.ID, 0, 6, floatPtr(1.50))
		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.itemRepo.On("VarianceAnalysis", ctx, tenantID, session.ID).Return([]reconciliation.Item{surprise}, nil)

		resp, err := f.service.VarianceAnalysis(ctx, tenantID, session.ID)

		require.NoError(t, err)
		assert.Equal(t, 1, resp.ItemsWithVariance)
		for _, bucket := range resp.Buckets {
			assert.Equal(t, 0, bucket.ItemCount)
		}
		assert.Equal(t, int64(6), resp.TotalVarianceQty)
	})

	t.Run("top variances are sorted by absolute quantity and capped at ten", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		items := make([]reconciliation.Item, 0, 12)
		for i := int64(1); i <= 12; i++ {
			items = append(items, newCountedItem(tenantID, session.ID, 100, 100+i, floatPtr(1.00)))
		}
		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.itemRepo.On("VarianceAnalysis", ctx, tenantID, session.ID).Return(items, nil)

		resp, err := f.service.VarianceAnalysis(ctx, tenantID, session.ID)

		require.NoError(t, err)
		require.Len(t, resp.TopVariances, 10)
		require.NotNil(t, resp.TopVariances[0].Variance)
		assert.Equal(t, int64(12), *resp.TopVariances[0].Variance)
		assert.Equal(t, int64(3), *resp.TopVariances[9].Variance)
	})

	t.Run("uncounted items are excluded", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		pending := newCountedItem(tenantID, session.ID, 10, 0, nil)
		pending.CountedQuantity = nil
		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.itemRepo.On("VarianceAnalysis", ctx, tenantID, session.ID).Return([]reconciliation.Item{pending}, nil)

		resp, err := f.service.VarianceAnalysis(ctx, tenantID, session.ID)

		require.NoError(t, err)
		assert.Equal(t, 1, resp.TotalItems)
		assert.Equal(t, 0, resp.CountedItems)
		assert.Equal(t, 0.0, resp.AccuracyRate)
	})
}

func TestService_Scan(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	t.Run("records a count for the scanned product", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)
		warehouseID := uuid.New()
		product := &stock.Product{ID: uuid.New(), TenantID: tenantID, SKU: "SKU-1", Barcode: "4006381333931", Name: "Widget", IsActive: true}
		item := newCountedItem(tenantID, session.ID, 30, 0, nil)
		item.CountedQuantity = nil
		item.ProductID = product.ID
		item.WarehouseID = warehouseID
		counted := item
		qty := int64(28)
		counted.CountedQuantity = &qty

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.productRepo.On("FindByBarcode", ctx, tenantID, "4006381333931").Return(product, nil)
		f.itemRepo.On("FindByKey", ctx, tenantID, session.ID, product.ID, warehouseID).Return(&item, nil).Once()
		f.itemRepo.On("BatchUpdateCounts", ctx, tenantID, session.ID, mock.MatchedBy(func(counts []reconciliation.CountUpdate) bool {
			return len(counts) == 1 &&
				counts[0].ProductID == product.ID &&
				counts[0].CountedQuantity == 28 &&
				counts[0].CountedBy == userID &&
				counts[0].UnitCost == nil
		})).Return(nil)
		f.itemRepo.On("FindByKey", ctx, tenantID, session.ID, product.ID, warehouseID).Return(&counted, nil).Once()

		resp, err := f.service.Scan(ctx, tenantID, userID, session.ID, ScanRequest{
			Barcode:         "4006381333931",
			WarehouseID:     warehouseID,
			CountedQuantity: 28,
		})

		require.NoError(t, err)
		assert.Equal(t, product.ID, resp.ProductID)
		assert.Equal(t, "SKU-1", resp.SKU)
		assert.True(t, resp.IsNewCount)
		require.NotNil(t, resp.Item.CountedQuantity)
		assert.Equal(t, int64(28), *resp.Item.CountedQuantity)
		f.sessionRepo.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("first scan starts a draft session", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusDraft)
		warehouseID := uuid.New()
		product := &stock.Product{ID: uuid.New(), TenantID: tenantID, SKU: "SKU-3", Barcode: "555", Name: "Sprocket", IsActive: true}
		item := newCountedItem(tenantID, session.ID, 12, 0, nil)
		item.CountedQuantity = nil
		item.ProductID = product.ID
		item.WarehouseID = warehouseID

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.productRepo.On("FindByBarcode", ctx, tenantID, "555").Return(product, nil)
		f.itemRepo.On("FindByKey", ctx, tenantID, session.ID, product.ID, warehouseID).Return(&item, nil)
		f.sessionRepo.On("Start", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time")).Return(nil)
		f.itemRepo.On("BatchUpdateCounts", ctx, tenantID, session.ID, mock.AnythingOfType("[]reconciliation.CountUpdate")).Return(nil)

		_, err := f.service.Scan(ctx, tenantID, userID, session.ID, ScanRequest{
			Barcode:         "555",
			WarehouseID:     warehouseID,
			CountedQuantity: 12,
		})

		require.NoError(t, err)
		f.sessionRepo.AssertCalled(t, "Start", ctx, tenantID, session.ID, mock.AnythingOfType("time.Time"))
		assert.Len(t, f.eventBus.EventsByType(reconciliation.EventTypeCountingStarted), 1)
	})

	t.Run("rescan reports an existing count", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)
		warehouseID := uuid.New()
		product := &stock.Product{ID: uuid.New(), TenantID: tenantID, SKU: "SKU-4", Barcode: "777", Name: "Cog", IsActive: true}
		item := newCountedItem(tenantID, session.ID, 8, 7, nil)
		item.ProductID = product.ID
		item.WarehouseID = warehouseID

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.productRepo.On("FindByBarcode", ctx, tenantID, "777").Return(product, nil)
		f.itemRepo.On("FindByKey", ctx, tenantID, session.ID, product.ID, warehouseID).Return(&item, nil)
		f.itemRepo.On("BatchUpdateCounts", ctx, tenantID, session.ID, mock.AnythingOfType("[]reconciliation.CountUpdate")).Return(nil)

		resp, err := f.service.Scan(ctx, tenantID, userID, session.ID, ScanRequest{
			Barcode:         "777",
			WarehouseID:     warehouseID,
			CountedQuantity: 8,
		})

		require.NoError(t, err)
		assert.False(t, resp.IsNewCount)
	})

	t.Run("product outside the count scope is not found", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)
		warehouseID := uuid.New()
		product := &stock.Product{ID: uuid.New(), TenantID: tenantID, SKU: "SKU-2", Name: "Gadget"}

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.productRepo.On("FindByBarcode", ctx, tenantID, "000").Return(product, nil)
		f.itemRepo.On("FindByKey", ctx, tenantID, session.ID, product.ID, warehouseID).Return(nil, shared.ErrNotFound)

		_, err := f.service.Scan(ctx, tenantID, userID, session.ID, ScanRequest{Barcode: "000", WarehouseID: warehouseID, CountedQuantity: 1})

		assert.ErrorIs(t, err, shared.ErrNotFound)
		f.itemRepo.AssertNotCalled(t, "BatchUpdateCounts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown barcode propagates not found", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusInProgress)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)
		f.productRepo.On("FindByBarcode", ctx, tenantID, "nope").Return(nil, shared.ErrNotFound)

		_, err := f.service.Scan(ctx, tenantID, userID, session.ID, ScanRequest{Barcode: "nope", WarehouseID: uuid.New(), CountedQuantity: 1})

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("negative quantity is rejected", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.Scan(ctx, tenantID, userID, uuid.New(), ScanRequest{Barcode: "123", WarehouseID: uuid.New(), CountedQuantity: -1})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
	})

	t.Run("scanning a finalized session is rejected", func(t *testing.T) {
		f := newServiceFixture()
		session := newTestSession(t, tenantID, reconciliation.StatusCompleted)

		f.sessionRepo.On("FindByID", ctx, tenantID, session.ID).Return(session, nil)

		_, err := f.service.Scan(ctx, tenantID, userID, session.ID, ScanRequest{Barcode: "123", WarehouseID: uuid.New(), CountedQuantity: 1})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
	})
}
