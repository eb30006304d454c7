package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	reconapp "github.com/wms/backend/internal/application/reconciliation"
)

// ReconciliationHandler handles cycle-count reconciliation API endpoints
type ReconciliationHandler struct {
	BaseHandler
	service *reconapp.Service
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(service *reconapp.Service) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// Create handles POST /reconciliations
func (h *ReconciliationHandler) Create(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identity required")
		return
	}

	var req reconapp.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.Create(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// RecordCounts handles POST /reconciliations/:id/counts
func (h *ReconciliationHandler) RecordCounts(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identity required")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	var req reconapp.RecordCountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RecordCounts(c.Request.Context(), tenantID, userID, sessionID, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// Finalize handles POST /reconciliations/:id/finalize
func (h *ReconciliationHandler) Finalize(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identity required")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	result, err := h.service.Finalize(c.Request.Context(), tenantID, userID, sessionID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// Approve handles POST /reconciliations/:id/approve
func (h *ReconciliationHandler) Approve(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	approverID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identity required")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	// Body is optional - approval notes only
	var req reconapp.ApproveSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	result, err := h.service.Approve(c.Request.Context(), tenantID, approverID, sessionID, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// Cancel handles POST /reconciliations/:id/cancel
func (h *ReconciliationHandler) Cancel(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	result, err := h.service.Cancel(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GetByID handles GET /reconciliations/:id
func (h *ReconciliationHandler) GetByID(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	result, err := h.service.Get(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// listQuery binds the supported list query parameters
type listQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1"`
}

// List handles GET /reconciliations
func (h *ReconciliationHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := reconapp.ListFilter{
		Page:     q.Page,
		PageSize: q.PageSize,
	}

	if statusStr := c.Query("status"); statusStr != "" {
		filter.Status = &statusStr
	}
	if cycleTypeStr := c.Query("cycle_type"); cycleTypeStr != "" {
		filter.CycleType = &cycleTypeStr
	}
	if whIDStr := c.Query("warehouse_id"); whIDStr != "" {
		whID, err := uuid.Parse(whIDStr)
		if err != nil {
			h.BadRequest(c, "Invalid warehouse ID format")
			return
		}
		filter.WarehouseID = &whID
	}

	result, err := h.service.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// VarianceAnalysis handles GET /reconciliations/:id/variance-analysis
func (h *ReconciliationHandler) VarianceAnalysis(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	result, err := h.service.VarianceAnalysis(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// Scan handles POST /reconciliations/:id/scan
func (h *ReconciliationHandler) Scan(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User identity required")
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid session ID format")
		return
	}

	var req reconapp.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.Scan(c.Request.Context(), tenantID, userID, sessionID, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}
