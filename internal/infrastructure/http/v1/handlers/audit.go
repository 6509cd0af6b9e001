package handlers

import (
	"github.com/gin-gonic/gin"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/infrastructure/http/v1/dto"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler serves the audit trail of an entity.
type AuditHandler struct {
	*BaseHandler
	audit AuditLog
}

// NewAuditHandler creates an audit handler.
func NewAuditHandler(base *BaseHandler, audit AuditLog) *AuditHandler {
	return &AuditHandler{BaseHandler: base, audit: audit}
}

// History handles GET /api/v1/audit/:entityType/:entityId.
func (h *AuditHandler) History(c *gin.Context) {
	caller, err := h.Caller(c)
	if err != nil {
		h.Error(c, err)
		return
	}

	entityID, err := id.Parse(c.Param("entityId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("entityId must be a UUID").WithDetail("field", "entityId"))
		return
	}
	limit := h.ParseIntQuery(c, "limit", defaultAuditLimit)
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}

	entries, err := h.audit.History(c.Request.Context(), caller.TenantID, c.Param("entityType"), entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": dto.FromAuditEntries(entries)})
}
