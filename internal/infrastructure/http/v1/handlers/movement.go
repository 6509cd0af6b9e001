package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/http/v1/dto"
	"pharmastock/internal/infrastructure/storage/postgres"
	"pharmastock/pkg/logger"
)

// MovementExecutor is implemented by *movement.Engine.
type MovementExecutor interface {
	Execute(ctx context.Context, cmd movement.Command) (*movement.Result, error)
}

// AuditLog is implemented by *postgres.AuditLog.
type AuditLog interface {
	Record(ctx context.Context, tenantID id.ID, kind postgres.AuditKind, entityType string, entityID, userID *id.ID, payload any) error
	History(ctx context.Context, tenantID id.ID, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// MovementObserver is implemented by *telemetry.Metrics.
type MovementObserver interface {
	ObserveMovement(movementType, result string, d time.Duration)
}

// MovementHandler records stock movements.
type MovementHandler struct {
	*BaseHandler
	engine   MovementExecutor
	audit    AuditLog
	observer MovementObserver
}

// NewMovementHandler creates a movement handler. audit may be nil.
func NewMovementHandler(base *BaseHandler, engine MovementExecutor, audit AuditLog) *MovementHandler {
	return &MovementHandler{BaseHandler: base, engine: engine, audit: audit}
}

// WithObserver sets the metrics observer.
func (h *MovementHandler) WithObserver(obs MovementObserver) *MovementHandler {
	h.observer = obs
	return h
}

// Create handles POST /api/v1/movements.
func (h *MovementHandler) Create(c *gin.Context) {
	caller, err := h.Caller(c)
	if err != nil {
		h.Error(c, err)
		return
	}

	var req dto.CreateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd, err := req.ToCommand(caller.TenantID, caller.UserID)
	if err != nil {
		var fe *dto.FieldError
		if errors.As(err, &fe) {
			err = apperror.NewValidation(fe.Error()).WithDetail("field", fe.Field)
		}
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	start := time.Now()
	res, err := h.engine.Execute(ctx, cmd)
	h.observe(cmd.Type, err, time.Since(start))
	if err != nil {
		h.auditBlocked(ctx, cmd, err)
		h.Error(c, err)
		return
	}

	resp := dto.FromResult(res)
	h.record(ctx, caller.TenantID, postgres.AuditMovementCreated, "movement", &res.Movement.ID, &caller.UserID, resp)
	h.Created(c, resp)
}

type blockedPayload struct {
	Type           movement.Type  `json:"type"`
	ProductID      id.ID          `json:"productId"`
	BatchID        *id.ID         `json:"batchId,omitempty"`
	FromLocationID *id.ID         `json:"fromLocationId,omitempty"`
	ToLocationID   *id.ID         `json:"toLocationId,omitempty"`
	Quantity       string         `json:"quantity"`
	Code           string         `json:"code"`
	Details        map[string]any `json:"details,omitempty"`
}

// auditBlocked records rejected movements; they leave no other trace.
func (h *MovementHandler) auditBlocked(ctx context.Context, cmd movement.Command, err error) {
	kind := postgres.AuditKindForError(err)
	if kind == "" {
		return
	}
	appErr, _ := apperror.AsAppError(err)

	entityType, entityID := "product", &cmd.ProductID
	if cmd.BatchID != nil {
		entityType, entityID = "batch", cmd.BatchID
	}
	h.record(ctx, cmd.TenantID, kind, entityType, entityID, &cmd.UserID, blockedPayload{
		Type:           cmd.Type,
		ProductID:      cmd.ProductID,
		BatchID:        cmd.BatchID,
		FromLocationID: cmd.FromLocationID,
		ToLocationID:   cmd.ToLocationID,
		Quantity:       cmd.Quantity.String(),
		Code:           appErr.Code,
		Details:        appErr.Details,
	})
}

func (h *MovementHandler) observe(t movement.Type, err error, d time.Duration) {
	if h.observer == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = apperror.CodeInternal
		if appErr, ok := apperror.AsAppError(err); ok {
			result = appErr.Code
		}
	}
	label := string(t)
	if !t.Valid() {
		label = "invalid"
	}
	h.observer.ObserveMovement(label, result, d)
}

func (h *MovementHandler) record(ctx context.Context, tenantID id.ID, kind postgres.AuditKind, entityType string, entityID, userID *id.ID, payload any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, tenantID, kind, entityType, entityID, userID, payload); err != nil {
		logger.Warn(ctx, "audit record failed", "kind", kind, "error", err)
	}
}
