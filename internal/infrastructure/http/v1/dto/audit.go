package dto

import (
	"encoding/json"
	"time"

	"pharmastock/internal/core/id"
	"pharmastock/internal/infrastructure/storage/postgres"
)

// AuditEntryResponse is one audit trail entry.
type AuditEntryResponse struct {
	ID         id.ID           `json:"id"`
	Kind       string          `json:"kind"`
	EntityType string          `json:"entityType"`
	EntityID   *id.ID          `json:"entityId,omitempty"`
	UserID     *id.ID          `json:"userId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// FromAuditEntries converts decompressed audit entries.
func FromAuditEntries(entries []postgres.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryResponse{
			ID:         e.ID,
			Kind:       string(e.Kind),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			UserID:     e.UserID,
			Payload:    e.Payload,
			CreatedAt:  e.CreatedAt,
		}
	}
	return out
}
