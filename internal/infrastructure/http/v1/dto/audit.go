package dto

import (
	"encoding/json"
	"time"

	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/audit"
	"factorydesk/internal/infrastructure/storage/postgres"
)

// AuditEntryResponse is one change in an entity's history.
type AuditEntryResponse struct {
	ID        id.ID           `json:"id"`
	Action    audit.Action    `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	UserEmail string          `json:"userEmail,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditRecords converts decoded audit rows for output.
func FromAuditRecords(records []postgres.AuditRecord) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(records))
	for _, r := range records {
		out = append(out, AuditEntryResponse{
			ID:        r.ID,
			Action:    r.Action,
			UserID:    r.UserID,
			UserEmail: r.UserEmail,
			Changes:   r.Changes,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

// HistoryQuery limits an audit history listing.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}
