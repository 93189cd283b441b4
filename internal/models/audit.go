package models

import "time"

// AuditEntry is one append-only journal row. EventID is the idempotency key:
// two entries never share it, so event replays are absorbed by upsert.
type AuditEntry struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenantId"`
	UserID       *string   `db:"user_id" json:"userId,omitempty"`
	UserEmail    *string   `db:"user_email" json:"userEmail,omitempty"`
	Action       string    `db:"action" json:"action"`
	ResourceType string    `db:"resource_type" json:"resourceType"`
	ResourceID   *string   `db:"resource_id" json:"resourceId,omitempty"`
	Description  *string   `db:"description" json:"description,omitempty"`
	OldValue     *string   `db:"old_value" json:"oldValue,omitempty"`
	NewValue     *string   `db:"new_value" json:"newValue,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip,omitempty"`
	UserAgent    *string   `db:"user_agent" json:"agent,omitempty"`
	EventID      string    `db:"event_id" json:"eventId"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
}
