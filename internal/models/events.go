package models

import "time"

// TenantMutationEvent is published by the portfolio app when content that
// appears on a tenant's pages changes
type TenantMutationEvent struct {
	EventType string    `json:"event_type"` // e.g. profile.updated, project.deleted, theme.updated
	TenantID  string    `json:"tenant_id"`
	Username  string    `json:"username,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
