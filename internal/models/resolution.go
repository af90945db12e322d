package models

import (
	"time"

	"github.com/google/uuid"
)

// HostClassification describes how an inbound host maps onto the platform
type HostClassification string

const (
	HostPrimary   HostClassification = "primary"
	HostSubdomain HostClassification = "subdomain"
	HostCustom    HostClassification = "custom"
)

// ResolvedHost is the value stored in the resolved-host cache.
// Found=false entries are negative cache entries.
type ResolvedHost struct {
	Host           string             `json:"host"`
	Classification HostClassification `json:"classification"`
	Found          bool               `json:"found"`
	TenantID       uuid.UUID          `json:"tenant_id,omitempty"`
	Username       string             `json:"username,omitempty"`
	Domain         string             `json:"domain,omitempty"`
	EntitledUntil  *time.Time         `json:"entitled_until,omitempty"`
}

// EntitledAt evaluates the cached entitlement snapshot at the given time
func (r *ResolvedHost) EntitledAt(now time.Time) bool {
	return r.EntitledUntil != nil && now.Before(*r.EntitledUntil)
}

// Resolution is the result handed to the rendering layer
type Resolution struct {
	Host           string             `json:"host"`
	Classification HostClassification `json:"classification"`
	Found          bool               `json:"found"`
	TenantID       *uuid.UUID         `json:"tenant_id,omitempty"`
	Username       string             `json:"username,omitempty"`
}
