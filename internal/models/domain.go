package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BindingStatus represents the state of a custom domain binding attempt
type BindingStatus string

const (
	BindingStatusRequested           BindingStatus = "requested"
	BindingStatusProviderRegistering BindingStatus = "provider_registering"
	BindingStatusPendingVerification BindingStatus = "pending_verification"
	BindingStatusVerified            BindingStatus = "verified"
	BindingStatusFailed              BindingStatus = "failed"
	BindingStatusRemoved             BindingStatus = "removed"
)

// InFlightBindingStatuses are the statuses that hold the per-tenant binding slot
var InFlightBindingStatuses = []BindingStatus{
	BindingStatusRequested,
	BindingStatusProviderRegistering,
	BindingStatusPendingVerification,
}

// InFlight returns true while the attempt has not reached a terminal state
func (s BindingStatus) InFlight() bool {
	for _, st := range InFlightBindingStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// DomainType represents the type of domain
type DomainType string

const (
	DomainTypeApex      DomainType = "apex"
	DomainTypeSubdomain DomainType = "subdomain"
)

// DomainBinding tracks one attempt to bind a custom domain to a tenant
type DomainBinding struct {
	ID         uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID     `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Domain     string        `json:"domain" gorm:"not null;size:255;index"`
	DomainType DomainType    `json:"domain_type" gorm:"size:20;default:'apex'"`
	Status     BindingStatus `json:"status" gorm:"size:30;not null;index"`

	// Reason is set when the attempt failed (provider reason or local cause)
	Reason string `json:"reason,omitempty" gorm:"size:500"`

	// Edge provider
	ProviderRef         string      `json:"-" gorm:"size:100"`
	VerificationRecords []DNSRecord `json:"verification_records,omitempty" gorm:"serializer:json;type:text"`

	RequestedAt   time.Time  `json:"requested_at"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CheckAttempts int        `json:"check_attempts" gorm:"default:0"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`

	CreatedBy uuid.UUID `json:"created_by" gorm:"type:uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM
func (DomainBinding) TableName() string {
	return "domain_bindings"
}

// BeforeCreate hook to generate UUID if not set
func (b *DomainBinding) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsVerified returns true once the binding reached its terminal success state
func (b *DomainBinding) IsVerified() bool {
	return b.Status == BindingStatusVerified && b.VerifiedAt != nil
}

// CanRetry returns true if a new attempt may be started after this one
func (b *DomainBinding) CanRetry() bool {
	return b.Status == BindingStatusFailed || b.Status == BindingStatusRemoved
}

// DomainActivity represents an activity log entry for a domain binding
type DomainActivity struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BindingID uuid.UUID `json:"binding_id" gorm:"type:uuid;not null;index"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Domain    string    `json:"domain" gorm:"size:255"`
	Action    string    `json:"action" gorm:"size:50;not null"`
	Status    string    `json:"status" gorm:"size:20;not null"`
	Message   string    `json:"message" gorm:"size:500"`
	Duration  int64     `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the table name for GORM
func (DomainActivity) TableName() string {
	return "domain_activities"
}

// BeforeCreate hook to generate UUID if not set
func (a *DomainActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// DNSRecord represents a DNS record the tenant needs to configure
type DNSRecord struct {
	RecordType string `json:"record_type"` // TXT, CNAME, A
	Host       string `json:"host"`
	Value      string `json:"value"`
	TTL        int    `json:"ttl"`
	Purpose    string `json:"purpose"` // verification, routing
	IsVerified bool   `json:"is_verified"`
}
