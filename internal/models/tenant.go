package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionStatus is the locally stored billing state of a tenant
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusNone      SubscriptionStatus = "none"
)

// Valid reports whether s is one of the known statuses
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusInactive, SubscriptionStatusCancelled,
		SubscriptionStatusPastDue, SubscriptionStatusNone:
		return true
	}
	return false
}

// Tenant is one account that can own a portfolio
type Tenant struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Username *string   `json:"username" gorm:"size:20;uniqueIndex"`
	Email    string    `json:"email" gorm:"size:255;index"`

	// Bound custom domain, stored normalized (lowercase, no www., no trailing dot)
	CustomDomain *string `json:"custom_domain" gorm:"size:255;uniqueIndex"`

	// Subscription
	SubscriptionStatus   SubscriptionStatus `json:"subscription_status" gorm:"size:20;default:'none';index"`
	BillingCustomerRef   *string            `json:"-" gorm:"size:100;uniqueIndex"`
	ProductRef           string             `json:"product_ref" gorm:"size:100"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end"`
	SubscriptionSyncedAt *time.Time         `json:"subscription_synced_at"`

	UsernameChanges int `json:"username_changes" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the table name for GORM
func (Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate hook to generate UUID if not set
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.SubscriptionStatus == "" {
		t.SubscriptionStatus = SubscriptionStatusNone
	}
	return nil
}

// UsernameValue returns the username or "" when not yet assigned
func (t *Tenant) UsernameValue() string {
	if t.Username == nil {
		return ""
	}
	return *t.Username
}

// DomainValue returns the bound custom domain or ""
func (t *Tenant) DomainValue() string {
	if t.CustomDomain == nil {
		return ""
	}
	return *t.CustomDomain
}

// HasCustomDomain returns true if a custom domain is bound
func (t *Tenant) HasCustomDomain() bool {
	return t.CustomDomain != nil && *t.CustomDomain != ""
}

// EntitledUntil returns the period end when the stored status is active.
// A nil result means the tenant holds no paid entitlement at any time.
func (t *Tenant) EntitledUntil() *time.Time {
	if t.SubscriptionStatus != SubscriptionStatusActive || t.CurrentPeriodEnd == nil {
		return nil
	}
	end := *t.CurrentPeriodEnd
	return &end
}

// SubscriptionState is a point-in-time snapshot of billing facts for a tenant
type SubscriptionState struct {
	Status           SubscriptionStatus
	ProductRef       string
	CurrentPeriodEnd *time.Time
	// ObservedAt orders competing writes (webhook vs reconcile): newer wins
	ObservedAt time.Time
}

// ProcessedBillingEvent records a billing event id that has been applied
type ProcessedBillingEvent struct {
	EventID     string    `json:"event_id" gorm:"primaryKey;size:255"`
	TenantID    uuid.UUID `json:"tenant_id" gorm:"type:uuid;index"`
	EventType   string    `json:"event_type" gorm:"size:100"`
	OccurredAt  time.Time `json:"occurred_at"`
	ProcessedAt time.Time `json:"processed_at" gorm:"index"`
}

// TableName returns the table name for GORM
func (ProcessedBillingEvent) TableName() string {
	return "processed_billing_events"
}

// BillingEvent is a provider-neutral billing webhook payload
type BillingEvent struct {
	EventID          string
	EventType        string
	CustomerRef      string
	CustomerEmail    string
	Status           SubscriptionStatus // empty for link-only events
	ProductRef       string
	CurrentPeriodEnd *time.Time
	OccurredAt       time.Time
}

// LinkOnly returns true if the event carries no subscription state
func (e *BillingEvent) LinkOnly() bool {
	return e.Status == ""
}
