package models

import (
	"time"

	"github.com/google/uuid"
)

// AddDomainRequest represents a request to bind a custom domain
type AddDomainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

// ValidateDomainRequest contains the domain to validate
type ValidateDomainRequest struct {
	Domain   string `json:"domain" binding:"required"`
	CheckDNS bool   `json:"check_dns"`
}

// ValidateDomainResponse contains validation results
type ValidateDomainResponse struct {
	Valid        bool        `json:"valid"`
	Available    bool        `json:"available"`
	DomainExists bool        `json:"domain_exists"`
	DomainType   string      `json:"domain_type,omitempty"`
	Message      string      `json:"message,omitempty"`
	DNSRecords   []DNSRecord `json:"dns_records,omitempty"`
}

// CreateTenantRequest is sent by the signup flow
type CreateTenantRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// AssignUsernameRequest sets or changes a tenant's username
type AssignUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

// BindingResponse represents a domain binding in API responses
type BindingResponse struct {
	ID            uuid.UUID     `json:"id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	Domain        string        `json:"domain"`
	DomainType    DomainType    `json:"domain_type"`
	Status        BindingStatus `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	CheckAttempts int           `json:"check_attempts"`
	RequestedAt   string        `json:"requested_at"`
	LastCheckedAt *string       `json:"last_checked_at,omitempty"`
	VerifiedAt    *string       `json:"verified_at,omitempty"`
	DNSRecords    []DNSRecord   `json:"dns_records,omitempty"`
}

// NewBindingResponse converts a binding into its API form
func NewBindingResponse(b *DomainBinding) *BindingResponse {
	resp := &BindingResponse{
		ID:            b.ID,
		TenantID:      b.TenantID,
		Domain:        b.Domain,
		DomainType:    b.DomainType,
		Status:        b.Status,
		Reason:        b.Reason,
		CheckAttempts: b.CheckAttempts,
		RequestedAt:   b.RequestedAt.Format(time.RFC3339),
		DNSRecords:    b.VerificationRecords,
	}
	if b.LastCheckedAt != nil {
		v := b.LastCheckedAt.Format(time.RFC3339)
		resp.LastCheckedAt = &v
	}
	if b.VerifiedAt != nil {
		v := b.VerifiedAt.Format(time.RFC3339)
		resp.VerifiedAt = &v
	}
	return resp
}

// EntitlementResponse describes whether a tenant holds an active paid plan
type EntitlementResponse struct {
	TenantID         uuid.UUID          `json:"tenant_id"`
	Entitled         bool               `json:"entitled"`
	Status           SubscriptionStatus `json:"status"`
	ProductRef       string             `json:"product_ref,omitempty"`
	CurrentPeriodEnd *string            `json:"current_period_end,omitempty"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
