package services

import "errors"

// Validation errors
var (
	ErrInvalidDomainFormat = errors.New("invalid domain format")
	ErrInvalidUsername     = errors.New("invalid username")
)

// Entitlement errors
var (
	ErrNotEntitled     = errors.New("tenant is not entitled to this feature")
	ErrUnknownCustomer = errors.New("billing customer does not match any tenant")
)

// Conflict errors
var (
	ErrDomainAlreadyBound = errors.New("domain is already bound to another tenant")
	ErrBindingInProgress  = errors.New("a domain binding is already in progress for this tenant")
	ErrTenantHasDomain    = errors.New("tenant already has a custom domain bound")
	ErrUsernameLocked     = errors.New("username can no longer be changed")
	ErrUsernameTaken      = errors.New("username is already taken")
)

// Provider errors
var (
	ErrProviderUnavailable = errors.New("external provider unavailable")
	ErrProviderRejected    = errors.New("external provider rejected the request")
)

// Not found
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrNotBound        = errors.New("tenant has no custom domain bound")
	ErrBindingNotFound = errors.New("domain binding not found")
)

// ProviderRejectionError carries the reason an external provider gave for a rejection
type ProviderRejectionError struct {
	Reason string
}

func (e *ProviderRejectionError) Error() string {
	return ErrProviderRejected.Error() + ": " + e.Reason
}

func (e *ProviderRejectionError) Unwrap() error {
	return ErrProviderRejected
}
