package handlers

import (
	"errors"
	"net/http"

	"portfolio-host-service/internal/models"
	"portfolio-host-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{services.ErrInvalidDomainFormat, http.StatusBadRequest, "INVALID_DOMAIN", "Please enter a valid domain like example.com"},
	{services.ErrInvalidUsername, http.StatusBadRequest, "INVALID_USERNAME", "Usernames are 3-20 letters, digits, '_' or '-'"},
	{services.ErrNotEntitled, http.StatusForbidden, "NOT_ENTITLED", "Custom domains require an active Pro subscription"},
	{services.ErrDomainAlreadyBound, http.StatusConflict, "DOMAIN_TAKEN", "This domain is already connected to another portfolio"},
	{services.ErrBindingInProgress, http.StatusConflict, "BINDING_IN_PROGRESS", "A domain is already being connected"},
	{services.ErrTenantHasDomain, http.StatusConflict, "DOMAIN_ALREADY_SET", "Remove your current domain before adding another"},
	{services.ErrUsernameLocked, http.StatusConflict, "USERNAME_LOCKED", "Your username can no longer be changed"},
	{services.ErrUsernameTaken, http.StatusConflict, "USERNAME_TAKEN", "This username is already taken"},
	{services.ErrProviderRejected, http.StatusUnprocessableEntity, "PROVIDER_REJECTED", ""},
	{services.ErrProviderUnavailable, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", "Please try again in a few minutes"},
	{services.ErrTenantNotFound, http.StatusNotFound, "TENANT_NOT_FOUND", ""},
	{services.ErrNotBound, http.StatusNotFound, "NO_DOMAIN", "No custom domain is connected"},
	{services.ErrBindingNotFound, http.StatusNotFound, "NO_DOMAIN", "No custom domain is connected"},
	{services.ErrUnknownCustomer, http.StatusNotFound, "UNKNOWN_CUSTOMER", "No billing account matches this tenant"},
}

// respondError writes the API error for err. Unmapped errors are logged and
// returned as 500 without their text.
func respondError(c *gin.Context, err error, op string, tenantID uuid.UUID) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		resp := models.ErrorResponse{Error: m.err.Error(), Code: m.code, Message: m.message}
		var rejection *services.ProviderRejectionError
		if errors.As(err, &rejection) {
			resp.Message = rejection.Reason
		}
		c.JSON(m.status, resp)
		return
	}

	event := log.Error().Err(err).Str("operation", op)
	if tenantID != uuid.Nil {
		event = event.Str("tenant_id", tenantID.String())
	}
	event.Msg("Request failed")

	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: "internal error",
		Code:  "INTERNAL_ERROR",
	})
}

func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error: "unauthorized",
		Code:  "UNAUTHORIZED",
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid request",
		Code:    "INVALID_REQUEST",
		Message: message,
	})
}

// getTenantAndUserFromContext reads the identity headers set by the gateway
func getTenantAndUserFromContext(c *gin.Context) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := uuid.Parse(c.GetHeader("X-Tenant-ID"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	userID, _ := uuid.Parse(c.GetHeader("X-User-ID"))
	return tenantID, userID, nil
}
