package handlers

import (
	"net/http"

	"portfolio-host-service/internal/models"

	"github.com/gin-gonic/gin"
)

// TenantHandlers handles account-level requests from the admin UI
type TenantHandlers struct {
	directory    Directory
	entitlements Entitlements
}

// NewTenantHandlers creates new tenant handlers
func NewTenantHandlers(directory Directory, entitlements Entitlements) *TenantHandlers {
	return &TenantHandlers{
		directory:    directory,
		entitlements: entitlements,
	}
}

// AssignUsername handles PUT /api/v1/tenant/username
// @Summary Set the username
// @Description Sets the tenant's username. The first assignment is free and one change is allowed after it.
// @Tags tenant
// @Accept json
// @Produce json
// @Param request body models.AssignUsernameRequest true "Username"
// @Success 200 {object} models.Tenant
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/tenant/username [put]
func (h *TenantHandlers) AssignUsername(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	var req models.AssignUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Please provide a username")
		return
	}

	tenant, err := h.directory.AssignUsername(c.Request.Context(), tenantID, req.Username)
	if err != nil {
		respondError(c, err, "assign_username", tenantID)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// DeleteTenant handles DELETE /api/v1/tenant
// @Summary Delete the account
// @Description Deletes the tenant and releases its username and custom domain
// @Tags tenant
// @Produce json
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/tenant [delete]
func (h *TenantHandlers) DeleteTenant(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	if err := h.directory.DeleteTenant(c.Request.Context(), tenantID); err != nil {
		respondError(c, err, "delete_tenant", tenantID)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Account deleted",
	})
}

// GetSubscription handles GET /api/v1/subscription
// @Summary Get entitlement
// @Description Returns whether the tenant currently holds an active paid plan
// @Tags subscription
// @Produce json
// @Success 200 {object} models.EntitlementResponse
// @Router /api/v1/subscription [get]
func (h *TenantHandlers) GetSubscription(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	entitlement, err := h.entitlements.GetEntitlement(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "get_subscription", tenantID)
		return
	}

	c.JSON(http.StatusOK, entitlement)
}

// SyncSubscription handles POST /api/v1/subscription/sync
// @Summary Refresh subscription
// @Description Fetches the live subscription from the billing provider, for use after checkout
// @Tags subscription
// @Produce json
// @Success 200 {object} models.EntitlementResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/subscription/sync [post]
func (h *TenantHandlers) SyncSubscription(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	if _, err := h.entitlements.Reconcile(c.Request.Context(), tenantID); err != nil {
		respondError(c, err, "sync_subscription", tenantID)
		return
	}

	entitlement, err := h.entitlements.GetEntitlement(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "sync_subscription", tenantID)
		return
	}

	c.JSON(http.StatusOK, entitlement)
}
