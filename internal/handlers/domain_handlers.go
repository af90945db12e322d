package handlers

import (
	"net/http"
	"strconv"

	"portfolio-host-service/internal/models"

	"github.com/gin-gonic/gin"
)

// DomainHandlers handles the tenant's custom domain requests
type DomainHandlers struct {
	binder Binder
}

// NewDomainHandlers creates new domain handlers
func NewDomainHandlers(binder Binder) *DomainHandlers {
	return &DomainHandlers{
		binder: binder,
	}
}

// AddDomain handles POST /api/v1/domain
// @Summary Connect a custom domain
// @Description Starts binding a custom domain to the authenticated tenant's portfolio
// @Tags domain
// @Accept json
// @Produce json
// @Param request body models.AddDomainRequest true "Domain to connect"
// @Success 202 {object} models.BindingResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/domain [post]
func (h *DomainHandlers) AddDomain(c *gin.Context) {
	tenantID, userID, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	var req models.AddDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Please provide the domain to connect")
		return
	}

	binding, err := h.binder.RequestBinding(c.Request.Context(), tenantID, req.Domain, userID)
	if err != nil {
		respondError(c, err, "add_domain", tenantID)
		return
	}

	status := http.StatusAccepted
	if binding.Status == models.BindingStatusVerified {
		status = http.StatusOK
	}
	c.JSON(status, models.NewBindingResponse(binding))
}

// GetDomain handles GET /api/v1/domain
// @Summary Get the custom domain
// @Description Returns the tenant's current or most recent binding with the DNS records to configure
// @Tags domain
// @Produce json
// @Success 200 {object} models.BindingResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/domain [get]
func (h *DomainHandlers) GetDomain(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	binding, err := h.binder.GetBinding(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "get_domain", tenantID)
		return
	}

	c.JSON(http.StatusOK, binding)
}

// VerifyDomain handles POST /api/v1/domain/verify
// @Summary Check verification now
// @Description Asks the edge provider whether the pending domain has been verified
// @Tags domain
// @Produce json
// @Success 200 {object} models.BindingResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/domain/verify [post]
func (h *DomainHandlers) VerifyDomain(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	binding, err := h.binder.CheckTenantVerification(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "verify_domain", tenantID)
		return
	}

	c.JSON(http.StatusOK, models.NewBindingResponse(binding))
}

// RemoveDomain handles DELETE /api/v1/domain
// @Summary Remove the custom domain
// @Description Unbinds the custom domain or cancels an attempt in progress
// @Tags domain
// @Produce json
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/domain [delete]
func (h *DomainHandlers) RemoveDomain(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	if err := h.binder.RemoveBinding(c.Request.Context(), tenantID); err != nil {
		respondError(c, err, "remove_domain", tenantID)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Custom domain removed",
	})
}

// GetActivities handles GET /api/v1/domain/activities
// @Summary Get domain activities
// @Description Get the binding activity log for the tenant
// @Tags domain
// @Produce json
// @Param limit query int false "Limit" default(50)
// @Success 200 {array} models.DomainActivity
// @Router /api/v1/domain/activities [get]
func (h *DomainHandlers) GetActivities(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	activities, err := h.binder.ListActivities(c.Request.Context(), tenantID, limit)
	if err != nil {
		respondError(c, err, "list_activities", tenantID)
		return
	}

	c.JSON(http.StatusOK, activities)
}

// ValidateDomain handles POST /api/v1/domain/validate
// @Summary Validate a domain
// @Description Checks syntax, availability and optionally DNS before connecting a domain
// @Tags domain
// @Accept json
// @Produce json
// @Param request body models.ValidateDomainRequest true "Domain to validate"
// @Success 200 {object} models.ValidateDomainResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/domain/validate [post]
func (h *DomainHandlers) ValidateDomain(c *gin.Context) {
	tenantID, _, err := getTenantAndUserFromContext(c)
	if err != nil {
		respondUnauthorized(c)
		return
	}

	var req models.ValidateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Please provide the domain to validate")
		return
	}

	result, err := h.binder.ValidateDomain(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err, "validate_domain", tenantID)
		return
	}

	c.JSON(http.StatusOK, result)
}
