package handlers

import (
	"context"
	"net/http"
	"time"

	"portfolio-host-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InternalHandlers handles internal service-to-service requests
type InternalHandlers struct {
	resolver     Resolver
	directory    Directory
	entitlements Entitlements
	checks       map[string]Pinger
}

// NewInternalHandlers creates new internal handlers. checks are pinged by /ready.
func NewInternalHandlers(resolver Resolver, directory Directory, entitlements Entitlements, checks map[string]Pinger) *InternalHandlers {
	return &InternalHandlers{
		resolver:     resolver,
		directory:    directory,
		entitlements: entitlements,
		checks:       checks,
	}
}

// Resolve handles GET /api/v1/internal/resolve
// @Summary Resolve host
// @Description Maps an inbound host to the tenant whose portfolio should be rendered (internal use only)
// @Tags internal
// @Produce json
// @Param host query string true "Host header value"
// @Success 200 {object} models.Resolution
// @Failure 404 {object} models.Resolution
// @Router /api/v1/internal/resolve [get]
func (h *InternalHandlers) Resolve(c *gin.Context) {
	host := c.Query("host")
	if host == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "host parameter is required",
			Code:  "MISSING_HOST",
		})
		return
	}

	resolution, err := h.resolver.Resolve(c.Request.Context(), host)
	if err != nil {
		log.Error().Err(err).Str("host", host).Msg("Failed to resolve host")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "failed to resolve host",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	if !resolution.Found {
		c.JSON(http.StatusNotFound, resolution)
		return
	}
	c.JSON(http.StatusOK, resolution)
}

// GetEntitlement handles GET /api/v1/internal/tenants/:id/entitlement
// @Summary Tenant entitlement
// @Description Reads the tenant's entitlement from local state (internal use only)
// @Tags internal
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} models.EntitlementResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/internal/tenants/{id}/entitlement [get]
func (h *InternalHandlers) GetEntitlement(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}

	entitlement, err := h.entitlements.GetEntitlement(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err, "internal_entitlement", tenantID)
		return
	}

	c.JSON(http.StatusOK, entitlement)
}

// InvalidateTenant handles POST /api/v1/internal/tenants/:id/invalidate
// @Summary Invalidate tenant caches
// @Description Called by the portfolio app after profile, project or theme changes (internal use only)
// @Tags internal
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/internal/tenants/{id}/invalidate [post]
func (h *InternalHandlers) InvalidateTenant(c *gin.Context) {
	tenantID, ok := tenantIDParam(c)
	if !ok {
		return
	}

	if err := h.directory.Invalidate(c.Request.Context(), tenantID); err != nil {
		respondError(c, err, "invalidate_tenant", tenantID)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// CreateTenant handles POST /api/v1/internal/tenants
// @Summary Register a tenant
// @Description Called by the signup flow to create an account without a username (internal use only)
// @Tags internal
// @Accept json
// @Produce json
// @Param request body models.CreateTenantRequest true "New tenant"
// @Success 201 {object} models.Tenant
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/internal/tenants [post]
func (h *InternalHandlers) CreateTenant(c *gin.Context) {
	var req models.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "A valid email is required")
		return
	}

	tenant, err := h.directory.CreateTenant(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err, "create_tenant", uuid.Nil)
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

// Health handles GET /health
// @Summary Health check
// @Description Service health check endpoint
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *InternalHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "portfolio-host-service",
	})
}

// Ready handles GET /ready
// @Summary Readiness check
// @Description Pings the database and host cache
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /ready [get]
func (h *InternalHandlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
	})
}

func tenantIDParam(c *gin.Context) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid tenant ID",
			Code:  "INVALID_ID",
		})
		return uuid.Nil, false
	}
	return tenantID, true
}
