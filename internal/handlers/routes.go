package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts every API route on router
func RegisterRoutes(router gin.IRouter, domain *DomainHandlers, tenant *TenantHandlers, billing *BillingHandlers, internal *InternalHandlers) {
	router.GET("/health", internal.Health)
	router.GET("/ready", internal.Ready)

	v1 := router.Group("/api/v1")
	{
		d := v1.Group("/domain")
		{
			d.POST("", domain.AddDomain)
			d.GET("", domain.GetDomain)
			d.DELETE("", domain.RemoveDomain)
			d.POST("/verify", domain.VerifyDomain)
			d.POST("/validate", domain.ValidateDomain)
			d.GET("/activities", domain.GetActivities)
		}

		v1.GET("/subscription", tenant.GetSubscription)
		v1.POST("/subscription/sync", tenant.SyncSubscription)
		v1.PUT("/tenant/username", tenant.AssignUsername)
		v1.DELETE("/tenant", tenant.DeleteTenant)

		v1.POST("/webhooks/billing", billing.Webhook)

		// Internal routes (service-to-service, not exposed through the gateway)
		in := v1.Group("/internal")
		{
			in.GET("/resolve", internal.Resolve)
			in.POST("/tenants", internal.CreateTenant)
			in.GET("/tenants/:id/entitlement", internal.GetEntitlement)
			in.POST("/tenants/:id/invalidate", internal.InvalidateTenant)
		}
	}
}
