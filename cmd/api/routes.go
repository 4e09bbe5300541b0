package main

import (
	"context"
	"net/http"

	"coincall-platform/internal/httpapi"
	"coincall-platform/internal/metrics"
	"coincall-platform/internal/rbac"
	"coincall-platform/internal/realtime"
	"coincall-platform/internal/wallet"
	"coincall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers  httpapi.Handlers
	authMW    gin.HandlerFunc
	ws        *realtime.Handler
	devLogin  bool
	minimumFn wallet.MinimumFunc
	health    func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := d.health(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	v1 := r.Group("/v1")
	v1.Use(httpapi.ClientIP())

	if d.devLogin {
		v1.POST("/auth/login", h.Login)
	}

	authed := v1.Group("")
	authed.Use(d.authMW, rbac.RequireUser())
	{
		// Billing backend delivery. The billing role is hidden and only allowed here.
		authed.POST("/internal/call-transactions", rbac.RequireAnyRole(rbac.RoleBilling), h.IngestTransaction)

		calls := authed.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleAdmin))
		{
			calls.GET("", h.ListCalls)
			calls.GET("/with/:peer_id", h.ListConversation)
			calls.POST("/precheck", wallet.RequireCoins(h.Wallet, d.minimumFn), h.Precheck)
		}

		wallets := authed.Group("/wallet")
		wallets.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleAdmin))
		{
			wallets.GET("/balance", h.GetWalletBalance)
			wallets.GET("/ledger", h.ListWalletLedger)
		}

		reports := authed.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleAdmin))
		{
			reports.GET("/calls", h.CallsReport)
			reports.GET("/spend", h.SpendReport)
		}

		// Only admin/super_admin can access admin endpoints.
		admin := authed.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/wallets/manual-credit", h.AdminManualCredit)
		}

		authed.GET("/ws", rbac.RequireAnyRole(rbac.RoleUser, rbac.RoleAdmin), d.ws.ServeWS)
	}
}
