package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()

			if err := deps.DB.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": deps.ServiceName,
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
		})
	})

	escrowHandler := handler.NewEscrowHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		escrows := v1.Group("/escrows")
		if deps.AuthDisabled {
			deps.Logger.Warn("Authentication is disabled for escrow routes")
		} else {
			escrows.Use(AuthMiddleware(deps.JWTSecret, deps.Logger))
		}
		{
			// POST /api/v1/escrows - Hold funds for a project
			escrows.POST("", escrowHandler.CreateEscrow)

			// GET /api/v1/escrows - List escrows with filtering and pagination
			escrows.GET("", escrowHandler.ListEscrows)

			// GET /api/v1/escrows/project/:project_id - Get a project's escrow
			escrows.GET("/project/:project_id", escrowHandler.GetEscrowByProjectID)

			// GET /api/v1/escrows/:id - Get escrow details
			escrows.GET("/:id", escrowHandler.GetEscrow)

			// GET /api/v1/escrows/:id/transactions - Escrow ledger
			escrows.GET("/:id/transactions", escrowHandler.ListTransactions)

			// POST /api/v1/escrows/:id/release - Release part or all of the funds
			escrows.POST("/:id/release", escrowHandler.ReleaseFunds)

			// POST /api/v1/escrows/:id/cancel - Cancel and void the hold
			escrows.POST("/:id/cancel", escrowHandler.CancelEscrow)
		}

		webhooks := v1.Group("/webhooks")
		{
			// POST /api/v1/webhooks/stripe - Signed gateway callbacks
			webhooks.POST("/stripe", webhookHandler.HandleStripe)
		}
	}

	return r
}
