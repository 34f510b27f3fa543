package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/guttosm/dsepulse/internal/middleware"
)

// NewRouter creates a Gin engine with routes configured.
// It receives a Handler instance with all business logic already injected.
//
// Responsibilities:
//   - Registers global middlewares (RequestID, Logger, Recovery, ErrorHandler, RateLimiter).
//   - Adds request timeout handling (15 seconds, covering fetch retries).
//   - Mounts Swagger docs (/swagger/*any).
//   - Configures the DSE routes (/api/v1/dse).
//
// Note:
//   - Health and readiness endpoints (/healthz, /readyz) are registered in app.InitializeApp().
func NewRouter(handler *Handler) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.RecoveryMiddleware(),
		middleware.ErrorHandler,
		middleware.RateLimiter(1, 10),
	)

	// Request timeout; generous enough for one fetch with retries.
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	dse := router.Group("/api/v1/dse")
	{
		dse.GET("/hello", handler.GetHello)
		dse.GET("/latest", handler.GetLatest)
		dse.GET("/dsexdata", handler.GetDsexData)
		dse.GET("/top30", handler.GetTop30)
		dse.GET("/historical", handler.GetHistData)
	}

	return router
}
