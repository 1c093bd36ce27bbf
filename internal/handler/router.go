package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/middleware"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
	"github.com/makkenzo/prospect-enrichment-api/internal/service"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Auth           *service.AuthService
	Enricher       service.Enricher
	APIKeys        *service.APIKeyService
	Prospects      *service.ProspectService
	HealthChecks   map[string]HealthCheck
	MetricsHandler http.Handler
	AllowOrigins   []string
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with middleware and every API route.
func NewRouter(d RouterDeps) *gin.Engine {
	logger := d.Logger

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		logger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	if len(d.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: d.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"Authorization",
			},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	healthHandler := NewHealthHandler(d.HealthChecks, logger)
	router.GET("/healthz", healthHandler.Check)
	if d.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	authMiddleware := middleware.AuthMiddleware(d.Auth, logger)
	adminOnly := middleware.RequireRole(service.RoleAdmin)

	enrichmentHandler := NewEnrichmentHandler(d.Enricher, logger)
	apiKeyHandler := NewAPIKeyHandler(d.APIKeys, logger)
	prospectHandler := NewProspectHandler(d.Prospects, logger)
	authHandler := NewAuthHandler()

	apiV1 := router.Group("/api/v1")
	apiV1.Use(authMiddleware)
	{
		apiV1.GET("/auth/me", authHandler.Me)
		apiV1.POST("/enrich", enrichmentHandler.Enrich)

		prospectRoutes := apiV1.Group("/prospects")
		{
			prospectRoutes.POST("/enrich", prospectHandler.EnqueueBulk)
			prospectRoutes.POST("/:id/enrich", prospectHandler.Enrich)
		}

		apiKeyRoutes := apiV1.Group("/apikeys")
		apiKeyRoutes.Use(adminOnly)
		{
			apiKeyRoutes.POST("/bulk", apiKeyHandler.BulkAdd)
			apiKeyRoutes.GET("", apiKeyHandler.List)
			apiKeyRoutes.GET("/stats", apiKeyHandler.Stats)
			apiKeyRoutes.PATCH("/:id/active", apiKeyHandler.SetActive)
			apiKeyRoutes.DELETE("/:id", apiKeyHandler.Delete)
		}
	}

	return router
}
