package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailarchive/api/handlers"
	"github.com/customeros/mailarchive/api/middleware"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/services"
	"github.com/customeros/mailarchive/services/events"
)

// RegisterRoutes sets up all API endpoints. scheduler may be nil.
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, scheduler handlers.Scheduler, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	apiHandlers := handlers.InitHandlers(s, repos)

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(scheduler, s.Jobs, s.Credentials))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(events.AppSource))
	api.Use(middleware.TracingMiddleware())
	{
		jobs := api.Group("/jobs")
		{
			jobs.POST("/refresh-all", apiHandlers.Jobs.StartRefreshAll())
			jobs.GET("/refresh-all", apiHandlers.Jobs.RefreshAllStatus())
		}

		documents := api.Group("/documents")
		{
			documents.GET("", apiHandlers.Documents.Search())
			documents.GET("/:id", apiHandlers.Documents.Get())
			documents.GET("/:id/download", apiHandlers.Documents.Download())
			documents.GET("/:id/preview", apiHandlers.Documents.Preview())
			documents.POST("/:id/verify", apiHandlers.Documents.Verify())
		}

		emails := api.Group("/emails")
		{
			emails.GET("", apiHandlers.Emails.Search())
			emails.POST("/:id/reprocess", apiHandlers.Emails.Reprocess())
			emails.GET("/:id/logs", apiHandlers.Emails.Logs())
		}

		accounts := api.Group("/accounts")
		{
			accounts.GET("", apiHandlers.Accounts.List())
			accounts.POST("/:id/fetch", apiHandlers.Accounts.Fetch())
			accounts.PUT("/:id/credentials", apiHandlers.Accounts.SetSecret())
		}

		credentials := api.Group("/credentials")
		{
			credentials.POST("/unlock", apiHandlers.Credentials.Unlock())
			credentials.POST("/lock", apiHandlers.Credentials.Lock())
		}
	}
}
