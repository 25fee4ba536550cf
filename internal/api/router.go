package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mesikahq/rxledger/internal/auth"
	"github.com/mesikahq/rxledger/internal/middleware"
)

type Router struct {
	handler     *Handler
	authService auth.Service
}

func NewRouter(handler *Handler, authService auth.Service) *Router {
	return &Router{handler: handler, authService: authService}
}

func (r *Router) SetupRouter(logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.RateLimit(rate.Every(time.Second), 30),
		middleware.CORS(),
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "we're alive"})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/token", r.handler.IssueToken)

		prescriptions := api.Group("/prescriptions")
		{
			prescriptions.GET("/:id", r.handler.GetPrescription)
			prescriptions.POST("/:id/validate", r.handler.ValidatePrescription)

			protected := prescriptions.Group("")
			protected.Use(middleware.Auth(r.authService))
			{
				protected.POST("", r.handler.CreatePrescription)
				protected.PUT("/:id", r.handler.UpdatePrescription)
				protected.DELETE("/:id", r.handler.DeletePrescription)
			}
		}

		api.POST("/qr-code", r.handler.DecodeQRCode)
		api.POST("/doctors", r.handler.LookupDoctor)
		api.POST("/pharmacists", r.handler.LookupPharmacist)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}
