// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/domain/payment"
	"pharmstock/internal/domain/transport"
	"pharmstock/internal/infrastructure/http/v1/handlers"
	"pharmstock/internal/infrastructure/http/v1/middleware"
	"pharmstock/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	// Storage is pinged by the readiness probe; nil for the memory driver.
	Storage handlers.Pinger

	Version string

	Bills      *billing.Service
	Ledger     *ledger.Service
	Transports *transport.Service
	Payments   *payment.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Storage, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()

	api := router.Group("/api/v1")
	api.Use(middleware.UserContext())
	{
		billHandler := handlers.NewBillHandler(base, cfg.Bills)
		api.POST("/purchase-bills", billHandler.CreatePurchase)
		api.POST("/sale-bills", billHandler.CreateSale)
		bills := api.Group("/bills")
		{
			bills.GET("", billHandler.List)
			bills.GET("/:number", billHandler.Get)
			bills.PUT("/:number", billHandler.Edit)
			bills.DELETE("/:number", billHandler.Delete)
		}
		returns := api.Group("/returns")
		{
			returns.POST("", billHandler.CreateReturn)
			returns.GET("", billHandler.ListReturns)
		}

		transportHandler := handlers.NewTransportHandler(base, cfg.Transports)
		transports := api.Group("/transports")
		{
			transports.POST("", transportHandler.Send)
			transports.GET("", transportHandler.List)
			transports.GET("/:id", transportHandler.Get)
			transports.POST("/:id/receive", transportHandler.Receive)
		}

		paymentHandler := handlers.NewPaymentHandler(base, cfg.Payments)
		payments := api.Group("/payments")
		{
			payments.POST("", paymentHandler.Create)
			payments.GET("", paymentHandler.List)
			payments.GET("/:number", paymentHandler.Get)
			payments.PUT("/:number", paymentHandler.Update)
		}
		api.GET("/counterparties/:id/outstanding", paymentHandler.Outstanding)

		stockHandler := handlers.NewStockHandler(base, cfg.Ledger)
		stock := api.Group("/stock")
		{
			stock.GET("/:barcode/availability", stockHandler.Availability)
			stock.GET("/:barcode/batches", stockHandler.Batches)
		}
	}

	return router
}
