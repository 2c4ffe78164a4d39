package controllers

import (
	"net/http"

	"bookingledger/middleware"
	"bookingledger/services"
	"bookingledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// Services - набор сервисов, которые обслуживает HTTP слой
type Services struct {
	Bookings       *services.BookingService
	Payments       *services.PaymentService
	Reconciliation *services.ReconciliationService
	Query          *services.QueryService
	Overdue        *services.OverdueService
}

// RegisterRoutes регистрирует защищенные маршруты API на роутере
func RegisterRoutes(router *mux.Router, svc Services, jwtKey []byte) {
	bookings := NewBookingController(svc.Bookings)
	payments := NewPaymentController(svc.Payments, svc.Reconciliation)
	reports := NewReportController(svc.Query)

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.LoggingMiddleware)
	protected.Use(middleware.AuthMiddleware(jwtKey))

	// Бронирования
	protected.HandleFunc("/bookings/rental", bookings.CreateRental).Methods("POST")
	protected.HandleFunc("/bookings/purchase", bookings.CreatePurchase).Methods("POST")
	protected.HandleFunc("/bookings/{id}", bookings.GetBooking).Methods("GET")
	protected.HandleFunc("/bookings/{id}", bookings.Delete).Methods("DELETE")
	protected.HandleFunc("/bookings/{id}/confirm", bookings.Confirm).Methods("POST")
	protected.HandleFunc("/bookings/{id}/cancel", bookings.Cancel).Methods("POST")
	protected.HandleFunc("/bookings/{id}/expire", bookings.Expire).Methods("POST")
	protected.HandleFunc("/bookings/{id}/active", bookings.SetActive).Methods("PUT")
	protected.HandleFunc("/bookings/{id}/documents", bookings.AttachDocuments).Methods("POST")
	protected.HandleFunc("/bookings/{id}/obligations", bookings.Obligations).Methods("GET")

	// Платежи
	protected.HandleFunc("/bookings/{id}/obligations/{key}/payments", payments.RecordPayment).Methods("POST")
	protected.HandleFunc("/bookings/{id}/payments", payments.RecordUnscheduled).Methods("POST")
	protected.HandleFunc("/bookings/{id}/payments", payments.ListBookingPayments).Methods("GET")
	protected.HandleFunc("/payments/{ref}", payments.GetPayment).Methods("GET")
	protected.HandleFunc("/payments/{ref}/approve", payments.Approve).Methods("POST")
	protected.HandleFunc("/payments/{ref}/reconcile", payments.Reconcile).Methods("POST")
	protected.HandleFunc("/payments/{ref}/refund", payments.Refund).Methods("POST")
	protected.HandleFunc("/reconciliation/statements", payments.ImportStatement).Methods("POST")

	// Отчеты
	protected.HandleFunc("/reports/obligations/pending", reports.PendingObligations).Methods("GET")
	protected.HandleFunc("/reports/obligations/overdue", reports.OverdueObligations).Methods("GET")
	protected.HandleFunc("/reports/payments/summary", reports.PaymentSummary).Methods("GET")
}

// NewOpsEngine создает служебный gin engine: health, метрики и ручной запуск задач
func NewOpsEngine(db *gorm.DB, overdue *services.OverdueService, limiter *utils.RateLimiter, jwtKey []byte) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.Recovery(), middleware.Logger(), middleware.RateLimit(limiter))

	ops := engine.Group("/ops")
	ops.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	private := ops.Group("", middleware.Auth(jwtKey))
	private.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
	})
	private.POST("/jobs/mark-overdue", func(c *gin.Context) {
		asOf, err := parseAsOf(c.Request)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		report, err := overdue.MarkOverdue(c.Request.Context(), asOf)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, report)
	})
	private.POST("/jobs/expire-rentals", func(c *gin.Context) {
		asOf, err := parseAsOf(c.Request)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		expired, err := overdue.ExpireRentals(c.Request.Context(), asOf)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"expired": expired})
	})

	return engine
}
