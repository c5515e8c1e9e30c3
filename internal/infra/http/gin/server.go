package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rentcar/internal/infra/config"
	"rentcar/internal/infra/obs"
)

type BookingHTTP interface {
	Open(c *gin.Context)
	Get(c *gin.Context)
	Transition(c *gin.Context)
	RequestPayment(c *gin.Context)
	RequestExtension(c *gin.Context)
	PayExtension(c *gin.Context)
	CheckRecord(c *gin.Context)
	QuoteCancellation(c *gin.Context)
}

type EvidenceHTTP interface {
	Upload(c *gin.Context)
}

type WebhookHTTP interface {
	Settle(c *gin.Context)
}

type Handlers struct {
	Booking        BookingHTTP
	Evidence       EvidenceHTTP
	Webhook        WebhookHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	if docs, err := loadDocs(); err != nil {
		if obsMW.Logger != nil {
			obsMW.Logger.Error("api docs unavailable", "err", err)
		}
	} else {
		docs.register(router)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Webhook != nil {
		api.POST("/payments/webhook", h.Webhook.Settle)
	}
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.Booking != nil {
		api.POST("/bookings", h.Booking.Open)
		api.GET("/bookings/:id", h.Booking.Get)
		api.POST("/bookings/:id/events/:event", h.Booking.Transition)
		api.POST("/bookings/:id/payments", h.Booking.RequestPayment)
		api.POST("/bookings/:id/extension", h.Booking.RequestExtension)
		api.POST("/bookings/:id/extension/pay", h.Booking.PayExtension)
		api.GET("/bookings/:id/check-records/:direction", h.Booking.CheckRecord)
		api.GET("/fees/quote/cancellation", h.Booking.QuoteCancellation)
	}
	if h.Evidence != nil {
		api.POST("/evidence", h.Evidence.Upload)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
