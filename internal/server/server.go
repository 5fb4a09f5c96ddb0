package server

import (
	"context"
	"net/http"

	"larpledger/internal/accounting"
	"larpledger/internal/auth"
	"larpledger/internal/config"
	"larpledger/internal/gateway"
	"larpledger/internal/invoice"
	"larpledger/internal/member"
	"larpledger/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
	notify *notify.Service
}

type Handlers struct {
	Accounting *accounting.Handler
	Invoices   *invoice.Handler
	Gateways   *gateway.Handler
	Members    *member.Handler
	Registry   *gateway.Registry
}

func New(db *sqlx.DB, cfg *config.Config, notifyService *notify.Service, h Handlers) *Server {
	router := gin.Default()
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())

	// Gateways call back without credentials; each adapter does its own
	// verification. Keep these routes outside the auth groups.
	webhooks := router.Group("/webhooks")
	{
		for _, method := range h.Registry.Methods() {
			webhooks.POST("/"+string(method), h.Gateways.Webhook(method))
		}
		// Redsys also redirects the payer's browser back with the same
		// signed parameter set; ParseForm covers the query string.
		webhooks.GET("/"+string(invoice.MethodRedsys), h.Gateways.Webhook(invoice.MethodRedsys))
	}

	payments := router.Group("/payments")
	payments.Use(RateLimitMiddleware(5, 10))
	{
		payments.POST("", h.Gateways.CreatePayment)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	adminMiddleware := auth.RequireRole("admin")

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", h.Members.Register)
		authRoutes.POST("/login", h.Members.Login)
		authRoutes.POST("/refresh", h.Members.Refresh)
		authRoutes.GET("/me", authMiddleware, h.Members.Me)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/invoices/:cod/confirm", h.Invoices.Confirm)
		admin.POST("/registrations/:regID/recompute", h.Accounting.Recompute)
		admin.POST("/registrations/:regID/cancel", h.Accounting.Cancel)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	router.GET("/queue-status", QueueStatus(notifyService))

	return &Server{
		router: router,
		db:     db,
		config: cfg,
		notify: notifyService,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{Addr: ":" + port, Handler: s.router}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
