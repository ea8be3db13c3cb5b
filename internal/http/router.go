// Package httpapi wires the HTTP transport (Gin) to the application
// services, middleware and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, compression, metrics, authentication, idempotency, rate
// limiting, CORS and security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/room-access-backend/internal/config"
	_ "github.com/tbourn/room-access-backend/internal/docs"
	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/http/handlers"
	"github.com/tbourn/room-access-backend/internal/http/middleware"
	"github.com/tbourn/room-access-backend/internal/services"
)

const maxBodyBytes = 1 << 20

var corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}

// RegisterRoutes attaches all middleware and HTTP endpoints to r and mounts
// the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip
//  7. Metrics
//  8. Authenticate: resolve the bearer token, never rejects
//  9. Idempotency validator (needs the identity; before the limiter so replays bypass it)
//  10. Rate limiter (per user/IP)
//  11. CORS and security headers
func RegisterRoutes(r *gin.Engine, st *services.Stack, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())
	r.Use(middleware.Authenticate(st.Auth))
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, actorID uint, scope, key string) (bool, error) {
			rec, err := st.Idempotency.Lookup(ctx, actorID, scope, key)
			return rec != nil, err
		},
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(st))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Services{
		Auth:        st.Auth,
		Registry:    st.Registry,
		Permissions: st.Permissions,
		Users:       st.Users,
		Sessions:    st.Sessions,
		Admission:   st.Admission,
		Approval:    st.Approval,
		History:     st.History,
		Notes:       st.Notes,
		Idempotency: st.Idempotency,
	})
	mountAPI(groupWithPrefix(r, cfg.APIBasePath), h)
}

// mountAPI registers the versioned endpoints with their role gates.
func mountAPI(api *gin.RouterGroup, h *handlers.Handlers) {
	api.POST("/auth/login", h.Login)

	user := api.Group("", middleware.RequireRole(domain.RoleUser))
	user.POST("/auth/logout", h.Logout)

	desk := api.Group("", middleware.RequireRole(domain.RoleConcierge))
	{
		desk.GET("/rooms", h.ListRooms)
		desk.GET("/rooms/:number", h.GetRoom)

		desk.GET("/devices", h.ListDevices)
		desk.GET("/devices/:code", h.GetDevice)
		desk.GET("/devices/:code/history", h.DeviceHistory)
		desk.GET("/devices/:code/notes", h.ListDeviceNotes)
		desk.POST("/devices/:code/notes", h.AddDeviceNote)

		desk.POST("/guests", h.CreateGuest)
		desk.GET("/users/:id", h.GetUser)
		desk.GET("/users/:id/devices", h.HeldDevices)
		desk.GET("/users/:id/notes", h.ListUserNotes)
		desk.POST("/users/:id/notes", h.AddUserNote)

		desk.GET("/permissions", h.ListPermissions)

		desk.POST("/sessions", h.OpenSession)
		desk.GET("/sessions", h.ListSessions)
		desk.GET("/sessions/:id", h.GetSession)
		desk.POST("/sessions/:id/operations", h.ProposeOperation)
		desk.GET("/sessions/:id/operations", h.ListPending)
		desk.POST("/sessions/:id/approve", h.ApproveSession)
		desk.POST("/sessions/:id/reject", h.RejectSession)
		desk.GET("/sessions/:id/history", h.SessionHistory)
	}

	admin := api.Group("", middleware.RequireRole(domain.RoleAdmin))
	{
		admin.POST("/rooms", h.CreateRoom)
		admin.POST("/devices", h.CreateDevice)
		admin.POST("/users", h.CreateAccount)
		admin.POST("/permissions", h.GrantPermission)
		admin.DELETE("/permissions/:id", h.RevokePermission)
	}
}

// health reports liveness and whether the database answers a ping.
func health(st *services.Stack) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := st.DB.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	}
}

// corsMiddleware allows every origin when none are configured and otherwise
// echoes only allow-listed origins.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "ETag", handlers.HeaderReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps the request body size at maxBytes; downstream reads past
// the cap fail and binding answers 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
