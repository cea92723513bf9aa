// Package httpapi mounts the HTTP surface of the bot on Gin: the Telegram
// webhook (webhook transport only), the bearer-protected ops API, /health and
// /metrics. Cross-cutting middleware is installed here in a fixed order.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/hr-intake-bot/internal/config"
	"github.com/tbourn/hr-intake-bot/internal/http/handlers"
	"github.com/tbourn/hr-intake-bot/internal/http/middleware"
	"github.com/tbourn/hr-intake-bot/internal/repo"
)

// maxBodyBytes caps request bodies. Telegram updates are a few KiB.
const maxBodyBytes = 1 << 20

// Deps are the collaborators behind the routes.
type Deps struct {
	// Dispatcher handles webhook deliveries; nil leaves the webhook unmounted.
	Dispatcher handlers.UpdateDispatcher
	Reports    handlers.Reports
	// DB holds the processed-update log; nil drops the counts from /stats.
	DB *gorm.DB
}

// updateLogShim adapts repo.UpdateCounts to handlers.UpdateLog.
type updateLogShim struct {
	db  *gorm.DB
	now func() time.Time
}

func (s updateLogShim) Counts(ctx context.Context) ([]repo.KindCount, error) {
	return repo.UpdateCounts(ctx, s.db, s.now())
}

// RegisterRoutes installs middleware and endpoints on r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger
//  4. Recovery
//  5. body size limit
//  6. Metrics
//  7. CORS and security headers
//
// The ops group additionally runs bearer auth, a per-IP rate limit, no-store
// caching and gzip.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Metrics(cfg.Telegram.WebhookPath, cfg.APIBasePath))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
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

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "transport": cfg.Telegram.Transport})
	})

	var updates handlers.UpdateLog
	if deps.DB != nil {
		updates = updateLogShim{db: deps.DB, now: time.Now}
	}
	h := handlers.New(deps.Dispatcher, deps.Reports, updates)

	if deps.Dispatcher != nil {
		r.POST(cfg.Telegram.WebhookPath, middleware.WebhookSecret(cfg.Telegram.WebhookSecret), h.Webhook)
	}

	if cfg.OpsAPIToken == "" || deps.Reports == nil {
		return
	}
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	ops := groupWithPrefix(r, cfg.APIBasePath)
	ops.Use(
		middleware.BearerToken(cfg.OpsAPIToken),
		rl.Handler(),
		middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}),
		gzip.Gzip(gzip.DefaultCompression),
	)
	{
		ops.GET("/stats", h.Stats)
		ops.GET("/cards/:id", h.Card)
		ops.GET("/history", h.History)
		ops.GET("/export.csv", h.Export)
	}
}

// corsMiddleware allows every origin when none are configured, otherwise only
// the listed ones. The ops API is read-only, so only GET and OPTIONS are
// allowed cross-origin.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Accept", "Authorization"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					c.Writer.Header().Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
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
