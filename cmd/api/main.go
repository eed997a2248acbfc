package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/attendance"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/auth"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/clock"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/config"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/credential"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/handler"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/httpmiddleware"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/queue"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/report"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/scope"
	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := store.EnsureSchema(context.Background(), db.Client); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "absensi:scans")
	}

	days, err := clock.New(clock.System{}, cfg.Timezone)
	if err != nil {
		log.Fatalf("timezone load failed: %v", err)
	}

	codec := credential.NewCodec(cfg.QRSecret)
	scopeRepo := scope.NewRepository(db.Client)
	resolver := scope.NewResolver(scopeRepo)

	attRepo := attendance.NewRepository(db.Client)
	att := attendance.NewService(codec, attRepo, resolver, days, cfg.UndoWindow)
	rep := report.NewService(report.NewRepository(db.Client), resolver, days).
		WithCounters(report.NewCounterCache(redisClient.Client))

	h := handler.New(att, rep, scopeRepo, q, days, cfg)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/token", h.IssuePrincipalToken)

	authGroup := r.Group("/v1", auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/scan", h.Scan)
	authGroup.POST("/attendance/:id/undo", h.Undo)
	authGroup.POST("/attendance/batch", h.BatchCorrect)
	authGroup.GET("/attendance/history", h.History)
	authGroup.GET("/attendance/stats", h.Stats)
	authGroup.GET("/attendance/class", h.ClassRoster)

	authGroup.GET("/reports/semester", h.SemesterReport)
	authGroup.GET("/reports/classes", h.Classes)

	authGroup.GET("/students", h.ListStudents)
	authGroup.GET("/students/:id", h.GetStudent)
	authGroup.GET("/students/:id/qr.png", h.StudentQR)

	adminGroup := authGroup.Group("", auth.RequireAdmin())
	adminGroup.POST("/students", h.CreateStudent)
	adminGroup.PUT("/students/:id", h.UpdateStudent)
	adminGroup.DELETE("/students/:id", h.DeleteStudent)
	adminGroup.POST("/students/:id/credential", h.IssueCredential)
	adminGroup.PUT("/principals/:id/classes", h.ReplaceAssignments)
	adminGroup.DELETE("/principals/:id/classes", h.DeleteAssignments)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
