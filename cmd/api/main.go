package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/hub"
	"rollcall/internal/ledger"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/token"
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
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:events")
	} else {
		q = queue.NewInMemory(256)
	}

	registry := session.NewRegistry(session.NewRepo(db.Client))
	tokens := token.NewManager(token.NewRepo(db.Client), registry, cfg.TokenTTL)
	led := ledger.New(ledger.NewRepo(db.Client), registry, ledger.NewPgRoster(db.Client))
	liveHub := hub.New()

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	go func() {
		if err := hub.RunDispatcher(dispatchCtx, q, liveHub); err != nil {
			log.Printf("dispatcher stopped: %v", err)
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// The subscriber endpoint owns the raw connection lifecycle; the hub only
	// sees the write half.
	r.GET("/v1/realtime/ws", func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
			return
		}
		if err := hub.ServeWS(liveHub, c.Writer, c.Request, sessionID); err != nil {
			log.Printf("websocket upgrade failed: %v", err)
		}
	})

	authGroup := r.Group("/v1", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleInstructor)

	authGroup.POST("/sessions", staff, func(c *gin.Context) {
		var req struct {
			Title       string    `json:"title" binding:"required,min=3,max=200"`
			Description string    `json:"description" binding:"max=1000"`
			StartTime   time.Time `json:"start_time" binding:"required"`
			EndTime     time.Time `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := registry.Create(c.Request.Context(), session.CreateSpec{
			Title:       req.Title,
			Description: req.Description,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			CreatedBy:   auth.From(c).Subject,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, s)
	})

	authGroup.GET("/sessions", func(c *gin.Context) {
		activeOnly := c.DefaultQuery("active_only", "true") != "false"
		sessions, err := registry.List(c.Request.Context(), activeOnly, intQuery(c, "skip", 0), intQuery(c, "limit", 50))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	authGroup.GET("/sessions/:id", func(c *gin.Context) {
		s, err := registry.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	})

	authGroup.PATCH("/sessions/:id/deactivate", staff, func(c *gin.Context) {
		if err := registry.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "session deactivated", "session_id": c.Param("id")})
	})

	// Returns the scannable value; rendering it as an image is the client's
	// concern.
	authGroup.GET("/sessions/:id/token", staff, func(c *gin.Context) {
		s, err := registry.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		regenerate := c.Query("regenerate") == "true"
		t, err := tokens.CurrentFor(c.Request.Context(), s, regenerate)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code_value":    t.Value,
			"expires_at":    t.ExpiresAt,
			"session_id":    s.ID,
			"session_title": s.Title,
		})
	})

	authGroup.POST("/attendance/scan", func(c *gin.Context) {
		var req struct {
			TokenValue string `json:"token_value" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := tokens.Validate(c.Request.Context(), req.TokenValue)
		if err != nil {
			metrics.ClaimsTotal.WithLabelValues("rejected").Inc()
			respondErr(c, err)
			return
		}
		rec, err := led.Claim(c.Request.Context(), s.ID, auth.From(c).Subject, time.Now().UTC())
		if err != nil {
			metrics.ClaimsTotal.WithLabelValues("rejected").Inc()
			respondErr(c, err)
			return
		}
		metrics.ClaimsTotal.WithLabelValues(string(rec.Status)).Inc()
		broadcast(c.Request.Context(), q, rec)
		c.JSON(http.StatusCreated, rec)
	})

	authGroup.GET("/attendance/subject/:id", func(c *gin.Context) {
		if !canViewSubject(c, c.Param("id")) {
			return
		}
		recs, err := led.SubjectHistory(c.Request.Context(), c.Param("id"), intQuery(c, "skip", 0), intQuery(c, "limit", 100))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	authGroup.GET("/attendance/subject/:id/stats", func(c *gin.Context) {
		if !canViewSubject(c, c.Param("id")) {
			return
		}
		stats, err := led.StatsFor(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	authGroup.GET("/attendance/session/:id", staff, func(c *gin.Context) {
		recs, err := led.SessionAttendance(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	authGroup.POST("/corrections", func(c *gin.Context) {
		var req struct {
			SessionID string `json:"session_id" binding:"required"`
			Reason    string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		created, err := led.RequestCorrection(c.Request.Context(), req.SessionID, auth.From(c).Subject, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	authGroup.GET("/corrections", func(c *gin.Context) {
		claims := auth.From(c)
		filter := ledger.RequestFilter{
			Status: ledger.RequestStatus(c.Query("status")),
			Skip:   intQuery(c, "skip", 0),
			Limit:  intQuery(c, "limit", 50),
		}
		if claims.Role == auth.RoleTrainee {
			filter.SubjectID = claims.Subject
		}
		requests, err := led.ListCorrections(c.Request.Context(), filter)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests})
	})

	authGroup.PATCH("/corrections/:id", auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		var req struct {
			Status   string `json:"status" binding:"required"`
			Response string `json:"response" binding:"max=500"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resolved, rec, err := led.Resolve(c.Request.Context(), c.Param("id"), ledger.RequestStatus(req.Status), req.Response)
		if err != nil {
			respondErr(c, err)
			return
		}
		if rec != nil {
			metrics.ClaimsTotal.WithLabelValues(string(rec.Status)).Inc()
			broadcast(c.Request.Context(), q, *rec)
		}
		c.JSON(http.StatusOK, resolved)
	})

	authGroup.GET("/realtime/session/:id/live", staff, func(c *gin.Context) {
		stats, err := led.LiveStats(c.Request.Context(), c.Param("id"), cfg.RecentScanLimit)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

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

// broadcast hands a record to the fan-out queue. Failures are logged and
// swallowed: a subscriber problem must never fail the claim behind it.
func broadcast(ctx context.Context, q queue.Queue, rec ledger.Record) {
	if err := hub.Enqueue(ctx, q, rec); err != nil {
		log.Printf("event enqueue failed for session %s: %v", rec.SessionID, err)
	}
}

// canViewSubject lets trainees read only their own data; staff read anyone's.
func canViewSubject(c *gin.Context, subjectID string) bool {
	claims := auth.From(c)
	if claims.Role == auth.RoleTrainee && claims.Subject != subjectID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cannot view another subject's attendance"})
		return false
	}
	return true
}

func respondErr(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, token.ErrNotFound),
		errors.Is(err, token.ErrSessionInactive),
		errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidRange),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, ledger.ErrAlreadyClaimed),
		errors.Is(err, ledger.ErrDuplicateRequest),
		errors.Is(err, ledger.ErrAlreadyResolved),
		errors.Is(err, ledger.ErrInvalidReason),
		errors.Is(err, ledger.ErrInvalidDecision):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
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
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
