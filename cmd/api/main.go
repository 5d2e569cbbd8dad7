package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kiosk/internal/auth"
	"kiosk/internal/config"
	"kiosk/internal/httpmiddleware"
	"kiosk/internal/ledger"
	"kiosk/internal/logger"
	"kiosk/internal/photos"
	"kiosk/internal/roster"
	"kiosk/internal/scan"
	"kiosk/internal/scanlog"
	"kiosk/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zl.Sync()

	if err := runHTTP(cfg, zl); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, zl *zap.Logger) error {
	// Roster source: per-classroom JSON documents over HTTP, or a
	// students table.
	var (
		source roster.Source
		db     *store.DB
	)
	switch cfg.RosterBackend {
	case "postgres":
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		source = roster.NewPostgresSource(db.Client)
	default:
		source = roster.NewHTTPSource(cfg.RosterBaseURL, cfg.RosterClassrooms)
	}

	index := roster.NewIndex(source, zl)
	refreshCtx, cancelRefresh := context.WithTimeout(context.Background(), 30*time.Second)
	if err := index.Refresh(refreshCtx); err != nil {
		// The kiosk can still start; every scan will miss until a
		// refresh succeeds.
		zl.Warn("initial roster load failed", zap.Error(err))
	}
	cancelRefresh()

	// Ledger and scan feed share the redis connection.
	redisClient := store.NewRedis(cfg.RedisAddr)
	var (
		ledgerStore ledger.Store
		feed        scanlog.Log
	)
	if cfg.LedgerBackend == "memory" {
		ledgerStore = ledger.NewMemoryStore()
		feed = scanlog.NewMemoryLog(cfg.ScanLogMax)
	} else {
		ledgerStore = ledger.NewRedisStore(redisClient.Client)
		feed = scanlog.NewRedisLog(redisClient.Client, "", int64(cfg.ScanLogMax))
	}

	pipeline := scan.NewPipeline(index, ledgerStore, feed, zl)

	var photoStore *photos.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		photoStore = photos.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		zl.Info("photo storage configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		zl.Info("photo storage not configured")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(zl, "/healthz", "/metrics"))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := cfg.LedgerBackend == "memory" || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":   "ok",
			"redis":    redisHealthy,
			"students": index.Size(),
		})
	})

	r.POST("/v1/stations/register", func(c *gin.Context) {
		var req struct {
			StationID string `json:"station_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.StationID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.StationAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/scans", func(c *gin.Context) {
		var req struct {
			Payload string `json:"payload" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := pipeline.Process(c.Request.Context(), req.Payload)
		switch {
		case errors.Is(err, scan.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid QR code format, use a valid student badge"})
		case errors.Is(err, scan.ErrStudentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found in any classroom"})
		case errors.Is(err, scan.ErrScanInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "another scan is being processed"})
		case err != nil:
			zl.Error("scan processing failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "scan processing failed, please re-scan"})
		default:
			c.JSON(http.StatusOK, res)
		}
	})

	authGroup.GET("/logs", func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		lines, err := feed.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": lines})
	})

	authGroup.GET("/classrooms/:key/ledger", func(c *gin.Context) {
		students, err := ledgerStore.Get(c.Request.Context(), c.Param("key"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"classroom": c.Param("key"), "students": students})
	})

	// Irreversible: wipes every record and the whole day-by-day history
	// for one classroom. The confirm field is the API-level stand-in
	// for the blocking confirm dialog.
	authGroup.DELETE("/classrooms/:key/ledger", func(c *gin.Context) {
		var req struct {
			Confirm bool `json:"confirm"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reset requires confirm=true"})
			return
		}

		key := c.Param("key")
		existing, err := ledgerStore.Get(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unavailable"})
			return
		}
		if len(existing) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no attendance recorded for this classroom"})
			return
		}

		if err := pipeline.Reset(c.Request.Context(), key); err != nil {
			zl.Error("reset failed", zap.String("classroom", key), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "reset failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"classroom": key, "reset": true})
	})

	authGroup.POST("/roster/refresh", func(c *gin.Context) {
		if err := index.Refresh(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": index.Size()})
	})

	// Uploads a student photo and returns the URL to put in the roster
	// record's photo field.
	authGroup.POST("/students/:lrn/photo", func(c *gin.Context) {
		if photoStore == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage not configured"})
			return
		}
		lrn := c.Param("lrn")

		var result *photos.UploadResult
		var err error
		switch {
		case strings.Contains(c.ContentType(), "multipart/form-data"):
			file, _, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = photoStore.UploadBytes(data, lrn)
		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = photoStore.UploadBase64(body.Data, lrn)
		}

		if err != nil {
			zl.Error("photo upload failed", zap.String("lrn", lrn), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "public_id": result.PublicID})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced shutdown", zap.Error(err))
	}

	zl.Info("server exited")
	return nil
}

// CORS middleware for browser requests.
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

// Security headers middleware.
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
