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

	"checkin/internal/auth"
	"checkin/internal/config"
	"checkin/internal/connectivity"
	"checkin/internal/edutec"
	"checkin/internal/httpmiddleware"
	"checkin/internal/metrics"
	"checkin/internal/queue"
	"checkin/internal/registrar"
	"checkin/internal/roster"
	"checkin/internal/scan"
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
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := edutec.New(cfg.APIBaseURL, cfg.APITimeout)
	monitor := connectivity.NewMonitor(cfg.ProbeURL, cfg.ProbeTimeout, cfg.ProbeInterval)
	pending := queue.NewPending()
	reg := registrar.New(api, monitor, pending)

	var store roster.Store
	var redisStore *roster.RedisStore
	if cfg.RosterBackend == "redis" {
		redisStore = roster.NewRedisStore(roster.NewRedisClient(cfg.RedisAddr), "")
		store = redisStore
		log.Println("roster cache backed by redis:", cfg.RedisAddr)
	} else {
		store = roster.NewMemory()
	}

	go monitor.Run(ctx)
	go reg.Watch(ctx, monitor.Subscribe())
	go watchSignal(ctx, monitor.Subscribe())
	go refreshRoster(ctx, cfg, api, store, monitor)

	scanGate := &scan.Gate{}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"online":  monitor.Online(),
			"pending": pending.Len(),
		}
		if redisStore != nil {
			body["redis"] = redisStore.Healthy(c.Request.Context())
		}
		c.JSON(http.StatusOK, body)
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.DeviceID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
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

	authGroup := r.Group("/v1", auth.ScannerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Platform link events from the device shell. A lost link flips the
	// signal immediately; an available link is confirmed by a probe.
	authGroup.POST("/link", func(c *gin.Context) {
		var req struct {
			Up *bool `json:"up" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		monitor.SetLinkState(ctx, *req.Up)
		c.JSON(http.StatusAccepted, gin.H{"online": monitor.Online()})
	})

	// Decoded QR payloads from scanner devices. The gate drops repeat
	// frames of a code still in view until the first attempt resolves.
	authGroup.POST("/scans", httpmiddleware.InflightGate(scanGate), func(c *gin.Context) {
		var req struct {
			Payload string `json:"payload" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := scan.Decode(req.Payload)
		if err != nil {
			metrics.ScansRejectedTotal.Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		out := reg.Register(c.Request.Context(), id, registrar.MethodQR)
		c.JSON(http.StatusOK, gin.H{"kind": out.Kind.String(), "message": out.Message, "dni": id.DNI})
	})

	authGroup.POST("/checkins", func(c *gin.Context) {
		var req struct {
			DNI    string `json:"dni" binding:"required"`
			Method string `json:"method"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !scan.ValidDNI(req.DNI) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dni must be 8 digits"})
			return
		}

		method := registrar.MethodManual
		if req.Method == string(registrar.MethodSearchFix) {
			method = registrar.MethodSearchFix
		}

		name := scan.GuestName
		if entry, err := store.FindByDNI(c.Request.Context(), req.DNI); err == nil && entry != nil {
			name = entry.FullName
		}

		out := reg.Register(c.Request.Context(), scan.Identity{DNI: req.DNI, FullName: name}, method)
		c.JSON(http.StatusOK, gin.H{"kind": out.Kind.String(), "message": out.Message, "fullName": name})
	})

	authGroup.GET("/roster", func(c *gin.Context) {
		entries, err := store.Search(c.Request.Context(), c.Query("dni"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	authGroup.PUT("/roster/:id/dni", func(c *gin.Context) {
		var req struct {
			DNI string `json:"dni" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !scan.ValidDNI(req.DNI) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dni must be 8 digits"})
			return
		}

		id := c.Param("id")
		update := edutec.RegistrationUpdate{DNI: &req.DNI}
		if err := api.EditRegistration(c.Request.Context(), id, update); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if err := store.UpdateDNI(c.Request.Context(), id, req.DNI); err != nil {
			log.Printf("roster cache update failed for %s: %v", id, err)
		}
		c.JSON(http.StatusOK, gin.H{"message": "dni corrected"})
	})

	authGroup.GET("/history", func(c *gin.Context) {
		entries, err := api.History(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting station on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down station...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	if n := pending.Len(); n > 0 {
		log.Printf("WARNING: %d unsent check-in(s) lost on shutdown (pending buffer is volatile)", n)
	}
	log.Println("Station exited")
	return nil
}

// watchSignal mirrors the connectivity signal into logs and metrics.
func watchSignal(ctx context.Context, transitions <-chan bool) {
	for {
		select {
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				metrics.Online.Set(1)
				log.Println("connectivity: online")
			} else {
				metrics.Online.Set(0)
				log.Println("connectivity: offline")
			}
		case <-ctx.Done():
			return
		}
	}
}

// refreshRoster loads the roster on startup and re-pulls it periodically,
// skipping cycles while offline.
func refreshRoster(ctx context.Context, cfg config.App, api *edutec.Client, store roster.Store, monitor *connectivity.Monitor) {
	load := func() {
		if !monitor.Online() {
			return
		}
		n, err := roster.Refresh(ctx, api, store)
		if err != nil {
			log.Printf("roster refresh failed: %v", err)
			return
		}
		log.Printf("roster loaded: %d entries", n)
	}

	load()
	ticker := time.NewTicker(cfg.RosterRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			load()
		case <-ctx.Done():
			return
		}
	}
}

// CORS for the kiosk web shell.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
