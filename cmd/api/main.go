package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
	"rollcall/internal/netinfo"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// openBlob picks the persistence backend named by STORE_BACKEND.
func openBlob(ctx context.Context, cfg config.App) (store.Blob, error) {
	switch cfg.StoreBackend {
	case "file", "":
		return store.NewFile(cfg.DataDir)
	case "bolt":
		return store.NewBolt(cfg.BoltPath)
	case "redis":
		r := store.NewRedis(cfg.RedisAddr, cfg.RedisPrefix)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("redis not reachable: %w", err)
		}
		return r, nil
	case "postgres":
		return store.NewDB(ctx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	blob, err := openBlob(ctx, cfg)
	if err != nil {
		return err
	}

	// an unreadable attendance file needs an operator, not a silent reset
	att, err := attendance.Open(ctx, blob, attendance.Options{
		StrictRoster: cfg.StrictRoster,
		Seed:         cfg.RosterSeed,
	})
	if err != nil {
		blob.Close()
		return fmt.Errorf("load attendance state: %w", err)
	}
	defer att.Close()
	snap := att.Snapshot()
	log.Printf("store %q loaded: session %s, %d present, %d enrolled",
		cfg.StoreBackend, snap.Session, len(snap.Entries), len(snap.Roster))

	faculty := auth.Faculty{
		Passcode:   cfg.FacultyPasscode,
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		TTL:        cfg.FacultyTTL,
	}
	if !faculty.Enabled() {
		log.Println("FACULTY_PASSCODE not set, faculty routes are open")
	}

	info := netinfo.Resolve(cfg.PublicHost, cfg.HTTPPort)
	h := handler.New(att, blob, faculty, metrics.New(prometheus.DefaultRegisterer, att.Counts), info)

	r := gin.New()
	// names may contain "/", which clients send as %2F
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics", "/api/session", "/api/attendance"},
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{httpmiddleware.HeaderRequestID},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r, httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Handler())
	serveFrontend(r, cfg.FrontendDir)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		log.Printf("Faculty view: http://%s:%s/", info.NetworkIP, cfg.HTTPPort)
		log.Printf("Student view: %s", info.StudentURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// serveFrontend mounts the faculty and student pages when dir exists.
func serveFrontend(r *gin.Engine, dir string) {
	if _, err := os.Stat(dir); err != nil {
		log.Printf("frontend dir %s not found, serving API only", dir)
		return
	}
	r.StaticFile("/", filepath.Join(dir, "index.html"))
	r.StaticFile("/index.html", filepath.Join(dir, "index.html"))
	r.StaticFile(netinfo.StudentPath, filepath.Join(dir, "student.html"))
	r.StaticFile("/login.html", filepath.Join(dir, "login.html"))
	r.Static("/static", filepath.Join(dir, "static"))
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
