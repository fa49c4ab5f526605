package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/audit"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/lifecycle"
	"rollcall/internal/logging"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	log := logging.Must(cfg.Production())
	defer func() { _ = log.Sync() }()

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc := cfg.Location()
	mem := store.NewMemoryIn(loc)
	if cfg.SeedData {
		if err := store.Seed(mem, time.Now(), loc); err != nil {
			return err
		}
		students, teachers, sessions, records := mem.Counts()
		log.Info("seeded demo data",
			zap.Int("students", students), zap.Int("teachers", teachers),
			zap.Int("sessions", sessions), zap.Int("records", records))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		q           queue.Queue
		redisQueue  *queue.RedisQueue
		redisClient *store.Redis
	)
	if cfg.QueueBackend == "memory" {
		mq := queue.NewInMemory(256)
		q = mq
		go func() {
			if err := audit.NewConsumer(log.Named("audit"), m).Run(ctx, mq); err != nil {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	} else {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		redisQueue = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		q = redisQueue
	}
	pub := audit.NewPublisher(q, log.Named("audit"))

	svc := attendance.NewService(mem, cfg.LateGrace, loc)
	reports := attendance.NewReports(mem, loc)

	sweeper := lifecycle.NewSweeper(mem, pub, m, log.Named("lifecycle"))
	sched, err := sweeper.Start(ctx, cfg.LifecycleSchedule)
	if err != nil {
		return err
	}
	defer sched.Stop()

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		students, _, sessions, records := mem.Counts()
		resp := gin.H{"status": "ok", "students": students, "sessions": sessions, "records": records}
		status := http.StatusOK
		if redisClient != nil {
			latency, err := redisClient.Ping(c.Request.Context())
			resp["redis"] = err == nil
			if err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
			} else {
				resp["redisLatencyMs"] = latency.Milliseconds()
				if pending, err := redisQueue.Pending(c.Request.Context()); err == nil {
					resp["auditBacklog"] = pending
				}
			}
		}
		c.JSON(status, resp)
	})

	handler.New(handler.Options{
		Service:       svc,
		Reports:       reports,
		Directory:     mem,
		Publisher:     pub,
		Metrics:       m,
		Logger:        log.Named("http"),
		Limiter:       httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		JWTIssuer:     cfg.JWTIssuer,
		JWTSigningKey: cfg.JWTSigningKey,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		QRSize:        cfg.QRSize,
	}).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
