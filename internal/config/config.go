package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env               string
	HTTPPort          string
	WorkerMetricsPort string
	Timezone          string
	LateGrace         time.Duration
	JWTIssuer         string
	JWTSigningKey     string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	QueueBackend      string
	QueueKey          string
	RedisAddr         string
	RateLimitPerMin   int
	SeedData          bool
	LifecycleSchedule string
	CORSOrigins       []string
	QRSize            int
}

// Load reads an optional .env file and returns config populated from environment
// variables with sensible defaults.
func Load() App {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}
	return App{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPPort:          getEnv("HTTP_PORT", "8081"),
		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
		Timezone:          getEnv("TIMEZONE", "Local"),
		LateGrace:         durationEnv("LATE_GRACE", 15*time.Minute),
		JWTIssuer:         getEnv("JWT_ISSUER", "rollcall"),
		JWTSigningKey:     getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:         durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:        durationEnv("REFRESH_TTL", 24*time.Hour),
		QueueBackend:      getEnv("QUEUE_BACKEND", "memory"),
		QueueKey:          getEnv("QUEUE_KEY", "rollcall:events"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RateLimitPerMin:   intEnv("RATE_LIMIT_PER_MIN", 120),
		SeedData:          boolEnv("SEED_DATA", true),
		LifecycleSchedule: getEnv("LIFECYCLE_SCHEDULE", "@every 30s"),
		CORSOrigins:       listEnv("CORS_ORIGINS", []string{"*"}),
		QRSize:            intEnv("QR_SIZE", 300),
	}
}

// Production reports whether the app runs with production settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Location resolves Timezone. An unknown zone falls back to the process zone.
func (a App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Printf("invalid TIMEZONE %q: %v, using Local", a.Timezone, err)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func listEnv(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
