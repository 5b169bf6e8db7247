package config

import (
	"log"
	"os"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env           string
	HTTPPort      string
	APIBaseURL    string
	APITimeout    time.Duration
	ProbeURL      string
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration
	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RosterBackend string
	RedisAddr     string
	RosterRefresh time.Duration
	KioskDevice   string
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	return App{
		Env:           getEnv("APP_ENV", "dev"),
		HTTPPort:      getEnv("HTTP_PORT", "8082"),
		APIBaseURL:    getEnv("API_BASE_URL", "https://api.edutec.grupoupgrade.com.pe/api/edutec"),
		APITimeout:    durationEnv("API_TIMEOUT", 10*time.Second),
		ProbeURL:      getEnv("PROBE_URL", "https://clients3.google.com/generate_204"),
		ProbeTimeout:  durationEnv("PROBE_TIMEOUT", 1500*time.Millisecond),
		ProbeInterval: durationEnv("PROBE_INTERVAL", 10*time.Second),
		JWTIssuer:     getEnv("JWT_ISSUER", "checkin-station"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:     durationEnv("ACCESS_TTL", 12*time.Hour),
		RefreshTTL:    durationEnv("REFRESH_TTL", 72*time.Hour),
		RosterBackend: getEnv("ROSTER_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RosterRefresh: durationEnv("ROSTER_REFRESH", 5*time.Minute),
		KioskDevice:   getEnv("KIOSK_DEVICE", "kiosk-1"),
	}
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
