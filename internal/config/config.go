package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Server   ServerConfig
	CORS     CORSConfig
	Worker   WorkerConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Driver   string // mysql, postgres or memory
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type RedisConfig struct {
	Addr          string // empty disables caching and event publishing
	Password      string
	DB            int
	SlotCacheTTL  time.Duration
	ChannelPrefix string
}

type JWTConfig struct {
	AccessSecret string
}

type ServerConfig struct {
	Port    string
	GinMode string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type WorkerConfig struct {
	Interval            time.Duration
	Concurrency         int
	AutoDischargeWindow time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "hemodialysis_scheduler"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", ""),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            parseInt(getEnv("REDIS_DB", "0"), 0),
			SlotCacheTTL:  parseDuration(getEnv("SLOT_CACHE_TTL", "10m"), 10*time.Minute),
			ChannelPrefix: getEnv("EVENT_CHANNEL_PREFIX", "dialysis"),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "your-access-secret-key"),
		},
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
		Worker: WorkerConfig{
			Interval:            parseDuration(getEnv("RECONCILE_INTERVAL", "5m"), 5*time.Minute),
			Concurrency:         parseInt(getEnv("RECONCILE_CONCURRENCY", "4"), 4),
			AutoDischargeWindow: parseDuration(getEnv("AUTO_DISCHARGE_WINDOW", "5h"), 5*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil || duration <= 0 {
		fmt.Printf("Warning: Invalid duration format '%s', using default %s\n", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		fmt.Printf("Warning: Invalid integer '%s', using default %d\n", s, fallback)
		return fallback
	}
	return n
}

func parseOrigins(s string) []string {
	origins := []string{}
	for _, origin := range strings.Split(s, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
