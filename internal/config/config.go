package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress string

	// Local store used when no database is configured
	LocalStorePath string

	// JWT configuration
	JWTSecret string

	// internal secret used for server-to-server routes
	InternalSecret string

	// Sync engine tunables
	WSRoot            string
	MaxReconnects     int
	ReconnectBackoff  time.Duration
	ThrottleInterval  time.Duration
	DebounceInterval  time.Duration
	ReconcileInterval time.Duration

	FrontendAddress string
}

// Global application configuration
var AppConfig Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	AppConfig = Config{
		ServerPort:        getEnv("PORT", "8080"),
		Environment:       getEnv("ENV", "development"),
		DBHost:            getEnv("DB_HOST", ""),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "artflow"),
		RedisAddress:      getEnv("REDIS_ADDRESS", "localhost:6379"),
		LocalStorePath:    getEnv("LOCAL_STORE_PATH", "artflow-sync.db"),
		JWTSecret:         getEnv("JWT_SECRET", "artflow-jwt-secret"),
		InternalSecret:    getEnv("INTERNAL_SECRET", "artflow-internal-secret"),
		WSRoot:            getEnv("WS_ROOT", "ws://localhost:8080"),
		MaxReconnects:     getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
		ReconnectBackoff:  getEnvDuration("RECONNECT_BACKOFF", 3*time.Second),
		ThrottleInterval:  getEnvDuration("THROTTLE_INTERVAL", 16*time.Millisecond),
		DebounceInterval:  getEnvDuration("DEBOUNCE_INTERVAL", 500*time.Millisecond),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 10*time.Second),
		FrontendAddress:   getEnv("FRONTEND_ADDRESS", "http://localhost:5173"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s: %v", key, err)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s: %v", key, err)
		return defaultValue
	}
	return d
}
