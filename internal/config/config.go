// Package config loads all runtime configuration from the
// environment. No YAML; every knob has a sensible default so the
// server boots with nothing but a Mongo instance.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type HTTPConfig struct {
	Port           string
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type DatabaseConfig struct {
	MongoDB MongoConfig
}

type MongoConfig struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

type JWTConfig struct {
	Secret     string
	ExpiryHour int
}

type ChatConfig struct {
	MaxMessageLength int
	HistoryPageSize  int
	MaxForwardDepth  int

	// Retention sweep for chats with message_retention_days set
	RetentionSweepEnabled  bool
	RetentionSweepInterval time.Duration
}

func Load() *Config {
	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "teamchat"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("DEBUG", false),
		},
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Port:           getEnv("HTTP_PORT", "8080"),
				Host:           getEnv("HTTP_HOST", "0.0.0.0"),
				ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", "30s"),
				WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", "30s"),
				IdleTimeout:    getEnvAsDuration("HTTP_IDLE_TIMEOUT", "60s"),
				MaxHeaderBytes: getEnvAsInt("HTTP_MAX_HEADER_BYTES", 1048576),
			},
			WebSocket: WebSocketConfig{
				ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER", 1024),
				WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER", 1024),
				PingPeriod:      getEnvAsDuration("WS_PING_PERIOD", "54s"),
				PongWait:        getEnvAsDuration("WS_PONG_WAIT", "60s"),
				WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", "10s"),
				MaxMessageSize:  getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 65536),
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ORIGINS", "http://localhost:3000"),
				AllowCredentials: getEnvAsBool("CORS_CREDENTIALS", true),
			},
		},
		Database: DatabaseConfig{
			MongoDB: MongoConfig{
				URI:                    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
				Database:               getEnv("MONGODB_DATABASE", "teamchat"),
				MaxPoolSize:            getEnvAsUint64("MONGODB_MAX_POOL_SIZE", 100),
				MinPoolSize:            getEnvAsUint64("MONGODB_MIN_POOL_SIZE", 5),
				MaxConnIdleTime:        getEnvAsDuration("MONGODB_MAX_IDLE_TIME", "30m"),
				ConnectTimeout:         getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", "10s"),
				ServerSelectionTimeout: getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", "5s"),
			},
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "your-secret-key"),
			ExpiryHour: getEnvAsInt("JWT_EXPIRY_HOUR", 24),
		},
		Chat: ChatConfig{
			MaxMessageLength:       getEnvAsInt("MAX_MESSAGE_LENGTH", 4000),
			HistoryPageSize:        getEnvAsInt("HISTORY_PAGE_SIZE", 50),
			MaxForwardDepth:        getEnvAsInt("MAX_FORWARD_DEPTH", 5),
			RetentionSweepEnabled:  getEnvAsBool("RETENTION_SWEEP_ENABLED", true),
			RetentionSweepInterval: getEnvAsDuration("RETENTION_SWEEP_INTERVAL", "1h"),
		},
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}
