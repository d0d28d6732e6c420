package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store and pub/sub adapter names accepted by STORE and PUBSUB.
const (
	AdapterMemory  = "memory"
	AdapterSurreal = "surreal"
	AdapterRedis   = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Port    int    `envconfig:"PORT" default:"3000"`
	BaseURL string `envconfig:"APP_BASE_URL" default:"http://localhost:3000"`

	Store  string `envconfig:"STORE" default:"memory"`
	DBUrl  string `envconfig:"SURREAL_URL"`
	DBNs   string `envconfig:"SURREAL_NS"`
	DBDb   string `envconfig:"SURREAL_DB"`
	DBUser string `envconfig:"SURREAL_USER"`
	DBPass string `envconfig:"SURREAL_PASS"`

	PubSub        string `envconfig:"PUBSUB" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisUsername string `envconfig:"REDIS_USERNAME"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SessionSecret string `envconfig:"SESSION_SECRET" default:"dev-secret-change-me"`

	UploadDir     string `envconfig:"UPLOAD_DIR" default:"uploads"`
	UploadBaseURL string `envconfig:"UPLOAD_BASE_URL" default:"/uploads"`

	TypingTimeout   time.Duration `envconfig:"TYPING_TIMEOUT" default:"3s"`
	MessagePageSize int           `envconfig:"MESSAGE_PAGE_SIZE" default:"20"`
	DedupCacheSize  int           `envconfig:"DEDUP_CACHE_SIZE" default:"4096"`
	SendBuffer      int           `envconfig:"SEND_BUFFER" default:"256"`

	// ChatCreateRateLimit caps chat creation per caller per minute; 0 disables it.
	ChatCreateRateLimit int `envconfig:"CHAT_CREATE_RATE_LIMIT" default:"10"`

	TracingEnabled     bool    `envconfig:"PUBSUB_TRACING_ENABLED" default:"false"`
	TracingServiceName string  `envconfig:"PUBSUB_TRACING_SERVICE_NAME" default:"huddle"`
	TracingZipkinURL   string  `envconfig:"PUBSUB_TRACING_ZIPKIN_URL" default:"http://localhost:9411/api/v2/spans"`
	TracingSampleRatio float64 `envconfig:"PUBSUB_TRACING_SAMPLE_RATIO" default:"1"`
}

// New loads configuration from an optional .env file and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected adapters have what they need.
func (c *Config) Validate() error {
	switch c.Store {
	case AdapterMemory:
	case AdapterSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			return fmt.Errorf("STORE=surreal requires SURREAL_URL, SURREAL_NS and SURREAL_DB")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}

	switch c.PubSub {
	case AdapterMemory:
	case AdapterRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("PUBSUB=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown PUBSUB %q", c.PubSub)
	}

	if c.MessagePageSize <= 0 {
		return fmt.Errorf("MESSAGE_PAGE_SIZE must be positive")
	}
	if c.TypingTimeout <= 0 {
		return fmt.Errorf("TYPING_TIMEOUT must be positive")
	}
	if c.DedupCacheSize <= 0 {
		return fmt.Errorf("DEDUP_CACHE_SIZE must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
