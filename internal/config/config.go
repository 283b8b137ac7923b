package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the daemon configuration, loaded from the environment.
type Config struct {
	Env         string
	ListenAddr  string
	LocalToken  string
	UserID      string
	BackendURL  string
	BackendWS   string
	AuthToken   string
	HTTPTimeout time.Duration

	LedgerPath string
	UndoGrace  time.Duration

	AMQPURL       string
	EventExchange string
	AuditExchange string
	RealtimeMode  string

	OTLPAddr string
	Debug    bool
}

// Load reads configuration from the environment, with .env support for
// development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getEnv("APP_ENV", "development"),
		ListenAddr:    getEnv("LISTEN_ADDR", "127.0.0.1:8091"),
		LocalToken:    os.Getenv("LOCAL_API_TOKEN"),
		UserID:        os.Getenv("USER_ID"),
		BackendURL:    getEnv("BACKEND_URL", "http://localhost:8083"),
		BackendWS:     getEnv("BACKEND_WS_URL", "ws://localhost:8083"),
		AuthToken:     os.Getenv("BACKEND_TOKEN"),
		HTTPTimeout:   time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		LedgerPath:    getEnv("LEDGER_PATH", "chat-client.db"),
		UndoGrace:     time.Duration(getEnvAsInt("UNDO_GRACE_SECONDS", 10)) * time.Second,
		AMQPURL:       os.Getenv("AMQP_URL"),
		EventExchange: getEnv("EVENT_EXCHANGE", "chat.events"),
		AuditExchange: getEnv("AUDIT_ROUTING_KEY", "audit.chat-client"),
		RealtimeMode:  getEnv("REALTIME_MODE", "websocket"),
		OTLPAddr:      os.Getenv("OTLP_ADDR"),
		Debug:         getEnvAsBool("DEBUG", false),
	}

	if cfg.UserID == "" {
		return nil, fmt.Errorf("USER_ID is required")
	}
	if cfg.RealtimeMode != "websocket" && cfg.RealtimeMode != "amqp" {
		return nil, fmt.Errorf("REALTIME_MODE must be websocket or amqp, got %q", cfg.RealtimeMode)
	}
	if cfg.RealtimeMode == "amqp" && cfg.AMQPURL == "" {
		return nil, fmt.Errorf("REALTIME_MODE=amqp requires AMQP_URL")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
