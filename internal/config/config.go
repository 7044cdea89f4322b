// Package config loads process configuration from the environment and holds
// the engine limits.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

const (
	// MaxMessageLength is the longest accepted chat turn, in runes.
	MaxMessageLength = 2000
	// MaxInterests bounds the interest list of one profile.
	MaxInterests = 10
	// MinPasswordLength is enforced at registration.
	MinPasswordLength = 6

	// EventQueueSize is the buffer between the engine and the event dispatcher.
	EventQueueSize = 1024
	// ClientSendBuffer is the per-connection buffer of outgoing frames.
	ClientSendBuffer = 256
)

// Config holds every setting read from the environment.
type Config struct {
	Env     string
	AppPort string
	// AllowedOrigins limits WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	TokenTTL  time.Duration

	TelegramToken string

	OTELEndpoint    string
	OTELServiceName string
}

// LoadConfig reads the configuration. Optional backends stay disabled when
// their variables are empty.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Env:             getEnv("ENV", "local"),
		AppPort:         getEnv("APP_PORT", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "chat.events"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		OTELEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELServiceName: getEnv("OTEL_SERVICE_NAME", "chatmatch"),
	}

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "72h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl

	if cfg.JWTSecret == "" {
		if cfg.Env != "local" {
			return nil, errors.New("JWT_SECRET is required outside ENV=local")
		}
		log.Println("WARNING: JWT_SECRET is not set, using the local development secret")
		cfg.JWTSecret = "local-development-secret"
	}

	return cfg, nil
}

// splitList parses a comma separated value, dropping blank items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
