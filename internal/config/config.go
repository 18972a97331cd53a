// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process-level knobs for both binaries. Loaded once at startup
// from the environment; the response policy (model.AgentConfig) is separate
// and lives in the database so operators can edit it live.
type Config struct {
	Port string

	// Collection window / reconciliation
	CollectionWindow time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int

	// Ingestion
	DuplicateTextWindow time.Duration

	// Generation
	GenerationTimeout time.Duration
	GenerationURL     string
	BusinessName      string

	// Sender worker
	SenderInterval   time.Duration
	SenderBatchSize  int
	SendTimeout      time.Duration
	MaxAttempts      int
	AccountPerSecond float64
	ContactCooldown  time.Duration

	// AMQP nudge queue
	AMQPURL   string
	QueueName string

	// Channel credentials
	InstagramToken string
	GmailToken     string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		CollectionWindow: getDuration("COLLECTION_WINDOW", 5*time.Second),
		SweepInterval:    getDuration("SWEEP_INTERVAL", 30*time.Second),
		SweepBatchSize:   getInt("SWEEP_BATCH_SIZE", 100),

		DuplicateTextWindow: getDuration("DUPLICATE_TEXT_WINDOW", 10*time.Second),

		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 30*time.Second),
		GenerationURL:     os.Getenv("GENERATION_URL"),
		BusinessName:      getEnv("BUSINESS_NAME", "Convoreach"),

		SenderInterval:   getDuration("SENDER_INTERVAL", 30*time.Second),
		SenderBatchSize:  getInt("SENDER_BATCH_SIZE", 10),
		SendTimeout:      getDuration("SEND_TIMEOUT", 10*time.Second),
		MaxAttempts:      getInt("MAX_SEND_ATTEMPTS", 3),
		AccountPerSecond: getFloat("ACCOUNT_MESSAGES_PER_SECOND", 1),
		ContactCooldown:  getDuration("CONTACT_COOLDOWN", 15*time.Second),

		AMQPURL:   os.Getenv("AMQP_URL"),
		QueueName: getEnv("QUEUE_NAME", "outbound_sends"),

		InstagramToken: os.Getenv("INSTAGRAM_ACCESS_TOKEN"),
		GmailToken:     os.Getenv("GMAIL_ACCESS_TOKEN"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
