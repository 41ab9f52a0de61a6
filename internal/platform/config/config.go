package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr string

	// PostgresDSN selects the Postgres store; empty selects the in-memory
	// store (development mode).
	PostgresDSN string

	// RedisAddr enables the Redis pub/sub event publisher when set.
	RedisAddr string
	// RedisChannel is the pub/sub channel notification renderers subscribe to.
	RedisChannel string

	// KafkaBrokers enables the Kafka event publisher when non-empty.
	KafkaBrokers []string
	// KafkaTopic is the topic the certificate issuer consumes.
	KafkaTopic string

	// JWTSigningKey verifies bearer tokens carrying bidder identity.
	JWTSigningKey string

	// ItemLockTimeout bounds per-item lock acquisition.
	ItemLockTimeout time.Duration

	// WeakReservationTTL is the expiry deadline assigned to weak
	// reservations. Zero disables expiry.
	WeakReservationTTL time.Duration

	// SweepSchedule is the cron spec for the expiry sweep.
	SweepSchedule string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:               getenv("EGIRESERVE_ADDR", ":8080"),
		PostgresDSN:        os.Getenv("EGIRESERVE_POSTGRES_DSN"),
		RedisAddr:          os.Getenv("EGIRESERVE_REDIS_ADDR"),
		RedisChannel:       getenv("EGIRESERVE_REDIS_CHANNEL", "reservations.events"),
		KafkaTopic:         getenv("EGIRESERVE_KAFKA_TOPIC", "reservation-events"),
		JWTSigningKey:      getenv("EGIRESERVE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ItemLockTimeout:    getduration("EGIRESERVE_ITEM_LOCK_TIMEOUT", 5*time.Second),
		WeakReservationTTL: getduration("EGIRESERVE_WEAK_TTL", 0),
		SweepSchedule:      getenv("EGIRESERVE_SWEEP_SCHEDULE", "@every 1m"),
	}
	if brokers := os.Getenv("EGIRESERVE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
