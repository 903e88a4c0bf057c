package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port      string
	ReplicaID string
	LogLevel  logrus.Level

	DatabaseURL string
	RedisURL    string
	RelayURL    string // empty: host the relay in-process

	BlobBucket          string
	BlobEndpoint        string
	BlobRegion          string
	BlobAccessKeyID     string
	BlobSecretAccessKey string

	InviteTTL           time.Duration
	InviteSweepInterval time.Duration

	MatchSize            int
	MatchRounds          int
	MatchSecondsPerRound int
}

// Load reads the environment, after loading .env if one exists.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:      getEnv("PORT", "8080"),
		ReplicaID: os.Getenv("REPLICA_ID"),
		LogLevel:  getEnvLevel("LOG_LEVEL", logrus.InfoLevel),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		RelayURL:    os.Getenv("RELAY_URL"),

		BlobBucket:          os.Getenv("BLOB_BUCKET"),
		BlobEndpoint:        os.Getenv("BLOB_ENDPOINT"),
		BlobRegion:          getEnv("BLOB_REGION", "auto"),
		BlobAccessKeyID:     os.Getenv("BLOB_ACCESS_KEY_ID"),
		BlobSecretAccessKey: os.Getenv("BLOB_SECRET_ACCESS_KEY"),

		InviteTTL:           getEnvDuration("INVITE_TTL", 5*time.Minute),
		InviteSweepInterval: getEnvDuration("INVITE_SWEEP_INTERVAL", time.Minute),

		MatchSize:            getEnvInt("MATCH_SIZE", 5),
		MatchRounds:          getEnvInt("MATCH_ROUNDS", 3),
		MatchSecondsPerRound: getEnvInt("MATCH_SECONDS_PER_ROUND", 80),
	}
	if cfg.ReplicaID == "" {
		cfg.ReplicaID = uuid.New().String()
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvLevel(key string, fallback logrus.Level) logrus.Level {
	if v := os.Getenv(key); v != "" {
		if lvl, err := logrus.ParseLevel(v); err == nil {
			return lvl
		}
	}
	return fallback
}
