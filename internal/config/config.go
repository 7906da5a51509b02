package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every setting of the functions server.
type Config struct {
	Port     string
	LogLevel string

	StoreDriver       string // "mongo" or "memory"
	MongoURI          string
	MongoDB           string
	MongoTransactions bool

	TriggerSecret string
	CORSOrigins   []string

	FCMProjectID   string
	FCMAccessToken string
	FCMBaseURL     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PushDedupeTTL time.Duration

	CascadePaged       bool
	WatchChanges       bool
	TriggerMaxAttempts int

	PurgeSchedule    string
	PurgeCollections []string
}

// LoadConfig reads .env (when present) and the environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment only.
func FromEnv() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver:       getEnv("STORE_DRIVER", "mongo"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:           getEnv("MONGO_DB", "sitetrack"),
		MongoTransactions: getBool("MONGO_TRANSACTIONS", false),

		TriggerSecret: os.Getenv("TRIGGER_SECRET"),
		CORSOrigins:   getList("CORS_ORIGINS", []string{"http://localhost:8081"}),

		FCMProjectID:   os.Getenv("FCM_PROJECT_ID"),
		FCMAccessToken: os.Getenv("FCM_ACCESS_TOKEN"),
		FCMBaseURL:     os.Getenv("FCM_BASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		PushDedupeTTL: getDuration("PUSH_DEDUPE_TTL", 24*time.Hour),

		CascadePaged:       getBool("CASCADE_PAGED", false),
		WatchChanges:       getBool("WATCH_CHANGES", false),
		TriggerMaxAttempts: getInt("TRIGGER_MAX_ATTEMPTS", 3),

		PurgeSchedule:    os.Getenv("PURGE_SCHEDULE"),
		PurgeCollections: getList("PURGE_COLLECTIONS", []string{"notifications"}),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
