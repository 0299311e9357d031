package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort       string
	FirestoreProject string
	Environment      string

	KafkaBrokers []string
	KafkaTopic   string

	// Sweep cadence for auction finalization and rental expiry.
	SweepInterval time.Duration

	// Fee rates as fractions of the settlement price.
	PlatformFeeRate float64
	RoyaltyFeeRate  float64
	ServiceFeeRate  float64
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		FirestoreProject: getEnv("FIRESTORE_PROJECT_ID", ""),
		Environment:      getEnv("ENVIRONMENT", "development"),
		KafkaBrokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "marketplace-events"),
		SweepInterval:    time.Duration(getEnvAsInt64("SWEEP_INTERVAL_SECONDS", 30)) * time.Second,
		PlatformFeeRate:  getEnvAsFloat("PLATFORM_FEE_RATE", 0.025),
		RoyaltyFeeRate:   getEnvAsFloat("ROYALTY_FEE_RATE", 0.05),
		ServiceFeeRate:   getEnvAsFloat("SERVICE_FEE_RATE", 0.005),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
	}
	return defaultValue
}
