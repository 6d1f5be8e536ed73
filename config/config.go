package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Environment string
	DatabaseURL string

	// Backend API
	APIBaseURL      string
	ApplicationCode string

	// Monitoring
	MonitoringRegionsLimit int
	DistanceFilter         float64 // meters
	RegionRefreshThreshold float64 // meters
	PreferredUsage         string
	MinimumUsage           string

	// Cleanup
	CleanupInterval time.Duration
	EventRetention  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/geopush"),

		APIBaseURL:      getEnv("API_BASE_URL", "https://mobile.geopush.example.com"),
		ApplicationCode: getEnv("APPLICATION_CODE", ""),

		MonitoringRegionsLimit: getEnvAsInt("MONITORING_REGIONS_LIMIT", 20),
		DistanceFilter:         getEnvAsFloat("DISTANCE_FILTER_METERS", 100),
		RegionRefreshThreshold: getEnvAsFloat("REGION_REFRESH_THRESHOLD_METERS", 200),
		PreferredUsage:         getEnv("PREFERRED_LOCATION_USAGE", "always"),
		MinimumUsage:           getEnv("MINIMUM_LOCATION_USAGE", "whenInUse"),

		CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", time.Hour),
		EventRetention:  getEnvAsDuration("EVENT_RETENTION", 7*24*time.Hour),
	}
}

// SetupLogger configures logrus for the environment: JSON output in
// production, colored debug output everywhere else.
func SetupLogger(environment string) {
	if environment == "production" {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	}
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
