package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// App Store verification configuration
	AppStoreSharedSecret  string
	AppStoreProductionURL string
	AppStoreSandboxURL    string
	VerifyTimeoutSeconds  int

	// OCR extraction configuration
	OCREndpoint       string
	OCRAPIKey         string
	OCRTimeoutSeconds int

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Trial configuration
	TrialDays      int
	TrialScanLimit int

	// API authentication
	APIKey      string
	ServiceName string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                  getEnv("PORT", "8080"),
		Mode:                  getEnv("GIN_MODE", "debug"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AppStoreSharedSecret:  getEnv("APPSTORE_SHARED_SECRET", ""),
		AppStoreProductionURL: getEnv("APPSTORE_PRODUCTION_URL", "https://buy.itunes.apple.com/verifyReceipt"),
		AppStoreSandboxURL:    getEnv("APPSTORE_SANDBOX_URL", "https://sandbox.itunes.apple.com/verifyReceipt"),
		VerifyTimeoutSeconds:  getEnvInt("VERIFY_TIMEOUT_SECONDS", 10),
		OCREndpoint:           getEnv("OCR_ENDPOINT", ""),
		OCRAPIKey:             getEnv("OCR_API_KEY", ""),
		OCRTimeoutSeconds:     getEnvInt("OCR_TIMEOUT_SECONDS", 30),
		BrevoAPIKey:           getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:        getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:         getEnv("BREVO_FROM_NAME", "BizToMate"),
		TrialDays:             getEnvInt("TRIAL_DAYS", 7),
		TrialScanLimit:        getEnvInt("TRIAL_SCAN_LIMIT", 50),
		APIKey:                getEnv("API_KEY", ""),
		ServiceName:           getEnv("SERVICE_NAME", "BizToMate Receipt Validation"),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
