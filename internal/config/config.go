package config

import (
	"fmt"
	"os"
)

// Config holds the application configuration. It is loaded once in main and
// passed by reference into each component; nothing else reads the environment.
type Config struct {
	DatabaseURL string
	Port        string

	// Provider (Surge) credentials
	SurgeSigningSecret string
	SurgeAPIKey        string
	SurgeAccountID     string
	SurgePhoneNumberID string
	SurgeAPIBase       string

	// Billing checkout links
	CheckoutSecret  string
	CheckoutBaseURL string

	// Attachment storage: S3 when Bucket is set, local dir otherwise
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	LocalDir    string

	DevMode bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:         "8080", // default port
		SurgeAPIBase: "https://api.surge.app",
		LocalDir:     "data/attachments",
	}

	required := map[string]*string{
		"DATABASE_URL":          &cfg.DatabaseURL,
		"SURGE_SIGNING_SECRET":  &cfg.SurgeSigningSecret,
		"SURGE_API_KEY":         &cfg.SurgeAPIKey,
		"SURGE_ACCOUNT_ID":      &cfg.SurgeAccountID,
		"SURGE_PHONE_NUMBER_ID": &cfg.SurgePhoneNumberID,
		"CHECKOUT_SECRET":       &cfg.CheckoutSecret,
		"CHECKOUT_BASE_URL":     &cfg.CheckoutBaseURL,
	}
	for name, dst := range required {
		v := os.Getenv(name)
		if v == "" {
			return nil, fmt.Errorf("%s environment variable is required", name)
		}
		*dst = v
	}

	optional := map[string]*string{
		"PORT":                  &cfg.Port,
		"SURGE_API_BASE":        &cfg.SurgeAPIBase,
		"STORAGE_S3_BUCKET":     &cfg.S3Bucket,
		"STORAGE_S3_REGION":     &cfg.S3Region,
		"STORAGE_S3_ENDPOINT":   &cfg.S3Endpoint,
		"STORAGE_S3_ACCESS_KEY": &cfg.S3AccessKey,
		"STORAGE_S3_SECRET_KEY": &cfg.S3SecretKey,
		"STORAGE_LOCAL_DIR":     &cfg.LocalDir,
	}
	for name, dst := range optional {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	return cfg, nil
}
