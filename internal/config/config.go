package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version is reported by getOptionsData and /health
var Version = "dev"

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port      string
	Debug     bool
	PublicURL string // base URL notification buttons link back to

	// Upstream configuration
	AllowedDomains    []string // first entry is the default preferred domain
	CookieFile        string
	RequestsPerSecond float64
	PageLimit         int
	NotesMaxNew       int
	NotifMaxNew       int

	// State storage configuration
	StatePath        string
	StorageAccount   string // enables Azure Blob for the synced backend
	StorageContainer string
	OptionsFile      string // optional YAML seed applied on first run

	// Notification configuration
	NotificationChannel string // "log", "teams" or "email"
	TeamsWebhookURL     string
	NotificationEmail   string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		Debug:     getBoolEnv("DEBUG", false),
		PublicURL: strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),

		AllowedDomains:    getSliceEnv("ALLOWED_DOMAINS", []string{"www.deviantart.com"}),
		CookieFile:        getEnv("COOKIE_FILE", "cookies.txt"),
		RequestsPerSecond: getFloatEnv("REQUESTS_PER_SECOND", 5),
		PageLimit:         getIntEnv("PAGE_LIMIT", 24),
		NotesMaxNew:       getIntEnv("NOTES_MAX_NEW", 50),
		NotifMaxNew:       getIntEnv("NOTIFICATIONS_MAX_NEW", 24),

		StatePath:        getEnv("STATE_PATH", "deviant-notify.db"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "deviant-notify"),
		OptionsFile:      getEnv("OPTIONS_FILE", ""),

		NotificationChannel: getEnv("NOTIFICATION_CHANNEL", "log"),
		TeamsWebhookURL:     getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail:   getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getIntEnv("SMTP_PORT", 587),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.AllowedDomains) == 0 || strings.TrimSpace(c.AllowedDomains[0]) == "" {
		return fmt.Errorf("ALLOWED_DOMAINS must list at least one domain")
	}

	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must be positive")
	}

	if c.PageLimit < 1 || c.NotesMaxNew < 1 || c.NotifMaxNew < 1 {
		return fmt.Errorf("PAGE_LIMIT, NOTES_MAX_NEW and NOTIFICATIONS_MAX_NEW must be at least 1")
	}

	switch c.NotificationChannel {
	case "log":
	case "teams":
		if c.TeamsWebhookURL == "" {
			return fmt.Errorf("TEAMS_WEBHOOK_URL is required when NOTIFICATION_CHANNEL is 'teams'")
		}
	case "email":
		if c.NotificationEmail == "" || c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("NOTIFICATION_EMAIL and SMTP configuration are required when NOTIFICATION_CHANNEL is 'email'")
		}
	default:
		return fmt.Errorf("NOTIFICATION_CHANNEL must be 'log', 'teams' or 'email'")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
