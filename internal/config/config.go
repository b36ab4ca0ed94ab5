package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string
	StaticDir  string
	DBPath     string
	LogLevel   string

	// Scraper target
	TargetURL          string
	ConversationMarker string
	CookieName         string
	CookieDomain       string
	RecipientUsername  string

	// Browser settings
	Headless  bool
	ChromeBin string
	UserAgent string

	// Operator notification
	NotifyEmail string
	FrontendURL string
	SMTP        SMTPConfig

	// Polling and recovery timing. Fixed behavior contracts from the
	// monitoring design; surfaced here so none of them hide in code.
	ScanInterval        time.Duration
	SettleDelay         time.Duration
	ErrorCooldown       time.Duration
	InitRetryBackoff    time.Duration
	MaxInitRetries      int
	RotateCooldown      time.Duration
	CredentialPollDelay time.Duration
	NavTimeout          time.Duration
	SelectorTimeout     time.Duration
	ScrollSteps         int
	ScrollStepDelay     time.Duration
}

// SMTPConfig holds the outbound mail settings for operator notifications.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":3000"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:3000"),
		StaticDir:  getEnv("STATIC_DIR", ""),
		DBPath:     getEnv("DB_PATH", "/data/dm_monitor.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		TargetURL:          getEnv("TARGET_URL", "https://www.instagram.com/direct/inbox/"),
		ConversationMarker: getEnv("CONVERSATION_MARKER", "/direct/t/"),
		CookieName:         getEnv("COOKIE_NAME", "sessionid"),
		CookieDomain:       getEnv("COOKIE_DOMAIN", ".instagram.com"),
		RecipientUsername:  getEnv("RECIPIENT_USERNAME", "Current User"),

		Headless:  getEnvBool("HEADLESS", true),
		ChromeBin: getEnv("CHROME_BIN", ""),
		UserAgent: getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),

		NotifyEmail: getEnv("NOTIFY_EMAIL", ""),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		},

		ScanInterval:        getEnvDuration("SCAN_INTERVAL", 5*time.Second),
		SettleDelay:         getEnvDuration("SETTLE_DELAY", 2*time.Second),
		ErrorCooldown:       getEnvDuration("ERROR_COOLDOWN", 10*time.Second),
		InitRetryBackoff:    getEnvDuration("INIT_RETRY_BACKOFF", 30*time.Second),
		MaxInitRetries:      getEnvInt("MAX_INIT_RETRIES", 5),
		RotateCooldown:      getEnvDuration("ROTATE_COOLDOWN", 2*time.Minute),
		CredentialPollDelay: getEnvDuration("CREDENTIAL_POLL_DELAY", 5*time.Minute),
		NavTimeout:          getEnvDuration("NAV_TIMEOUT", 30*time.Second),
		SelectorTimeout:     getEnvDuration("SELECTOR_TIMEOUT", 10*time.Second),
		ScrollSteps:         getEnvInt("SCROLL_STEPS", 15),
		ScrollStepDelay:     getEnvDuration("SCROLL_STEP_DELAY", 200*time.Millisecond),
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil || c.BaseURL == "" {
		return fmt.Errorf("BASE_URL must be a valid URL")
	}
	if _, err := url.Parse(c.TargetURL); err != nil || c.TargetURL == "" {
		return fmt.Errorf("TARGET_URL must be a valid URL")
	}
	if c.CookieName == "" {
		return fmt.Errorf("COOKIE_NAME is required")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive")
	}
	if c.MaxInitRetries < 1 {
		return fmt.Errorf("MAX_INIT_RETRIES must be at least 1")
	}
	if c.ScrollSteps < 0 {
		return fmt.Errorf("SCROLL_STEPS must not be negative")
	}
	if c.NotifyEmail != "" {
		if c.SMTP.Host == "" {
			return fmt.Errorf("SMTP_HOST is required when NOTIFY_EMAIL is set")
		}
		if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
			return fmt.Errorf("invalid SMTP_PORT")
		}
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
