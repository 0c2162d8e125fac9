package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Conversation history
	ConversationsDir string
	HistoryLoadTurns int
	HistorySaveTurns int

	// OpenAI
	OpenAIAPIKey string
	OpenAIModel  string

	// WaSender outbound gateway
	WasenderAPIURL         string
	WasenderInteractiveURL string
	WasenderAPIToken       string

	// Scheduling timezones
	DisplayTimezone string
	StorageTimezone string

	// Google Calendar
	CalendarID          string
	CalendarCredentials string

	// Sync webhook shared secret
	SyncSecretToken string

	// Operator contact for unanswered-query notifications and run summaries
	OperatorNumber string

	// Appointment request email (SMTP)
	AppointmentEmailSender    string
	AppointmentEmailPassword  string
	AppointmentEmailRecipient string
	AppointmentSMTPServer     string
	AppointmentSMTPPort       int

	// Outreach
	OutreachSheetID          string
	MessageTemplateSheetName string
	ContactsSheetName        string
	OutreachMessageDelay     time.Duration
	OutreachCron             string

	// Redis (optional; empty address keeps the in-memory pause registry)
	RedisAddr     string
	RedisPassword string

	// Background reindexing
	ReindexWorkers int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ConversationsDir: getEnv("CONVERSATIONS_DIR", "conversations"),
		HistoryLoadTurns: getEnvAsInt("HISTORY_LOAD_TURNS", 6),
		HistorySaveTurns: getEnvAsInt("HISTORY_SAVE_TURNS", 10),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),

		WasenderAPIURL:         getEnv("WASENDER_API_URL", "https://www.wasenderapi.com/api/send-message"),
		WasenderInteractiveURL: getEnv("WASENDER_INTERACTIVE_URL", "https://www.wasenderapi.com/api/send-interactive-message"),
		WasenderAPIToken:       getEnv("WASENDER_API_TOKEN", ""),

		DisplayTimezone: getEnv("DISPLAY_TIMEZONE", "Asia/Dubai"),
		StorageTimezone: getEnv("STORAGE_TIMEZONE", "America/New_York"),

		CalendarID:          getEnv("CALENDAR_ID", ""),
		CalendarCredentials: getEnv("GOOGLE_CALENDAR_CREDENTIALS", ""),

		SyncSecretToken: getEnv("SYNC_SECRET_TOKEN", ""),

		OperatorNumber: getEnv("OPERATOR_NUMBER", ""),

		AppointmentEmailSender:    getEnv("APPOINTMENT_EMAIL_SENDER", ""),
		AppointmentEmailPassword:  getEnv("APPOINTMENT_EMAIL_PASSWORD", ""),
		AppointmentEmailRecipient: getEnv("APPOINTMENT_EMAIL_RECIPIENT", ""),
		AppointmentSMTPServer:     getEnv("APPOINTMENT_SMTP_SERVER", "smtp.gmail.com"),
		AppointmentSMTPPort:       getEnvAsInt("APPOINTMENT_SMTP_PORT", 587),

		OutreachSheetID:          getEnv("OUTREACH_SHEET_ID", ""),
		MessageTemplateSheetName: getEnv("MESSAGE_TEMPLATE_SHEET_NAME", "MessageTemplate"),
		ContactsSheetName:        getEnv("CONTACTS_SHEET_NAME", "Sheet1"),
		OutreachMessageDelay:     getEnvAsDuration("OUTREACH_MESSAGE_DELAY_SECONDS", 5*time.Second),
		OutreachCron:             strings.TrimSpace(getEnv("OUTREACH_CRON", "")),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ReindexWorkers: getEnvAsInt("REINDEX_WORKERS", 2),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
