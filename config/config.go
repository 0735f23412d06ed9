package config

import (
	"os"
	"strings"
	"time"
)

// Config holds the runtime settings of the notes server. Values come from the
// environment; main loads a .env file first when one is present.
type Config struct {
	HTTPAddr    string
	Environment string
	LogLevel    string
	LogFormat   string

	DBDriver           string
	DBConnectionString string

	// Token signing
	AccessKey      string
	IdentitySecret string
	TokenTTL       time.Duration

	CORSOrigins         []string
	NotificationService string
	SentryDSN           string

	// Dictation
	DictationEngine   string
	DictationLanguage string
	DeepgramAPIKey    string
	DeepgramModel     string
	GoogleCredentials string

	// Note export
	ExportBackend       string
	ExportBucket        string
	AzureStorageAccount string
	AzureStorageKey     string
}

const (
	EngineBrowser  = "browser"
	EngineDeepgram = "deepgram"
	EngineGoogle   = "google"

	ExportGCS   = "gcs"
	ExportAzure = "azure"
)

func Load() Config {
	ttl, err := time.ParseDuration(getenv("TOKEN_TTL", "60m"))
	if err != nil || ttl <= 0 {
		ttl = 60 * time.Minute
	}

	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),

		DBDriver:           strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DBConnectionString: os.Getenv("DB_CONNECTION_STRING"),

		AccessKey:      os.Getenv("ACCESS_KEY"),
		IdentitySecret: os.Getenv("IDENTITY_SECRET"),
		TokenTTL:       ttl,

		CORSOrigins:         splitList(getenv("CORS_ORIGINS", "*")),
		NotificationService: os.Getenv("NOTIFICATION_SERVICE"),
		SentryDSN:           os.Getenv("SENTRY_DSN"),

		DictationEngine:   strings.ToLower(getenv("DICTATION_ENGINE", EngineBrowser)),
		DictationLanguage: getenv("DICTATION_LANGUAGE", "en-US"),
		DeepgramAPIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     getenv("DEEPGRAM_MODEL", "nova-2"),
		GoogleCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		ExportBackend:       strings.ToLower(os.Getenv("EXPORT_BACKEND")),
		ExportBucket:        os.Getenv("EXPORT_BUCKET"),
		AzureStorageAccount: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:     os.Getenv("AZURE_STORAGE_KEY"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
