package app

import (
	"os"
	"strconv"
)

type Config struct {
	HTTPAddr      string
	ProtocolsPath string

	// Event log: Postgres when DATABASE_URL is set, CSV file otherwise.
	DatabaseURL    string
	MetricsCSVPath string

	SentryDSN string

	// Deepgram speech-to-text
	DeepgramAPIKey   string
	DeepgramLanguage string
	DeepgramModel    string

	// Twilio outbound callback calls
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioCallerID   string
	TwilioTwiMLURL   string

	// Notifications
	DiscordWebhookURL string

	// Upload limits
	MaxAudioBytes int64
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		ProtocolsPath: getenv("PROTOCOLS_PATH", "protocols.json"),

		DatabaseURL:    getenv("DATABASE_URL", ""),
		MetricsCSVPath: getenv("METRICS_CSV_PATH", "metrics.csv"),

		SentryDSN: getenv("SENTRY_DSN", ""),

		// Deepgram speech-to-text
		DeepgramAPIKey:   getenv("DEEPGRAM_API_KEY", ""),
		DeepgramLanguage: getenv("DEEPGRAM_LANGUAGE", "es"),
		DeepgramModel:    getenv("DEEPGRAM_MODEL", "nova-2"),

		// Twilio outbound callback calls
		TwilioAccountSID: getenv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getenv("TWILIO_AUTH_TOKEN", ""),
		TwilioCallerID:   getenv("TWILIO_CALLER_ID", ""),
		TwilioTwiMLURL:   getenv("TWILIO_TWIML_URL", ""),

		// Notifications
		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),

		// Upload limits
		MaxAudioBytes: getenvInt64("MAX_AUDIO_BYTES", 10*1024*1024),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt64(k string, def int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
