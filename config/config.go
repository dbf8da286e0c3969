package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	// TrustProxy keys rate limits on X-Forwarded-For; set it only behind a proxy.
	TrustProxy     bool

	LogLevel  string
	LogFormat string

	// Store selects the record backend: badger, mongo or memory.
	Store         string
	BadgerDir     string
	MongoURI      string
	MongoDB       string
	// RedisAddr is optional; job status stays in process memory when empty.
	RedisAddr     string
	RedisPassword string

	TemplatePath  string
	OutputDir     string
	ScreenshotDir string
	AssetsDir     string

	SnapshotURL string
	SnapshotKey string
	MapPageURL  string

	ConvertURL   string
	ConvertKey   string
	PollInterval time.Duration
	PollAttempts int

	Workers      int
	QueueSize    int
	DownloadWait time.Duration
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    strings.ToLower(getEnv("ENV", "development")),
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 72*time.Hour),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Store:         strings.ToLower(getEnv("STORE", "badger")),
		BadgerDir:     getEnv("BADGER_DIR", "data/records"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "itineraries"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TemplatePath:  getEnv("TEMPLATE_PATH", "templates/itinerary.docx"),
		OutputDir:     getEnv("OUTPUT_DIR", os.TempDir()),
		ScreenshotDir: getEnv("SCREENSHOT_DIR", "static/screenshots"),
		AssetsDir:     getEnv("ASSETS_DIR", "static/assets"),

		SnapshotURL: getEnv("SNAPSHOT_URL", "https://api.screenshotmachine.example"),
		SnapshotKey: getEnv("SNAPSHOT_KEY", ""),
		MapPageURL:  getEnv("MAP_PAGE_URL", "http://localhost:3000/map"),

		ConvertURL:   getEnv("CONVERT_URL", "https://api.convert.example"),
		ConvertKey:   getEnv("CONVERT_KEY", ""),
		PollInterval: getEnvDuration("POLL_INTERVAL", 2*time.Second),
		PollAttempts: getEnvInt("POLL_ATTEMPTS", 30),

		Workers:      getEnvInt("WORKERS", 2),
		QueueSize:    getEnvInt("QUEUE_SIZE", 32),
		DownloadWait: getEnvDuration("DOWNLOAD_WAIT", 90*time.Second),
	}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Addr is the listen address built from Port, which may be given with or without a colon.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
