package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
	BatchSize     int
	// Level is the lowest level shipped; local outputs are unaffected.
	Level string
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string
	MaxUploadMB     int
	ShutdownTimeout time.Duration
}

// MaxUploadBytes is MaxUploadMB in bytes.
func (s ServerConfig) MaxUploadBytes() int64 { return int64(s.MaxUploadMB) << 20 }

// S3Config holds object storage connectivity. An empty Bucket disables S3.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Password  string
}

// DeliveryConfig selects where exported artifacts go.
type DeliveryConfig struct {
	Kind        string // "local"|"s3"|"redis"|"none"
	ResultDir   string
	S3Prefix    string
	RedisURL    string
	ArtifactTTL time.Duration
}

// SourceConfig controls fetching import references.
type SourceConfig struct {
	FetchTimeout time.Duration
	// ImportRoot confines file:// and path imports. Empty disables them.
	ImportRoot string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Server   ServerConfig
	S3       S3Config
	Delivery DeliveryConfig
	Source   SourceConfig
}

// Load reads an optional .env file (or the files named in ENV_FILE,
// comma separated) and then the environment.
func Load() (Config, error) {
	files := splitList(os.Getenv("ENV_FILE"))
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfeditor.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfeditor",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
		BatchSize:     parseInt(getEnv("AXIOM_BATCH_SIZE", "200"), 200),
		Level:         getEnv("AXIOM_LEVEL", "info"),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		MaxUploadMB:     parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.S3 = S3Config{
		Bucket:    getEnv("AWS_S3_BUCKET", ""),
		Region:    getEnv("AWS_REGION", ""),
		Endpoint:  getEnv("S3_ENDPOINT", ""),
		AccessKey: getEnv("S3_ACCESS_KEY", ""),
		SecretKey: getEnv("S3_SECRET_KEY", ""),
		Password:  getEnv("S3_PASSWORD", ""),
	}

	cfg.Delivery = DeliveryConfig{
		Kind:        strings.ToLower(getEnv("DELIVERY_KIND", "local")),
		ResultDir:   getEnv("RESULT_DIR", ""),
		S3Prefix:    getEnv("S3_RESULT_PREFIX", "pdfeditor/results"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		ArtifactTTL: parseDuration(getEnv("ARTIFACT_TTL", "1h"), time.Hour),
	}

	cfg.Source = SourceConfig{
		FetchTimeout: parseDuration(getEnv("FETCH_TIMEOUT", "60s"), 60*time.Second),
		ImportRoot:   getEnv("IMPORT_ROOT", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
