package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
)

type Config struct {
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Match     MatchConfig
	Alert     AlertConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig
	MQTT      MQTTConfig
	Evidence  EvidenceConfig
	Ingest    IngestConfig
	Web       WebConfig
	Log       LogConfig
}

type EmbeddingConfig struct {
	URL     string        // defaults to http://localhost:8000
	Dim     int           // defaults to 512
	Timeout time.Duration // per detection call, defaults to 10s
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	EmbeddingDim int    // gallery vector column dimension, follows EMBEDDING_DIM
}

type MatchConfig struct {
	Threshold     float64       // minimum cosine similarity (default 0.70)
	CacheTTL      time.Duration // gallery snapshot reuse (default 30s)
	Index         string        // "linear" (default) or "hnsw"
	HNSWCandidate int           // candidates scored exactly when Index is hnsw
}

type AlertConfig struct {
	Cooldown        time.Duration // per-identity cooldown window (default 60s)
	NearestStations int           // stations copied on an alert (default 2)
	Workers         int           // dispatch goroutines
	QueueSize       int           // dispatch queue buffer
	MaxAttempts     int           // delivery attempts per alert
	RetryDelay      time.Duration // initial backoff between attempts
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool // require STARTTLS (default true); otherwise STARTTLS is opportunistic
	Timeout  time.Duration
}

// Enabled reports whether outbound e-mail is configured.
func (c *SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type NotifyConfig struct {
	URLs    []string // shoutrrr service URLs for the push channel
	Timeout time.Duration
}

type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883, empty disables publishing
	ClientID string
	Username string
	Password string
	Topic    string
}

type EvidenceConfig struct {
	Dir string // directory for evidence images (default ./evidence)
}

type IngestConfig struct {
	RatePerCamera float64
	Burst         int
}

type WebConfig struct {
	// AllowedOrigins lists browser origins granted CORS access to the API.
	// The entry "localhost" admits http(s)://localhost on any port.
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("90s", "2m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envList splits a comma separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			URL:     os.Getenv("EMBEDDING_URL"),
			Dim:     envInt("EMBEDDING_DIM", constants.EmbeddingDim),
			Timeout: envDuration("EMBEDDING_TIMEOUT", constants.DefaultEmbeddingTimeout),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			EmbeddingDim: envInt("EMBEDDING_DIM", constants.EmbeddingDim),
		},
		Match: MatchConfig{
			Threshold:     envFloat("MATCH_THRESHOLD", constants.DefaultMatchThreshold),
			CacheTTL:      envDuration("GALLERY_CACHE_TTL", constants.DefaultGalleryCacheTTL),
			Index:         strings.ToLower(envString("GALLERY_INDEX", "linear")),
			HNSWCandidate: envInt("GALLERY_HNSW_CANDIDATES", constants.DefaultHNSWCandidates),
		},
		Alert: AlertConfig{
			Cooldown:        envDuration("ALERT_COOLDOWN", constants.DefaultAlertCooldown),
			NearestStations: envInt("ALERT_NEAREST_STATIONS", constants.NearestStationCount),
			Workers:         envInt("DISPATCH_WORKERS", constants.DefaultDispatchWorkers),
			QueueSize:       envInt("DISPATCH_QUEUE_SIZE", constants.DefaultDispatchQueueSize),
			MaxAttempts:     envInt("DISPATCH_MAX_ATTEMPTS", constants.DefaultDispatchMaxAttempts),
			RetryDelay:      envDuration("DISPATCH_RETRY_DELAY", constants.DefaultDispatchRetryDelay),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			TLS:      envBool("SMTP_TLS", true),
			Timeout:  envDuration("SMTP_TIMEOUT", constants.DefaultSMTPTimeout),
		},
		Notify: NotifyConfig{
			URLs:    envList("NOTIFY_URLS"),
			Timeout: envDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			ClientID: envString("MQTT_CLIENT_ID", "reunite"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			Topic:    envString("MQTT_TOPIC", "reunite/detections"),
		},
		Evidence: EvidenceConfig{
			Dir: envString("EVIDENCE_DIR", "./evidence"),
		},
		Ingest: IngestConfig{
			RatePerCamera: envFloat("INGEST_RATE_PER_CAMERA", constants.DefaultIngestRate),
			Burst:         envInt("INGEST_BURST", constants.DefaultIngestBurst),
		},
		Web: WebConfig{
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}
}
