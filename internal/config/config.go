package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Gemini API
	GeminiAPIKey  string        `env:"GEMINI_API_KEY,required"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	CallTimeout   time.Duration `env:"MODEL_CALL_TIMEOUT" envDefault:"5m"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	BackoffMin    time.Duration `env:"RETRY_BACKOFF_MIN" envDefault:"4s"`
	BackoffMax    time.Duration `env:"RETRY_BACKOFF_MAX" envDefault:"10s"`
	RateLimit     float64       `env:"RATE_LIMIT_CALLS_PER_SEC" envDefault:"1.8"`
	RateBurst     int           `env:"RATE_LIMIT_BURST" envDefault:"2"`

	// Audio processing
	OutputDir          string `env:"OUTPUT_DIR" envDefault:"."`
	AudioQuality       string `env:"AUDIO_QUALITY" envDefault:"192"`
	ChunkLengthMinutes int    `env:"CHUNK_LENGTH_MINUTES" envDefault:"30"`
	OverlapSeconds     int    `env:"OVERLAP_SECONDS" envDefault:"30"`
	MaxDurationMinutes int    `env:"MAX_DURATION_MINUTES" envDefault:"50"`
	MaxFileSizeMB      int    `env:"MAX_FILE_SIZE_MB" envDefault:"100"`
	ChunkPolicy        string `env:"CHUNK_POLICY" envDefault:"overlap"`
	BoundaryNudgeSecs  int    `env:"BOUNDARY_NUDGE_SECONDS" envDefault:"10"`
	TranscribeWorkers  int    `env:"TRANSCRIBE_WORKERS" envDefault:"4"`
	KeepChunks         bool   `env:"KEEP_CHUNKS" envDefault:"false"`

	// Context windows for quote extraction
	ContextBeforeSeconds int `env:"CONTEXT_BEFORE_SECONDS" envDefault:"30"`
	ContextAfterSeconds  int `env:"CONTEXT_AFTER_SECONDS" envDefault:"90"`

	// Transcription prompt override (empty = built-in default)
	TranscriptionPrompt string `env:"TRANSCRIPTION_PROMPT"`

	// HTTP server
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	// Optional job history store
	DatabaseURL string `env:"DATABASE_URL"`

	// Optional request drop directory
	WatchDir string `env:"WATCH_DIR"`

	// Optional MQTT completion notifications
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"pullquote"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"pullquote/jobs"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	S3 S3Config `envPrefix:"S3_"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Chunk planning policies. Overlap keeps chunk ends on the chunk-length grid
// and pulls starts back by the overlap; fixed divides the source into the
// minimum equal chunks and widens interior boundaries by the nudge.
const (
	ChunkPolicyOverlap = "overlap"
	ChunkPolicyFixed   = "fixed"
)

// S3Config configures the optional artifact archive.
type S3Config struct {
	Endpoint       string        `env:"ENDPOINT"`
	Region         string        `env:"REGION" envDefault:"us-east-1"`
	Bucket         string        `env:"BUCKET"`
	AccessKey      string        `env:"ACCESS_KEY"`
	SecretKey      string        `env:"SECRET_KEY"`
	Prefix         string        `env:"PREFIX"`
	LocalCache     bool          `env:"LOCAL_CACHE" envDefault:"true"`
	CacheRetention time.Duration `env:"CACHE_RETENTION"`
	CacheMaxGB     int           `env:"CACHE_MAX_GB"`
	PresignExpiry  time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether the S3 archive is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Error is a fatal configuration error. Invalid chunking or retry
// parameters fail fast at startup rather than mid-pipeline.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	OutputDir string
	HTTPAddr  string
	LogLevel  string
	WatchDir  string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults. Validation runs after merging.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks parameter combinations that would break the pipeline.
func (c *Config) Validate() error {
	if c.ChunkLengthMinutes <= 0 {
		return &Error{Field: "CHUNK_LENGTH_MINUTES", Reason: "must be positive"}
	}
	if c.OverlapSeconds < 0 {
		return &Error{Field: "OVERLAP_SECONDS", Reason: "must not be negative"}
	}
	if c.OverlapSeconds >= c.ChunkLengthMinutes*60 {
		return &Error{Field: "OVERLAP_SECONDS", Reason: "must be less than the chunk length"}
	}
	if c.ChunkPolicy != ChunkPolicyOverlap && c.ChunkPolicy != ChunkPolicyFixed {
		return &Error{Field: "CHUNK_POLICY", Reason: `must be "overlap" or "fixed"`}
	}
	if c.BoundaryNudgeSecs < 0 {
		return &Error{Field: "BOUNDARY_NUDGE_SECONDS", Reason: "must not be negative"}
	}
	if c.RetryAttempts < 1 {
		return &Error{Field: "RETRY_ATTEMPTS", Reason: "must be at least 1"}
	}
	if c.RateLimit <= 0 {
		return &Error{Field: "RATE_LIMIT_CALLS_PER_SEC", Reason: "must be positive"}
	}
	if c.TranscribeWorkers < 1 {
		return &Error{Field: "TRANSCRIBE_WORKERS", Reason: "must be at least 1"}
	}
	if c.ContextBeforeSeconds < 0 {
		return &Error{Field: "CONTEXT_BEFORE_SECONDS", Reason: "must not be negative"}
	}
	if c.ContextAfterSeconds < 0 {
		return &Error{Field: "CONTEXT_AFTER_SECONDS", Reason: "must not be negative"}
	}
	return nil
}

// ChunkLength returns the configured chunk length in seconds.
func (c *Config) ChunkLength() float64 { return float64(c.ChunkLengthMinutes) * 60 }
