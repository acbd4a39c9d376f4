package config

import (
	"errors"
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"GEMINI_API_KEY": "test-key",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.GeminiModel != "gemini-2.5-flash" {
			t.Errorf("GeminiModel = %q, want gemini-2.5-flash", cfg.GeminiModel)
		}
		if cfg.ChunkLengthMinutes != 30 {
			t.Errorf("ChunkLengthMinutes = %d, want 30", cfg.ChunkLengthMinutes)
		}
		if cfg.OverlapSeconds != 30 {
			t.Errorf("OverlapSeconds = %d, want 30", cfg.OverlapSeconds)
		}
		if cfg.MaxDurationMinutes != 50 {
			t.Errorf("MaxDurationMinutes = %d, want 50", cfg.MaxDurationMinutes)
		}
		if cfg.MaxFileSizeMB != 100 {
			t.Errorf("MaxFileSizeMB = %d, want 100", cfg.MaxFileSizeMB)
		}
		if cfg.ContextBeforeSeconds != 30 || cfg.ContextAfterSeconds != 90 {
			t.Errorf("context window = %d/%d, want 30/90",
				cfg.ContextBeforeSeconds, cfg.ContextAfterSeconds)
		}
		if cfg.RetryAttempts != 3 {
			t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
		}
		if cfg.RateLimit != 1.8 {
			t.Errorf("RateLimit = %f, want 1.8", cfg.RateLimit)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.OutputDir != "." {
			t.Errorf("OutputDir = %q, want .", cfg.OutputDir)
		}
		if cfg.ChunkPolicy != ChunkPolicyOverlap {
			t.Errorf("ChunkPolicy = %q, want %q", cfg.ChunkPolicy, ChunkPolicyOverlap)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:   "nonexistent.env",
			OutputDir: "/tmp/out",
			HTTPAddr:  ":9090",
			LogLevel:  "debug",
			WatchDir:  "/tmp/drop",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.OutputDir != "/tmp/out" {
			t.Errorf("OutputDir = %q, want /tmp/out", cfg.OutputDir)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.WatchDir != "/tmp/drop" {
			t.Errorf("WatchDir = %q, want /tmp/drop", cfg.WatchDir)
		}
	})

	t.Run("chunk_length_from_env", func(t *testing.T) {
		c2 := setEnvs(t, map[string]string{"CHUNK_LENGTH_MINUTES": "15"})
		defer c2()
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ChunkLengthMinutes != 15 {
			t.Errorf("ChunkLengthMinutes = %d, want 15", cfg.ChunkLengthMinutes)
		}
		if cfg.ChunkLength() != 900 {
			t.Errorf("ChunkLength() = %f, want 900", cfg.ChunkLength())
		}
	})
}

func TestLoadMissingAPIKey(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"GEMINI_API_KEY": ""})
	defer cleanup()
	os.Unsetenv("GEMINI_API_KEY")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when GEMINI_API_KEY is missing")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			ChunkLengthMinutes:   30,
			OverlapSeconds:       30,
			ChunkPolicy:          ChunkPolicyOverlap,
			RetryAttempts:        3,
			RateLimit:            1.8,
			TranscribeWorkers:    4,
			ContextBeforeSeconds: 30,
			ContextAfterSeconds:  90,
		}
	}

	t.Run("valid", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("overlap_at_least_chunk_length", func(t *testing.T) {
		cfg := base()
		cfg.ChunkLengthMinutes = 1
		cfg.OverlapSeconds = 60
		err := cfg.Validate()
		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("want *config.Error, got %v", err)
		}
		if ce.Field != "OVERLAP_SECONDS" {
			t.Errorf("Field = %q, want OVERLAP_SECONDS", ce.Field)
		}
	})

	t.Run("negative_overlap", func(t *testing.T) {
		cfg := base()
		cfg.OverlapSeconds = -1
		if cfg.Validate() == nil {
			t.Error("expected error for negative overlap")
		}
	})

	t.Run("zero_chunk_length", func(t *testing.T) {
		cfg := base()
		cfg.ChunkLengthMinutes = 0
		if cfg.Validate() == nil {
			t.Error("expected error for zero chunk length")
		}
	})

	t.Run("zero_rate", func(t *testing.T) {
		cfg := base()
		cfg.RateLimit = 0
		if cfg.Validate() == nil {
			t.Error("expected error for zero rate limit")
		}
	})

	t.Run("unknown_chunk_policy", func(t *testing.T) {
		cfg := base()
		cfg.ChunkPolicy = "grid"
		err := cfg.Validate()
		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("want *config.Error, got %v", err)
		}
		if ce.Field != "CHUNK_POLICY" {
			t.Errorf("Field = %q, want CHUNK_POLICY", ce.Field)
		}
	})

	t.Run("fixed_chunk_policy_valid", func(t *testing.T) {
		cfg := base()
		cfg.ChunkPolicy = ChunkPolicyFixed
		cfg.BoundaryNudgeSecs = 10
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("negative_context_after", func(t *testing.T) {
		cfg := base()
		cfg.ContextAfterSeconds = -1
		err := cfg.Validate()
		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("want *config.Error, got %v", err)
		}
		if ce.Field != "CONTEXT_AFTER_SECONDS" {
			t.Errorf("Field = %q, want CONTEXT_AFTER_SECONDS", ce.Field)
		}
	})

	t.Run("negative_context_before", func(t *testing.T) {
		cfg := base()
		cfg.ContextBeforeSeconds = -1
		err := cfg.Validate()
		var ce *Error
		if !errors.As(err, &ce) {
			t.Fatalf("want *config.Error, got %v", err)
		}
		if ce.Field != "CONTEXT_BEFORE_SECONDS" {
			t.Errorf("Field = %q, want CONTEXT_BEFORE_SECONDS", ce.Field)
		}
	})
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
