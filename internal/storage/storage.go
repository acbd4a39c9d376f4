// Package storage persists pipeline artifacts: downloaded audio and the
// generated transcript/quote/analysis files. Local disk is the working set;
// an optional S3-compatible bucket provides durable backup with local cache
// eviction for the bulky audio files.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/config"
)

// Store abstracts artifact storage backends.
type Store interface {
	// Save stores an artifact. Keys are paths relative to the output dir,
	// e.g. "My_Video_transcript.txt" or "chunks/My_Video_chunk_1.mp3".
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// LocalPath returns the local filesystem path if the artifact exists on
	// disk, "" otherwise.
	LocalPath(key string) string

	// URL returns a presigned URL for the artifact. "" for local-only.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the artifact.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether the artifact exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// New creates a Store based on config. Returns the store and any background
// services (pruner) the caller must Start/Stop. Errors out when S3 is
// configured but unreachable.
func New(cfg config.S3Config, outputDir string, log zerolog.Logger) (Store, []BackgroundService, error) {
	if !cfg.Enabled() {
		return NewLocalStore(outputDir), nil, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCache {
		return s3store, nil, nil
	}

	local := NewLocalStore(outputDir)
	tiered := NewTieredStore(s3store, local, log)

	var services []BackgroundService
	if cfg.CacheRetention > 0 || cfg.CacheMaxGB > 0 {
		services = append(services, NewCachePruner(outputDir, cfg.CacheRetention, cfg.CacheMaxGB, s3store, log))
	}
	return tiered, services, nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}
