package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Archiver copies finished result files into the artifact store. With a
// local-only store this is a no-op: the files already live in the output
// directory the store is rooted at.
type Archiver struct {
	store Store
	dir   string
	log   zerolog.Logger
}

func NewArchiver(store Store, outputDir string, log zerolog.Logger) *Archiver {
	return &Archiver{
		store: store,
		dir:   outputDir,
		log:   log.With().Str("component", "archiver").Logger(),
	}
}

// Archive stores each file under its path relative to the output directory.
// Failures are logged, not returned: archival must never fail a finished job.
func (a *Archiver) Archive(ctx context.Context, paths ...string) {
	if a.store == nil || a.store.Type() == "local" {
		return
	}
	for _, path := range paths {
		key, err := filepath.Rel(a.dir, path)
		if err != nil {
			key = filepath.Base(path)
		}
		key = filepath.ToSlash(key)

		data, err := os.ReadFile(path)
		if err != nil {
			a.log.Warn().Err(err).Str("path", path).Msg("cannot read artifact for archival")
			continue
		}
		if err := a.store.Save(ctx, key, data, contentType(path)); err != nil {
			a.log.Warn().Err(err).Str("key", key).Msg("artifact archival failed")
			continue
		}
		a.log.Debug().Str("key", key).Msg("artifact archived")
	}
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
