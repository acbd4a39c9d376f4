// Package fetch resolves a source URL to a locally cached audio file.
package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/media"
)

// Source is a resolved audio source. Immutable after creation.
type Source struct {
	URL         string
	VideoID     string
	LocalPath   string
	Title       string
	Description string
	Duration    float64 // seconds
	SizeBytes   int64
	Cached      bool // true when the download was skipped
}

// Error is a download or network failure. Fetch does not retry; retries for
// user-facing flows live above this layer.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Sanitize derives the cache key from a video title. Two sources whose
// titles sanitize identically alias to one cache entry; that matches the
// original layout on disk and is accepted (see DESIGN.md).
func Sanitize(title string) string {
	return unsafeChars.ReplaceAllString(title, "_")
}

// Fetcher downloads audio into an output directory, reusing files already
// present under the same sanitized title.
type Fetcher struct {
	runner  media.Runner
	dir     string
	quality string
	log     zerolog.Logger
}

func New(runner media.Runner, outputDir, quality string, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		runner:  runner,
		dir:     outputDir,
		quality: quality,
		log:     log.With().Str("component", "fetch").Logger(),
	}
}

// Fetch resolves url to a local mp3. Metadata is always queried (it carries
// the title that keys the cache); the download itself is skipped when a file
// for the sanitized title already exists.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Source, error) {
	info, err := media.FetchInfo(ctx, f.runner, url)
	if err != nil {
		f.log.Error().Err(err).Str("url", url).Msg("metadata lookup failed")
		return nil, &Error{URL: url, Err: err}
	}

	key := Sanitize(info.Title)
	path := filepath.Join(f.dir, key+".mp3")

	cached := false
	if _, err := os.Stat(path); err == nil {
		f.log.Info().Str("path", path).Msg("audio file already exists, skipping download")
		cached = true
	} else {
		if err := os.MkdirAll(f.dir, 0o755); err != nil {
			return nil, &Error{URL: url, Err: fmt.Errorf("create output dir: %w", err)}
		}
		f.log.Info().Str("url", url).Str("title", info.Title).Msg("downloading audio")
		if err := media.DownloadAudio(ctx, f.runner, url, path, f.quality); err != nil {
			f.log.Error().Err(err).Str("url", url).Msg("download failed")
			return nil, &Error{URL: url, Err: err}
		}
		if _, err := os.Stat(path); err != nil {
			return nil, &Error{URL: url, Err: fmt.Errorf("download produced no file at %s", path)}
		}
		f.log.Info().Str("path", path).Msg("audio downloaded")
	}

	fi, err := media.Probe(ctx, f.runner, path)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	return &Source{
		URL:         url,
		VideoID:     info.ID,
		LocalPath:   path,
		Title:       info.Title,
		Description: info.Description,
		Duration:    fi.Duration,
		SizeBytes:   fi.SizeBytes,
		Cached:      cached,
	}, nil
}
