package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/media"
)

// Chunk is a cut piece of the source audio on disk.
type Chunk struct {
	Index int
	Path  string
	Start float64 // offset of the chunk within the source, seconds
	End   float64
}

// Splitter cuts planned spans out of a source file with ffmpeg.
type Splitter struct {
	runner media.Runner
	log    zerolog.Logger
}

func NewSplitter(runner media.Runner, log zerolog.Logger) *Splitter {
	return &Splitter{
		runner: runner,
		log:    log.With().Str("component", "splitter").Logger(),
	}
}

// Split cuts each span of src into workDir as {base}_chunk_{n}.mp3, numbered
// from 1. On any cut failure the chunks written so far are removed.
func (s *Splitter) Split(ctx context.Context, src, workDir string, spans []Span) ([]Chunk, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	chunks := make([]Chunk, 0, len(spans))
	for _, sp := range spans {
		dst := filepath.Join(workDir, fmt.Sprintf("%s_chunk_%d.mp3", base, sp.Index+1))
		s.log.Info().
			Int("chunk", sp.Index+1).
			Int("total", len(spans)).
			Float64("start", sp.Start).
			Float64("end", sp.End).
			Msg("cutting chunk")
		if err := media.CutChunk(ctx, s.runner, src, dst, sp.Start, sp.End); err != nil {
			RemoveChunks(chunks, s.log)
			return nil, err
		}
		chunks = append(chunks, Chunk{Index: sp.Index, Path: dst, Start: sp.Start, End: sp.End})
	}
	return chunks, nil
}

// RemoveChunks deletes chunk files, logging rather than failing on errors.
func RemoveChunks(chunks []Chunk, log zerolog.Logger) {
	for _, c := range chunks {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", c.Path).Msg("failed to remove chunk file")
		}
	}
}
