// Package transcribe turns audio files into stamped transcripts through a
// speech-capable language model, handling chunked sources concurrently.
package transcribe

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/audio"
	"golang.org/x/sync/errgroup"
)

// DefaultPrompt asks the model for the line format the rest of the pipeline
// parses. Stamps are chunk-relative; stitching shifts them later.
const DefaultPrompt = `Transcribe this audio recording completely and accurately.

Format every line as:
[MM:SS] Speaker: Text

Rules:
- Timestamps are relative to the start of THIS audio file.
- Label distinct voices as Speaker 1, Speaker 2, and so on, or use real
  names if they are spoken aloud.
- Transcribe everything that is said. Do not summarize or skip sections.
- Output only transcript lines, no commentary before or after.`

// ModelClient is the slice of the model API the driver needs. Satisfied by
// *gemini.Client; tests substitute fakes.
type ModelClient interface {
	GenerateFromAudio(ctx context.Context, prompt, audioPath string) (string, error)
	Model() string
}

// ChunkError tags a model failure with the chunk it came from.
type ChunkError struct {
	Chunk int // zero-based chunk index
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("transcribe chunk %d: %v", e.Chunk+1, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Options configures a Driver.
type Options struct {
	Client  ModelClient
	Policy  *CallPolicy
	Workers int    // concurrent chunk transcriptions
	Prompt  string // transcription prompt; DefaultPrompt when empty
	Log     zerolog.Logger
}

// Driver transcribes whole files or chunk sets. Chunked transcription is
// all-or-nothing: one failed chunk fails the source, and in-flight chunk
// calls are cancelled.
type Driver struct {
	client  ModelClient
	policy  *CallPolicy
	workers int
	prompt  string
	log     zerolog.Logger

	completed atomic.Int64
	failed    atomic.Int64
}

func NewDriver(opts Options) *Driver {
	prompt := opts.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Driver{
		client:  opts.Client,
		policy:  opts.Policy,
		workers: workers,
		prompt:  prompt,
		log:     opts.Log.With().Str("component", "transcribe").Logger(),
	}
}

// Stats reports lifetime chunk counts for this driver.
func (d *Driver) Stats() (completed, failed int64) {
	return d.completed.Load(), d.failed.Load()
}

// TranscribeFile transcribes a single audio file in one model call.
func (d *Driver) TranscribeFile(ctx context.Context, path string) (string, error) {
	var text string
	err := d.policy.Do(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		text, err = d.client.GenerateFromAudio(ctx, d.prompt, path)
		return err
	})
	if err != nil {
		d.failed.Add(1)
		return "", &ChunkError{Chunk: 0, Err: err}
	}
	d.completed.Add(1)
	return text, nil
}

// TranscribeChunks transcribes every chunk concurrently, then stitches the
// chunk transcripts into one source-relative transcript. The returned
// transcript is complete or the call fails; no partial result is produced.
// onDone, if non-nil, is called after each chunk completes.
func (d *Driver) TranscribeChunks(ctx context.Context, chunks []audio.Chunk, onDone func(done, total int)) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("no chunks to transcribe")
	}

	texts := make([]string, len(chunks))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, c := range chunks {
		g.Go(func() error {
			label := fmt.Sprintf("transcribe chunk %d/%d", i+1, len(chunks))
			d.log.Info().Int("chunk", i+1).Int("total", len(chunks)).Msg("transcribing chunk")

			err := d.policy.Do(gctx, label, func(ctx context.Context) error {
				text, err := d.client.GenerateFromAudio(ctx, d.prompt, c.Path)
				if err != nil {
					return err
				}
				texts[i] = text
				return nil
			})
			if err != nil {
				d.failed.Add(1)
				return &ChunkError{Chunk: i, Err: err}
			}

			d.completed.Add(1)
			n := int(done.Add(1))
			d.log.Info().Int("chunk", i+1).Int("done", n).Int("total", len(chunks)).Msg("chunk transcribed")
			if onDone != nil {
				onDone(n, len(chunks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return Stitch(chunks, texts), nil
}
