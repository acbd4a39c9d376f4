package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/audio"
	"github.com/snarg/pullquote/internal/config"
	"github.com/snarg/pullquote/internal/extract"
	"github.com/snarg/pullquote/internal/fetch"
	"github.com/snarg/pullquote/internal/metrics"
	"github.com/snarg/pullquote/internal/output"
	"github.com/snarg/pullquote/internal/request"
	"github.com/snarg/pullquote/internal/transcribe"
)

// Recorder persists finished jobs to job history. Implemented by the
// database layer; nil when no database is configured.
type Recorder interface {
	RecordJob(ctx context.Context, j Job) error
}

// Notifier announces terminal job states to external consumers (MQTT).
type Notifier interface {
	NotifyJob(j Job)
}

// Archiver copies result files to secondary storage.
type Archiver interface {
	Archive(ctx context.Context, paths ...string)
}

// Pipeline runs jobs end to end. One Pipeline serves the whole process;
// jobs run on their own goroutines and share the model call policy through
// the driver and extractor.
type Pipeline struct {
	cfg       *config.Config
	fetcher   *fetch.Fetcher
	splitter  *audio.Splitter
	driver    *transcribe.Driver
	extractor *extract.Extractor
	writer    *output.Writer
	reg       *Registry
	bus       *EventBus
	rec       Recorder
	notifier  Notifier
	archiver  Archiver
	log       zerolog.Logger
}

// PipelineOptions wires a Pipeline. Recorder, Notifier, and Archiver are
// optional.
type PipelineOptions struct {
	Config    *config.Config
	Fetcher   *fetch.Fetcher
	Splitter  *audio.Splitter
	Driver    *transcribe.Driver
	Extractor *extract.Extractor
	Writer    *output.Writer
	Registry  *Registry
	Bus       *EventBus
	Recorder  Recorder
	Notifier  Notifier
	Archiver  Archiver
	Log       zerolog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	return &Pipeline{
		cfg:       opts.Config,
		fetcher:   opts.Fetcher,
		splitter:  opts.Splitter,
		driver:    opts.Driver,
		extractor: opts.Extractor,
		writer:    opts.Writer,
		reg:       opts.Registry,
		bus:       opts.Bus,
		rec:       opts.Recorder,
		notifier:  opts.Notifier,
		archiver:  opts.Archiver,
		log:       opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Submit starts a job on its own goroutine. The returned job is already
// registered; progress flows through the event bus.
func (p *Pipeline) Submit(parent context.Context, j *Job) {
	ctx, cancel := context.WithCancel(parent)
	p.reg.attachCancel(j.ID, cancel)
	p.bus.Publish("job_queued", j.ID, map[string]any{"mode": j.Mode, "url": j.URL})

	go func() {
		defer cancel()
		p.run(ctx, j.ID)
	}()
}

// Run executes a job synchronously. Used by the CLI one-shot path.
func (p *Pipeline) Run(ctx context.Context, j *Job) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.reg.attachCancel(j.ID, cancel)
	return p.run(ctx, j.ID)
}

func (p *Pipeline) run(ctx context.Context, id string) error {
	snap, ok := p.reg.Get(id)
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	log := p.log.With().Str("job_id", id).Str("mode", string(snap.Mode)).Logger()

	result, err := p.execute(ctx, log, &snap)
	switch {
	case err == nil:
		p.reg.finish(id, StateDone, "", result)
		metrics.JobsTotal.WithLabelValues(string(snap.Mode), "success").Inc()
		p.bus.Publish("job_done", id, result)
		log.Info().Str("title", result.Title).Msg("job complete")
	case errors.Is(err, context.Canceled):
		p.reg.finish(id, StateCancelled, "cancelled", nil)
		metrics.JobsTotal.WithLabelValues(string(snap.Mode), "cancelled").Inc()
		p.bus.Publish("job_failed", id, map[string]any{"error": "cancelled"})
		log.Info().Msg("job cancelled")
	default:
		p.reg.finish(id, StateFailed, err.Error(), nil)
		metrics.JobsTotal.WithLabelValues(string(snap.Mode), "failure").Inc()
		p.bus.Publish("job_failed", id, map[string]any{"error": err.Error()})
		log.Error().Err(err).Msg("job failed")
	}

	final, _ := p.reg.Get(id)
	if p.notifier != nil {
		p.notifier.NotifyJob(final)
	}
	if p.rec != nil {
		// Recording history must not fail the job; use a fresh context so a
		// cancelled job still lands in history.
		if recErr := p.rec.RecordJob(context.Background(), final); recErr != nil {
			log.Warn().Err(recErr).Msg("failed to record job history")
		}
	}
	return err
}

func (p *Pipeline) stage(id string, state State) {
	p.reg.setState(id, state)
	p.bus.Publish("stage", id, map[string]any{"state": state})
}

func (p *Pipeline) execute(ctx context.Context, log zerolog.Logger, j *Job) (*Result, error) {
	// Fetch (or reuse) the audio.
	p.stage(j.ID, StateFetching)
	src, err := p.fetcher.Fetch(ctx, j.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	if src.Cached {
		metrics.CacheHitsTotal.WithLabelValues("audio").Inc()
	}

	// Validate quote moments against the real duration before any model
	// call is issued.
	if j.Mode == ModeQuotes {
		if err := request.ValidateMoments(j.Moments, src.Duration); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Title:       src.Title,
		VideoID:     src.VideoID,
		Duration:    src.Duration,
		AudioCached: src.Cached,
	}

	transcript, cached := p.writer.CachedTranscript(src)
	if cached {
		metrics.CacheHitsTotal.WithLabelValues("transcript").Inc()
		result.TranscriptUsed = true
		result.TranscriptPath = p.writer.TranscriptPath(src)
		log.Info().Msg("transcript already exists, skipping transcription")
	} else {
		transcript, err = p.transcribe(ctx, log, j, src, result)
		if err != nil {
			return nil, err
		}
		path, err := p.writer.WriteTranscript(src, transcript)
		if err != nil {
			return nil, fmt.Errorf("write transcript: %w", err)
		}
		result.TranscriptPath = path
	}

	switch j.Mode {
	case ModeTranscript:
		// Nothing further.
	case ModeQuotes:
		p.stage(j.ID, StateExtracting)
		blocks, err := p.extractor.Quotes(ctx, transcript, j.Moments, src.Duration, src.Description)
		if err != nil {
			return nil, fmt.Errorf("extract stage: %w", err)
		}
		path, err := p.writer.WriteQuotes(src, blocks)
		if err != nil {
			return nil, fmt.Errorf("write quotes: %w", err)
		}
		result.QuotesPath = path
	case ModeAnalysis:
		p.stage(j.ID, StateExtracting)
		analysis, err := p.extractor.Analyze(ctx, transcript, j.Question, src.Description)
		if err != nil {
			return nil, fmt.Errorf("analysis stage: %w", err)
		}
		path, err := p.writer.WriteAnalysis(src, j.Question, analysis)
		if err != nil {
			return nil, fmt.Errorf("write analysis: %w", err)
		}
		result.AnalysisPath = path
	default:
		return nil, fmt.Errorf("unknown mode %q", j.Mode)
	}

	if p.archiver != nil {
		p.archiver.Archive(ctx, nonEmpty(result.TranscriptPath, result.QuotesPath, result.AnalysisPath)...)
	}
	return result, nil
}

// transcribe produces the full transcript, chunking when the source exceeds
// the single-call limits.
func (p *Pipeline) transcribe(ctx context.Context, log zerolog.Logger, j *Job, src *fetch.Source, result *Result) (string, error) {
	cfg := p.cfg
	sizeMB := float64(src.SizeBytes) / (1024 * 1024)

	if !audio.NeedsSplit(src.Duration/60, sizeMB, float64(cfg.MaxDurationMinutes), float64(cfg.MaxFileSizeMB)) {
		p.stage(j.ID, StateTranscribing)
		result.Chunks = 1
		text, err := p.driver.TranscribeFile(ctx, src.LocalPath)
		if err != nil {
			return "", fmt.Errorf("transcribe stage: %w", err)
		}
		metrics.ChunksTranscribedTotal.Inc()
		return text, nil
	}

	p.stage(j.ID, StateChunking)
	var spans []audio.Span
	var err error
	switch cfg.ChunkPolicy {
	case config.ChunkPolicyFixed:
		spans, err = audio.FixedCountPlan(src.Duration, cfg.ChunkLength(), float64(cfg.BoundaryNudgeSecs))
	default:
		spans, err = audio.OverlapPlan(src.Duration, cfg.ChunkLength(), float64(cfg.OverlapSeconds))
	}
	if err != nil {
		return "", err
	}
	log.Info().Int("chunks", len(spans)).Float64("duration", src.Duration).Msg("chunking source")

	chunkDir := filepath.Join(cfg.OutputDir, "chunks")
	chunks, err := p.splitter.Split(ctx, src.LocalPath, chunkDir, spans)
	if err != nil {
		return "", fmt.Errorf("chunk stage: %w", err)
	}
	if !cfg.KeepChunks {
		defer audio.RemoveChunks(chunks, log)
	}

	p.stage(j.ID, StateTranscribing)
	result.Chunks = len(chunks)
	text, err := p.driver.TranscribeChunks(ctx, chunks, func(done, total int) {
		metrics.ChunksTranscribedTotal.Inc()
		p.bus.Publish("chunk_done", j.ID, map[string]any{"done": done, "total": total})
	})
	if err != nil {
		return "", fmt.Errorf("transcribe stage: %w", err)
	}
	return text, nil
}

func nonEmpty(paths ...string) []string {
	out := paths[:0]
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
