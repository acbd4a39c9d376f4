package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/audio"
	"github.com/snarg/pullquote/internal/config"
	"github.com/snarg/pullquote/internal/extract"
	"github.com/snarg/pullquote/internal/fetch"
	"github.com/snarg/pullquote/internal/output"
	"github.com/snarg/pullquote/internal/request"
	"github.com/snarg/pullquote/internal/transcribe"
)

// fakeRunner emulates yt-dlp/ffprobe/ffmpeg for pipeline tests.
type fakeRunner struct {
	infoJSON  string
	probeJSON string
	downloads atomic.Int32
	cuts      atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	switch name {
	case "yt-dlp":
		f.downloads.Add(1)
		// The output template ends in ".%(ext)s"; the extractor lands an mp3.
		var out string
		for i, a := range args {
			if a == "--output" {
				out = args[i+1]
			}
		}
		path := strings.Replace(out, ".%(ext)s", ".mp3", 1)
		return os.WriteFile(path, []byte("mp3data"), 0o644)
	case "ffmpeg":
		f.cuts.Add(1)
		dst := args[len(args)-1]
		return os.WriteFile(dst, []byte("chunkdata"), 0o644)
	}
	return errors.New("unexpected command " + name)
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	switch name {
	case "yt-dlp":
		return []byte(f.infoJSON), nil
	case "ffprobe":
		return []byte(f.probeJSON), nil
	}
	return nil, errors.New("unexpected command " + name)
}

// fakeModel serves both transcription and text extraction calls.
type fakeModel struct {
	transcript string
	quoteText  string
	audioCalls atomic.Int32
	textCalls  atomic.Int32
}

func (f *fakeModel) Model() string { return "fake-model" }

func (f *fakeModel) GenerateFromAudio(ctx context.Context, prompt, path string) (string, error) {
	f.audioCalls.Add(1)
	return f.transcript, nil
}

func (f *fakeModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.textCalls.Add(1)
	return f.quoteText, nil
}

type testEnv struct {
	pipeline *Pipeline
	registry *Registry
	bus      *EventBus
	runner   *fakeRunner
	model    *fakeModel
	cfg      *config.Config
}

func newTestEnv(t *testing.T, durationSec float64) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		OutputDir:            dir,
		AudioQuality:         "192",
		ChunkLengthMinutes:   30,
		OverlapSeconds:       30,
		MaxDurationMinutes:   50,
		MaxFileSizeMB:        100,
		TranscribeWorkers:    2,
		RetryAttempts:        2,
		RateLimit:            10000,
		RateBurst:            100,
		ContextBeforeSeconds: 30,
		ContextAfterSeconds:  90,
		CallTimeout:          time.Second,
		BackoffMin:           time.Millisecond,
		BackoffMax:           2 * time.Millisecond,
	}

	runner := &fakeRunner{
		infoJSON:  `{"id":"vid1","title":"Test Video","description":"a show","duration":` + itoa(durationSec) + `}`,
		probeJSON: `{"format":{"duration":"` + itoa(durationSec) + `","size":"1048576"}}`,
	}
	model := &fakeModel{
		transcript: "[00:00] Host: Welcome.\n[01:00] Guest: Glad to be here.",
		quoteText:  "Guest: \"Glad to be here.\"",
	}

	log := zerolog.Nop()
	policy := transcribe.NewCallPolicy(cfg.RateLimit, cfg.RateBurst, cfg.RetryAttempts,
		cfg.BackoffMin, cfg.BackoffMax, cfg.CallTimeout, log)
	registry := NewRegistry()
	bus := NewEventBus(64)

	pipeline := NewPipeline(PipelineOptions{
		Config:   cfg,
		Fetcher:  fetch.New(runner, dir, cfg.AudioQuality, log),
		Splitter: audio.NewSplitter(runner, log),
		Driver: transcribe.NewDriver(transcribe.Options{
			Client: model, Policy: policy, Workers: cfg.TranscribeWorkers, Log: log,
		}),
		Extractor: extract.New(extract.Options{
			Client: model, Policy: policy,
			Before: cfg.ContextBeforeSeconds, After: cfg.ContextAfterSeconds, Log: log,
		}),
		Writer:   output.NewWriter(dir),
		Registry: registry,
		Bus:      bus,
		Log:      log,
	})
	return &testEnv{pipeline: pipeline, registry: registry, bus: bus, runner: runner, model: model, cfg: cfg}
}

func itoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func TestPipelineQuotesEndToEnd(t *testing.T) {
	env := newTestEnv(t, 600)

	j := env.registry.Create(ModeQuotes, "https://youtu.be/vid1", "",
		[]request.Moment{{Seconds: 60, Clock: "01:00", Description: "the guest"}})

	if err := env.pipeline.Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := env.registry.Get(j.ID)
	if got.State != StateDone {
		t.Fatalf("state = %s, error = %s", got.State, got.Error)
	}
	if got.Result == nil || got.Result.QuotesPath == "" {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.Result.Chunks != 1 {
		t.Errorf("chunks = %d, want 1 (short source, no split)", got.Result.Chunks)
	}
	data, err := os.ReadFile(got.Result.QuotesPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Glad to be here") {
		t.Errorf("quotes file:\n%s", data)
	}
	if env.model.audioCalls.Load() != 1 || env.model.textCalls.Load() != 1 {
		t.Errorf("model calls = %d audio / %d text, want 1/1",
			env.model.audioCalls.Load(), env.model.textCalls.Load())
	}
}

func TestPipelineChunksLongSource(t *testing.T) {
	env := newTestEnv(t, 3600) // 60 min exceeds the 50 min limit

	j := env.registry.Create(ModeTranscript, "https://youtu.be/vid1", "", nil)
	if err := env.pipeline.Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := env.registry.Get(j.ID)
	if got.State != StateDone {
		t.Fatalf("state = %s, error = %s", got.State, got.Error)
	}
	if got.Result.Chunks != 2 {
		t.Errorf("chunks = %d, want 2 for 3600s at 1800s with 30s overlap", got.Result.Chunks)
	}
	if env.runner.cuts.Load() != 2 {
		t.Errorf("ffmpeg cuts = %d, want 2", env.runner.cuts.Load())
	}
	// Chunk files are removed after transcription by default.
	left, _ := filepath.Glob(filepath.Join(env.cfg.OutputDir, "chunks", "*.mp3"))
	if len(left) != 0 {
		t.Errorf("chunk files left behind: %v", left)
	}
}

func TestPipelineFixedCountChunking(t *testing.T) {
	env := newTestEnv(t, 3900) // 65 min at a 30 min target splits into 3
	env.cfg.ChunkPolicy = config.ChunkPolicyFixed
	env.cfg.BoundaryNudgeSecs = 10

	j := env.registry.Create(ModeTranscript, "https://youtu.be/vid1", "", nil)
	if err := env.pipeline.Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := env.registry.Get(j.ID)
	if got.State != StateDone {
		t.Fatalf("state = %s, error = %s", got.State, got.Error)
	}
	if got.Result.Chunks != 3 {
		t.Errorf("chunks = %d, want 3 equal chunks", got.Result.Chunks)
	}
	if env.runner.cuts.Load() != 3 {
		t.Errorf("ffmpeg cuts = %d, want 3", env.runner.cuts.Load())
	}
}

func TestPipelineTranscriptCacheSkipsTranscription(t *testing.T) {
	env := newTestEnv(t, 600)

	first := env.registry.Create(ModeTranscript, "https://youtu.be/vid1", "", nil)
	if err := env.pipeline.Run(context.Background(), first); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	calls := env.model.audioCalls.Load()

	second := env.registry.Create(ModeTranscript, "https://youtu.be/vid1", "", nil)
	if err := env.pipeline.Run(context.Background(), second); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	got, _ := env.registry.Get(second.ID)
	if !got.Result.TranscriptUsed {
		t.Error("second run did not report transcript cache hit")
	}
	if env.model.audioCalls.Load() != calls {
		t.Errorf("audio calls grew from %d to %d on cached run", calls, env.model.audioCalls.Load())
	}
}

func TestPipelineInvalidMomentFailsBeforeModelCalls(t *testing.T) {
	env := newTestEnv(t, 600)

	j := env.registry.Create(ModeQuotes, "https://youtu.be/vid1", "",
		[]request.Moment{{Seconds: 9000, Clock: "2:30:00"}})

	err := env.pipeline.Run(context.Background(), j)
	var ve *request.Error
	if !errors.As(err, &ve) {
		t.Fatalf("want *request.Error, got %v", err)
	}
	got, _ := env.registry.Get(j.ID)
	if got.State != StateFailed {
		t.Errorf("state = %s, want failed", got.State)
	}
	if n := env.model.audioCalls.Load() + env.model.textCalls.Load(); n != 0 {
		t.Errorf("model called %d times, want 0", n)
	}
}

func TestPipelinePublishesLifecycleEvents(t *testing.T) {
	env := newTestEnv(t, 600)
	ch, cancel := env.bus.Subscribe(Filter{})
	defer cancel()

	j := env.registry.Create(ModeTranscript, "https://youtu.be/vid1", "", nil)
	if err := env.pipeline.Run(context.Background(), j); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var types []string
	for {
		select {
		case e := <-ch:
			types = append(types, e.Type)
			continue
		default:
		}
		break
	}
	joined := strings.Join(types, ",")
	if !strings.Contains(joined, "stage") || !strings.Contains(joined, "job_done") {
		t.Errorf("event types = %v", types)
	}
}

func TestRegistryCancelRunningJob(t *testing.T) {
	env := newTestEnv(t, 600)

	j := env.registry.Create(ModeTranscript, "https://youtu.be/vid1", "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = env.pipeline.Run(ctx, j)

	got, _ := env.registry.Get(j.ID)
	if got.State != StateCancelled && got.State != StateFailed {
		t.Errorf("state = %s, want cancelled or failed", got.State)
	}
}
