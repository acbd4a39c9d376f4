// Command pullquote turns a YouTube URL plus timestamps into transcript,
// quote, or analysis files. It runs either as a one-shot CLI or as an HTTP
// service with SSE progress streaming.
//
// One-shot:
//
//	pullquote "https://youtu.be/abc" "12:30 - opening remarks" "45:10"
//	pullquote -question "What was said about the budget?" "https://youtu.be/abc"
//	pullquote request.txt
//
// Service:
//
//	pullquote -serve
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/api"
	"github.com/snarg/pullquote/internal/audio"
	"github.com/snarg/pullquote/internal/config"
	"github.com/snarg/pullquote/internal/database"
	"github.com/snarg/pullquote/internal/extract"
	"github.com/snarg/pullquote/internal/fetch"
	"github.com/snarg/pullquote/internal/gemini"
	"github.com/snarg/pullquote/internal/job"
	"github.com/snarg/pullquote/internal/media"
	"github.com/snarg/pullquote/internal/metrics"
	"github.com/snarg/pullquote/internal/notify"
	"github.com/snarg/pullquote/internal/output"
	"github.com/snarg/pullquote/internal/request"
	"github.com/snarg/pullquote/internal/storage"
	"github.com/snarg/pullquote/internal/transcribe"
	"github.com/snarg/pullquote/internal/watch"
)

var version = "dev"

func main() {
	serve := flag.Bool("serve", false, "run the HTTP job service")
	envFile := flag.String("env", "", "path to .env file (default .env)")
	outputDir := flag.String("o", "", "output directory (overrides OUTPUT_DIR)")
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	watchDir := flag.String("watch", "", "request drop directory (overrides WATCH_DIR)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	question := flag.String("question", "", "one-shot: analyze the transcript with this question instead of extracting quotes")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:   *envFile,
		OutputDir: *outputDir,
		HTTPAddr:  *addr,
		LogLevel:  *logLevel,
		WatchDir:  *watchDir,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	log := zerolog.New(out).With().Timestamp().Logger().Level(level)

	if missing := media.CheckTools(); len(missing) > 0 {
		log.Warn().Strs("missing", missing).Msg("required external tools not found in PATH")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		if err := runServe(ctx, cfg, log); err != nil {
			log.Fatal().Err(err).Msg("service failed")
		}
		return
	}

	if err := runOnce(ctx, cfg, log, flag.Args(), *question); err != nil {
		log.Fatal().Err(err).Msg("job failed")
	}
}

// buildPipeline wires the shared job pipeline used by both modes. The
// returned registry and bus back the HTTP layer in serve mode.
func buildPipeline(cfg *config.Config, log zerolog.Logger, rec job.Recorder, notifier job.Notifier, archiver job.Archiver) (*job.Pipeline, *job.Registry, *job.EventBus) {
	runner := media.ExecRunner{}
	client := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.CallTimeout)

	// One rate limiter and retry budget shared by transcription and
	// extraction, so concurrent jobs cannot stack up against the API quota.
	policy := transcribe.NewCallPolicy(cfg.RateLimit, cfg.RateBurst, cfg.RetryAttempts,
		cfg.BackoffMin, cfg.BackoffMax, cfg.CallTimeout, log)
	policy.OnRetry = metrics.ModelCallRetriesTotal.Inc

	reg := job.NewRegistry()
	bus := job.NewEventBus(256)
	pipeline := job.NewPipeline(job.PipelineOptions{
		Config:   cfg,
		Fetcher:  fetch.New(runner, cfg.OutputDir, cfg.AudioQuality, log),
		Splitter: audio.NewSplitter(runner, log),
		Driver: transcribe.NewDriver(transcribe.Options{
			Client:  client,
			Policy:  policy,
			Workers: cfg.TranscribeWorkers,
			Prompt:  cfg.TranscriptionPrompt,
			Log:     log,
		}),
		Extractor: extract.New(extract.Options{
			Client: client,
			Policy: policy,
			Before: cfg.ContextBeforeSeconds,
			After:  cfg.ContextAfterSeconds,
			Log:    log,
		}),
		Writer:   output.NewWriter(cfg.OutputDir),
		Registry: reg,
		Bus:      bus,
		Recorder: rec,
		Notifier: notifier,
		Archiver: archiver,
		Log:      log,
	})
	return pipeline, reg, bus
}

// runOnce executes a single job from command-line arguments: a request file
// path, or a URL followed by timestamp arguments.
func runOnce(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string, question string) error {
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("need a URL or request file (or -serve)")
	}

	store, _, err := storage.New(cfg.S3, cfg.OutputDir, log)
	if err != nil {
		return err
	}
	archiver := storage.NewArchiver(store, cfg.OutputDir, log)
	pipeline, reg, _ := buildPipeline(cfg, log, nil, nil, archiver)

	mode, url, moments, err := parseArgs(args, question)
	if err != nil {
		return err
	}

	j := reg.Create(mode, url, question, moments)
	log.Info().Str("job_id", j.ID).Str("mode", string(mode)).Str("url", url).Msg("starting job")
	if err := pipeline.Run(ctx, j); err != nil {
		return err
	}

	final, _ := reg.Get(j.ID)
	if final.Result != nil {
		for _, p := range []string{final.Result.TranscriptPath, final.Result.QuotesPath, final.Result.AnalysisPath} {
			if p != "" {
				fmt.Println(p)
			}
		}
	}
	return nil
}

// parseArgs turns CLI arguments into a job. A single existing file is read
// as a pasted request block; otherwise the arguments themselves form the
// block, one line each.
func parseArgs(args []string, question string) (job.Mode, string, []request.Moment, error) {
	block := strings.Join(args, "\n")
	if len(args) == 1 {
		if data, err := os.ReadFile(args[0]); err == nil {
			block = string(data)
		}
	}

	if question != "" {
		req, err := request.Parse(block)
		if err == nil {
			return job.ModeAnalysis, req.URL, nil, nil
		}
		// No timestamps needed for analysis; accept a bare URL.
		url := strings.TrimSpace(strings.SplitN(block, "\n", 2)[0])
		if !strings.HasPrefix(url, "http") {
			return "", "", nil, &request.Error{Field: "input", Reason: "no URL found"}
		}
		return job.ModeAnalysis, url, nil, nil
	}

	req, err := request.Parse(block)
	if err != nil {
		// A bare URL with no timestamps is a transcript request.
		if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "http") {
			return job.ModeTranscript, strings.TrimSpace(args[0]), nil, nil
		}
		return "", "", nil, err
	}
	return job.ModeQuotes, req.URL, req.Moments, nil
}

// runServe runs the HTTP job service until the context is cancelled.
func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	startTime := time.Now()
	log.Info().Str("version", version).Msg("pullquote service starting")

	// Optional job history store.
	var db *database.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
	}

	// Optional MQTT completion notifications.
	var notifier *notify.Publisher
	if cfg.MQTTBrokerURL != "" {
		var err error
		notifier, err = notify.Connect(notify.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer notifier.Close()
	}

	store, services, err := storage.New(cfg.S3, cfg.OutputDir, log)
	if err != nil {
		return err
	}
	for _, svc := range services {
		svc.Start()
		defer svc.Stop()
	}
	archiver := storage.NewArchiver(store, cfg.OutputDir, log)

	var rec job.Recorder
	if db != nil {
		rec = db
	}
	var not job.Notifier
	var broker api.BrokerStatus
	if notifier != nil {
		not = notifier
		broker = notifier
	}
	pipeline, reg, bus := buildPipeline(cfg, log, rec, not, archiver)

	// Scrape-time gauges: active jobs, SSE subscribers, db pool state.
	var pool *pgxpool.Pool
	if db != nil {
		pool = db.Pool
	}
	prometheus.MustRegister(metrics.NewCollector(pool, reg, bus))

	// Optional request drop directory.
	if cfg.WatchDir != "" {
		watcher := watch.New(cfg.WatchDir, func(wctx context.Context, req *request.Request) {
			j := reg.Create(job.ModeQuotes, req.URL, "", req.Moments)
			pipeline.Submit(ctx, j)
		}, log)
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("watch dir: %w", err)
		}
		defer watcher.Stop()
	}

	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Registry:  reg,
		Pipeline:  pipeline,
		Bus:       bus,
		DB:        db,
		Broker:    broker,
		Version:   version,
		StartTime: startTime,
		BaseCtx:   ctx,
		Log:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("pullquote service stopped")
	return nil
}
