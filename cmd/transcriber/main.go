package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	transcriber "github.com/snarg/transcriber"
	"github.com/snarg/transcriber/internal/api"
	"github.com/snarg/transcriber/internal/config"
	"github.com/snarg/transcriber/internal/metrics"
	"github.com/snarg/transcriber/internal/storage"
	"github.com/snarg/transcriber/internal/transcribe"
	"github.com/snarg/transcriber/internal/transcribe/whispercpp"
)

// Set via -ldflags "-X main.version=..."
var version = "dev"

var overrides config.Overrides

var rootCmd = &cobra.Command{
	Use:   "transcriber",
	Short: "HTTP speech-to-text service",
	Long: `Accepts audio uploads on POST /transcribe and returns the recognized text.
Configuration comes from environment variables (optionally a .env file);
flags override the environment.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(overrides)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	f.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	f.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	f.StringVar(&overrides.Provider, "provider", "", "whisper, openai or whispercpp (overrides STT_PROVIDER)")
	f.StringVar(&overrides.Language, "language", "", "transcription language (overrides TRANSCRIBE_LANGUAGE)")
	f.IntVar(&overrides.Workers, "workers", 0, "model workers (overrides WORKERS)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ov config.Overrides) error {
	startTime := time.Now()

	// Config
	cfg, err := config.Load(ov)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("failed to load config")
		return err
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("provider", cfg.Provider).
		Str("model_size", cfg.ModelSize).
		Str("device", cfg.ModelDevice).
		Str("compute_type", cfg.ModelComputeType).
		Str("language", cfg.Language).
		Msg("transcriber starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Models: one provider per worker
	poolLog := log.With().Str("component", "transcribe").Logger()
	pool, err := transcribe.NewPool(transcribe.PoolOptions{
		Factory:   providerFactory(cfg),
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Timeout:   cfg.TranscribeTimeout,
		Log:       poolLog,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to load model")
		return err
	}
	pool.Start()
	defer pool.Stop()

	if cfg.PreprocessAudio && !transcribe.CheckSox() {
		log.Warn().Msg("PREPROCESS_AUDIO is set but sox was not found in PATH; uploads are passed through unchanged")
	}

	// Uploads go to a directory owned by this service, never straight into a shared /tmp
	tempDir, err := storage.ServiceTempDir(cfg.TempDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to prepare temp directory")
		return err
	}
	log.Info().Str("temp_dir", tempDir).Msg("upload temp directory ready")

	// Orphaned temp files from a previous crash
	if cfg.TempSweepAge > 0 {
		sweeper := storage.NewTempSweeper(tempDir, transcribe.TempFileGlobs(cfg.TempSuffix), cfg.TempSweepAge, cfg.TempSweepInterval, log)
		sweeper.Start()
		defer sweeper.Stop()
	}

	svc := transcribe.NewService(transcribe.ServiceOptions{
		Pool:            pool,
		TempDir:         tempDir,
		TempSuffix:      cfg.TempSuffix,
		Language:        cfg.Language,
		Temperature:     cfg.Temperature,
		PreprocessAudio: cfg.PreprocessAudio,
		RequestTimeout:  cfg.RequestTimeout,
		Log:             poolLog,
	})

	if cfg.MetricsEnabled {
		prometheus.MustRegister(metrics.NewCollector(pool))
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:      cfg,
		Transcriber: svc,
		Pool:        pool,
		OpenAPISpec: transcriber.OpenAPISpec,
		Version:     version,
		StartTime:   startTime,
		Log:         httpLog,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout; in-flight requests finish before the pool stops.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("transcriber stopped")
	return serveErr
}

// providerFactory returns the constructor for each worker's model handle.
func providerFactory(cfg *config.Config) transcribe.ProviderFactory {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return func(int) (transcribe.Provider, error) {
			return transcribe.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.TranscribeTimeout), nil
		}
	case config.ProviderWhisperCpp:
		return func(int) (transcribe.Provider, error) {
			p, err := whispercpp.Load(cfg.WhisperCppModel, cfg.WhisperCppThreads)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	default:
		return func(int) (transcribe.Provider, error) {
			return transcribe.NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.TranscribeTimeout), nil
		}
	}
}
