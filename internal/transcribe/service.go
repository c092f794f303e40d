package transcribe

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/transcriber/internal/metrics"
)

// Upload is one audio file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// Result is what the endpoint returns for a successful transcription.
type Result struct {
	Transcription string `json:"transcription"`
}

// ServiceOptions configures the transcription pipeline.
type ServiceOptions struct {
	Pool            *Pool
	TempDir         string
	TempSuffix      string
	Language        string
	Temperature     float64
	PreprocessAudio bool
	RequestTimeout  time.Duration // bounds temp file lifetime: queue wait + model call; 0 = no limit
	Log             zerolog.Logger
}

// Service runs the per-request pipeline: temp file, model call, join, cleanup.
type Service struct {
	pool *Pool
	opts ServiceOptions
	log  zerolog.Logger
}

// NewService creates the transcription pipeline around a started pool.
func NewService(opts ServiceOptions) *Service {
	if opts.TempSuffix == "" {
		opts.TempSuffix = defaultTempSuffix
	}
	return &Service{
		pool: opts.Pool,
		opts: opts,
		log:  opts.Log,
	}
}

// Transcribe writes the upload to a temp file, runs it through the model and
// returns the joined segment text. The temp file is removed before Transcribe
// returns, whether or not the model call succeeded, and never outlives
// RequestTimeout.
func (s *Service) Transcribe(ctx context.Context, up Upload) (*Result, error) {
	start := time.Now()
	provider := s.pool.Name()

	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	res, err := s.transcribe(ctx, up)

	kind := "ok"
	if err != nil {
		kind = string(KindOf(err))
	}
	metrics.TranscriptionsTotal.WithLabelValues(provider, kind).Inc()
	metrics.TranscriptionDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	return res, err
}

func (s *Service) transcribe(ctx context.Context, up Upload) (*Result, error) {
	path, release, err := WriteTemp(s.opts.TempDir, s.opts.TempSuffix, up.Data)
	if err != nil {
		return nil, err
	}
	defer release()

	metrics.UploadBytes.Observe(float64(len(up.Data)))

	audioPath := path
	if s.opts.PreprocessAudio {
		processed, cleanup, err := Preprocess(ctx, path)
		if err != nil {
			s.log.Warn().Err(err).Str("filename", up.Filename).Msg("preprocessing failed, using original audio")
		} else {
			audioPath = processed
			defer cleanup()
		}
	}

	resp, err := s.pool.Submit(ctx, audioPath, TranscribeOpts{
		Language:    s.opts.Language,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("filename", up.Filename).
		Int("bytes", len(up.Data)).
		Int("segments", len(resp.Segments)).
		Float64("audio_seconds", resp.Duration).
		Msg("transcription complete")

	return &Result{Transcription: resp.Text()}, nil
}

// Pool returns the worker pool backing the service.
func (s *Service) Pool() *Pool { return s.pool }
