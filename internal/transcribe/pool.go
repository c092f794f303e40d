package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is one model invocation waiting for a worker.
type Job struct {
	ID        string
	AudioPath string
	Opts      TranscribeOpts

	ctx    context.Context
	result chan jobResult
}

type jobResult struct {
	resp *Response
	err  error
}

// QueueStats reports the current state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Busy      int64 `json:"busy"`
	Workers   int   `json:"workers"`
	Capacity  int   `json:"capacity"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// PoolOptions configures the transcription worker pool.
type PoolOptions struct {
	Factory   ProviderFactory
	Workers   int
	QueueSize int
	Timeout   time.Duration // per model call; 0 = no limit
	Log       zerolog.Logger
}

// Pool owns the loaded models. Each worker holds its own Provider, so a
// provider is never entered by two requests at once.
type Pool struct {
	jobs      chan Job
	providers []Provider
	opts      PoolOptions
	log       zerolog.Logger
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	busy      atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool builds one provider per worker. If any provider fails to load,
// the ones already built are closed and the error is returned.
func NewPool(opts PoolOptions) (*Pool, error) {
	providers := make([]Provider, 0, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		p, err := opts.Factory(i)
		if err != nil {
			closeProviders(providers)
			return nil, fmt.Errorf("load provider for worker %d: %w", i, err)
		}
		providers = append(providers, p)
	}
	return &Pool{
		jobs:      make(chan Job, opts.QueueSize),
		providers: providers,
		opts:      opts,
		log:       opts.Log,
	}, nil
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i, prov := range p.providers {
		p.wg.Add(1)
		go p.worker(i, prov)
	}
	p.log.Info().
		Int("workers", len(p.providers)).
		Int("queue_size", cap(p.jobs)).
		Str("provider", p.Name()).
		Str("model", p.Model()).
		Msg("transcription worker pool started")
}

// Stop rejects new jobs, lets workers drain the queue, and releases the models.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	closeProviders(p.providers)
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("transcription worker pool stopped")
}

// Submit queues audioPath for transcription and waits for the result.
// It never blocks on a full queue: ErrQueueFull is returned instead.
func (p *Pool) Submit(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	job := Job{
		ID:        uuid.NewString(),
		AudioPath: audioPath,
		Opts:      opts,
		ctx:       ctx,
		result:    make(chan jobResult, 1),
	}
	if err := p.enqueue(job); err != nil {
		return nil, err
	}

	select {
	case r := <-job.result:
		return r.resp, r.err
	case <-ctx.Done():
		// The worker skips or abandons the job; its result channel is buffered.
		return nil, classifyCtxErr(ctx.Err())
	}
}

func (p *Pool) enqueue(j Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return Wrap(KindUnavailable, "submit", ErrPoolStopped)
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		return Wrap(KindUnavailable, "submit", ErrQueueFull)
	}
}

// Stats returns current queue statistics.
func (p *Pool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.jobs),
		Busy:      p.busy.Load(),
		Workers:   len(p.providers),
		Capacity:  cap(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Name returns the provider name shared by all workers.
func (p *Pool) Name() string {
	if len(p.providers) == 0 {
		return ""
	}
	return p.providers[0].Name()
}

// Model returns the model identifier shared by all workers.
func (p *Pool) Model() string {
	if len(p.providers) == 0 {
		return ""
	}
	return p.providers[0].Model()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return len(p.providers) }

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int { return len(p.jobs) }

// Capacity returns the queue size.
func (p *Pool) Capacity() int { return cap(p.jobs) }

// Busy returns the number of workers inside a model call.
func (p *Pool) Busy() int64 { return p.busy.Load() }

func (p *Pool) worker(id int, prov Provider) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for job := range p.jobs {
		if err := job.ctx.Err(); err != nil {
			log.Debug().Str("job_id", job.ID).Msg("job cancelled before start, skipping")
			job.result <- jobResult{err: classifyCtxErr(err)}
			continue
		}

		p.busy.Add(1)
		resp, err := p.run(job, prov)
		p.busy.Add(-1)

		if err != nil {
			p.failed.Add(1)
			log.Warn().Err(err).Str("job_id", job.ID).Msg("transcription failed")
		} else {
			p.completed.Add(1)
		}
		job.result <- jobResult{resp: resp, err: err}
	}
}

func (p *Pool) run(job Job, prov Provider) (*Response, error) {
	ctx := job.ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	resp, err := prov.Transcribe(ctx, job.AudioPath, job.Opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, classifyCtxErr(ctxErr)
		}
		return nil, Wrap(KindModel, prov.Name(), err)
	}
	if resp == nil {
		resp = &Response{}
	}
	return resp, nil
}

func classifyCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, "transcribe", err)
	}
	return Wrap(KindUnavailable, "transcribe", err)
}

func closeProviders(providers []Provider) {
	for _, p := range providers {
		if c, ok := p.(Closer); ok {
			c.Close()
		}
	}
}
