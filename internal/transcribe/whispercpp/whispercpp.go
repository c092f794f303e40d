//go:build whispercpp

// Package whispercpp runs whisper.cpp models in-process through the cgo
// bindings. Build with -tags whispercpp and a libwhisper on the linker path.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/snarg/transcriber/internal/audio"
	"github.com/snarg/transcriber/internal/transcribe"
)

// Available reports whether this binary was built with whisper.cpp support.
const Available = true

// Provider owns one loaded whisper.cpp model. The bindings keep decoder state
// on the model, so a Provider must not be shared between workers.
type Provider struct {
	model     whisper.Model
	modelPath string
	threads   uint
}

// Load reads the ggml model at modelPath. threads = 0 keeps the library default.
func Load(modelPath string, threads uint) (*Provider, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", modelPath, err)
	}
	return &Provider{model: model, modelPath: modelPath, threads: threads}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "whispercpp" }

// Model returns the model file name.
func (p *Provider) Model() string { return filepath.Base(p.modelPath) }

// Close releases the native model.
func (p *Provider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe decodes the WAV at audioPath and runs full inference on it.
// Inference itself cannot be interrupted; ctx is checked before it starts.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts transcribe.TranscribeOpts) (*transcribe.Response, error) {
	samples, _, err := audio.DecodeWAV(audioPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	if opts.Language != "" {
		if err := wctx.SetLanguage(opts.Language); err != nil {
			return nil, fmt.Errorf("set language %q: %w", opts.Language, err)
		}
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	// opts.Temperature is ignored: this bindings version has no setter for it.
	if err := wctx.Process(samples, nil, nil); err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}

	var segments []transcribe.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next segment: %w", err)
		}
		segments = append(segments, transcribe.Segment{
			Text:  seg.Text,
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
		})
	}

	return &transcribe.Response{
		Segments: segments,
		Language: wctx.Language(),
		Duration: float64(len(samples)) / audio.SampleRate,
	}, nil
}
