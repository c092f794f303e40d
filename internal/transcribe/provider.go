package transcribe

import (
	"context"
	"strings"

	"github.com/samber/lo"
)

// Provider is the interface for speech-to-text backends.
// A Provider instance is owned by a single pool worker and is never called
// concurrently.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "whisper", "openai", "whispercpp"
	Model() string // model identifier for logs and health
}

// Closer is implemented by providers that hold native resources (loaded models).
type Closer interface {
	Close() error
}

// ProviderFactory builds the provider owned by worker id.
type ProviderFactory func(id int) (Provider, error)

// TranscribeOpts are per-call decoding options.
type TranscribeOpts struct {
	Language    string
	Temperature float64
}

// Response is the common transcription result from any provider.
type Response struct {
	Segments []Segment
	Language string
	Duration float64 // audio duration in seconds
}

// Segment is a timed span of recognized speech.
type Segment struct {
	Text  string
	Start float64 // seconds
	End   float64 // seconds
}

// Text joins segment texts with single spaces, in order. Segment text is not
// trimmed; an empty segment list yields "".
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return JoinSegments(r.Segments)
}

// JoinSegments concatenates segment texts with a single space separator.
func JoinSegments(segments []Segment) string {
	return strings.Join(lo.Map(segments, func(s Segment, _ int) string {
		return s.Text
	}), " ")
}
