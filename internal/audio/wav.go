package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleRate is the input rate whisper models are trained on.
const SampleRate = 16000

// ErrNotWAV is returned when the file has no valid RIFF/WAVE header.
var ErrNotWAV = errors.New("not a valid WAV file")

// Format describes a decoded WAV stream.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DecodeWAV reads a PCM WAV file and returns its samples downmixed to mono and
// scaled to [-1, 1]. The file must already be at SampleRate; resampling is left
// to the preprocessing step.
func DecodeWAV(path string) ([]float32, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, Format{}, ErrNotWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode wav: %w", err)
	}

	format := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if format.SampleRate != SampleRate {
		return nil, format, fmt.Errorf("unsupported sample rate %d Hz (want %d)", format.SampleRate, SampleRate)
	}
	if format.Channels < 1 || format.BitDepth < 16 {
		return nil, format, fmt.Errorf("unsupported wav layout: %d channels, %d bits", format.Channels, format.BitDepth)
	}

	return toMonoFloat32(buf, format), format, nil
}

// toMonoFloat32 averages interleaved channels into one and normalizes by the
// full-scale value of the source bit depth.
func toMonoFloat32(buf *goaudio.IntBuffer, format Format) []float32 {
	scale := float64(int64(1) << (format.BitDepth - 1))
	frames := len(buf.Data) / format.Channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < format.Channels; c++ {
			sum += float64(buf.Data[i*format.Channels+c])
		}
		out[i] = float32(sum / float64(format.Channels) / scale)
	}
	return out
}
