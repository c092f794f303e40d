package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, rate, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func checkSamples(t *testing.T, got []float32, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i])-want[i]) > tol {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestDecodeWAV_Mono(t *testing.T) {
	path := writeWAV(t, SampleRate, 1, []int{0, 16384, -16384, 32767})

	samples, format, err := DecodeWAV(path)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if want := (Format{SampleRate: 16000, Channels: 1, BitDepth: 16}); format != want {
		t.Errorf("format = %+v, want %+v", format, want)
	}
	checkSamples(t, samples, []float64{0, 0.5, -0.5, 1.0}, 1e-4)
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	// Two frames: (16384, 0) and (-16384, -16384)
	path := writeWAV(t, SampleRate, 2, []int{16384, 0, -16384, -16384})

	samples, format, err := DecodeWAV(path)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if format.Channels != 2 {
		t.Errorf("Channels = %d, want 2", format.Channels)
	}
	checkSamples(t, samples, []float64{0.25, -0.5}, 1e-6)
}

func TestDecodeWAV_WrongSampleRate(t *testing.T) {
	path := writeWAV(t, 48000, 2, []int{1, 2, 3, 4})

	_, format, err := DecodeWAV(path)
	if err == nil {
		t.Fatal("expected error for 48 kHz input")
	}
	if format.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", format.SampleRate)
	}
}

func TestDecodeWAV_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := DecodeWAV(path)
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestDecodeWAV_Missing(t *testing.T) {
	if _, _, err := DecodeWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}
