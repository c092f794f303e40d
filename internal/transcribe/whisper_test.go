package transcribe

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeAudio(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWhisperClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for field, want := range map[string]string{
			"model":           "Systran/faster-whisper-base",
			"language":        "pt",
			"response_format": "verbose_json",
			"temperature":     "0.00",
		} {
			if got := r.FormValue(field); got != want {
				t.Errorf("%s = %q, want %q", field, got, want)
			}
		}

		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		if hdr.Filename != "clip.wav" {
			t.Errorf("filename = %q, want clip.wav", hdr.Filename)
		}
		if string(body) != "audio-bytes" {
			t.Errorf("file body = %q, want audio-bytes", body)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"Olá mundo","language":"pt","duration":1.5,
			"segments":[{"text":"Olá","start":0,"end":0.7},{"text":"mundo","start":0.7,"end":1.5}]}`)
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "Systran/faster-whisper-base", 5*time.Second)
	resp, err := wc.Transcribe(context.Background(), writeAudio(t, "audio-bytes"), TranscribeOpts{Language: "pt"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got := resp.Text(); got != "Olá mundo" {
		t.Errorf("Text = %q, want %q", got, "Olá mundo")
	}
	if len(resp.Segments) != 2 {
		t.Errorf("segments = %d, want 2", len(resp.Segments))
	}
	if resp.Language != "pt" {
		t.Errorf("Language = %q, want pt", resp.Language)
	}
	if math.Abs(resp.Duration-1.5) > 1e-9 {
		t.Errorf("Duration = %f, want 1.5", resp.Duration)
	}
	if wc.Name() != "whisper" || wc.Model() != "Systran/faster-whisper-base" {
		t.Errorf("Name/Model = %q/%q", wc.Name(), wc.Model())
	}
}

func TestWhisperClient_TextOnlyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"só texto"}`)
	}))
	defer srv.Close()

	resp, err := NewWhisperClient(srv.URL, "", time.Second).
		Transcribe(context.Background(), writeAudio(t, "x"), TranscribeOpts{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := resp.Text(); got != "só texto" {
		t.Errorf("Text = %q, want %q", got, "só texto")
	}
}

func TestWhisperClient_NoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"","segments":[]}`)
	}))
	defer srv.Close()

	resp, err := NewWhisperClient(srv.URL, "", time.Second).
		Transcribe(context.Background(), writeAudio(t, "x"), TranscribeOpts{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(resp.Segments) != 0 {
		t.Errorf("segments = %d, want 0", len(resp.Segments))
	}
	if resp.Text() != "" {
		t.Errorf("Text = %q, want empty", resp.Text())
	}
}

func TestWhisperClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid data found when processing input", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewWhisperClient(srv.URL, "", time.Second).
		Transcribe(context.Background(), writeAudio(t, "x"), TranscribeOpts{})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("err = %v, want status 400 error", err)
	}
}

func TestWhisperClient_MissingFile(t *testing.T) {
	_, err := NewWhisperClient("http://127.0.0.1:0", "", time.Second).
		Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), TranscribeOpts{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}
