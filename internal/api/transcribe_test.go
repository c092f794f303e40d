package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/transcriber/internal/config"
	"github.com/snarg/transcriber/internal/transcribe"
)

// fakeProvider returns canned segments and records the audio it was given.
type fakeProvider struct {
	mu       sync.Mutex
	segments []transcribe.Segment
	err      error
	block    chan struct{}

	lastPath    string
	lastData    []byte
	lastOpts    transcribe.TranscribeOpts
	existedThen bool
}

func (f *fakeProvider) Transcribe(ctx context.Context, audioPath string, opts transcribe.TranscribeOpts) (*transcribe.Response, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	data, readErr := os.ReadFile(audioPath)

	f.mu.Lock()
	f.lastPath = audioPath
	f.lastData = data
	f.lastOpts = opts
	f.existedThen = readErr == nil
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Response{Segments: f.segments}, nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "base" }

type testEnv struct {
	handler  http.Handler
	provider *fakeProvider
	pool     *transcribe.Pool
	tempDir  string
}

func newTestEnv(t *testing.T, prov *fakeProvider, queueSize int, maxBytes int64) *testEnv {
	t.Helper()
	pool, err := transcribe.NewPool(transcribe.PoolOptions{
		Factory:   func(int) (transcribe.Provider, error) { return prov, nil },
		Workers:   1,
		QueueSize: queueSize,
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	pool.Start()
	t.Cleanup(pool.Stop)

	dir := t.TempDir()
	svc := transcribe.NewService(transcribe.ServiceOptions{
		Pool:     pool,
		TempDir:  dir,
		Language: "pt",
		Log:      zerolog.Nop(),
	})
	srv := NewServer(ServerOptions{
		Config:      &config.Config{MaxUploadBytes: maxBytes},
		Transcriber: svc,
		Pool:        pool,
		OpenAPISpec: []byte("openapi: 3.0.3\n"),
		Version:     "test",
		StartTime:   time.Now(),
		Log:         zerolog.Nop(),
	})
	return &testEnv{handler: srv.Handler(), provider: prov, pool: pool, tempDir: dir}
}

func buildMultipartForm(t *testing.T, fields map[string]string, fileField string, fileData []byte, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if fileData != nil && fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(fileData)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func postTranscribe(t *testing.T, h http.Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files, want 0", len(entries))
	}
}

func TestTranscribe_Success(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{segments: []transcribe.Segment{
		{Text: "Olá"}, {Text: "mundo"},
	}}, 4, 1<<20)

	audio := []byte("RIFF....WAVEfmt fake audio")
	body, ct := buildMultipartForm(t, nil, "file", audio, "hello.wav")
	rec := postTranscribe(t, env.handler, body, ct)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if len(resp) != 1 {
		t.Errorf("response has %d fields, want exactly 1: %v", len(resp), resp)
	}
	if resp["transcription"] != "Olá mundo" {
		t.Errorf("transcription = %q, want %q", resp["transcription"], "Olá mundo")
	}

	p := env.provider
	if !p.existedThen {
		t.Error("temp file did not exist while the model ran")
	}
	if !bytes.Equal(p.lastData, audio) {
		t.Errorf("model saw %d bytes, want the %d uploaded bytes", len(p.lastData), len(audio))
	}
	if p.lastOpts.Language != "pt" {
		t.Errorf("language = %q, want pt", p.lastOpts.Language)
	}
	if _, err := os.Stat(p.lastPath); !os.IsNotExist(err) {
		t.Errorf("temp file %s still exists after response", p.lastPath)
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestTranscribe_NoSegments(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 4, 1<<20)

	body, ct := buildMultipartForm(t, nil, "file", []byte("silence"), "silence.wav")
	rec := postTranscribe(t, env.handler, body, ct)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp transcribe.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if resp.Transcription != "" {
		t.Errorf("transcription = %q, want empty", resp.Transcription)
	}
}

func TestTranscribe_SegmentsNotTrimmed(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{segments: []transcribe.Segment{
		{Text: " Bom dia."}, {Text: " Tudo bem?"},
	}}, 4, 1<<20)

	body, ct := buildMultipartForm(t, nil, "file", []byte("audio"), "a.wav")
	rec := postTranscribe(t, env.handler, body, ct)

	var resp transcribe.Result
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if want := " Bom dia.  Tudo bem?"; resp.Transcription != want {
		t.Errorf("transcription = %q, want %q", resp.Transcription, want)
	}
}

func TestTranscribe_OtherFieldName(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{segments: []transcribe.Segment{{Text: "ok"}}}, 4, 1<<20)

	body, ct := buildMultipartForm(t, map[string]string{"note": "x"}, "audio", []byte("audio"), "a.ogg")
	rec := postTranscribe(t, env.handler, body, ct)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
}

func TestTranscribe_ModelFailure(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{err: errors.New("invalid data found when processing input")}, 4, 1<<20)

	body, ct := buildMultipartForm(t, nil, "file", []byte("not audio at all"), "notes.txt")
	rec := postTranscribe(t, env.handler, body, ct)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if resp.Code != ErrModel {
		t.Errorf("code = %q, want %q", resp.Code, ErrModel)
	}
	if resp.Retryable {
		t.Error("model failure should not be retryable")
	}
	if !env.provider.existedThen {
		t.Error("temp file did not exist while the model ran")
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestTranscribe_NoFile(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 4, 1<<20)

	body, ct := buildMultipartForm(t, map[string]string{"lang": "pt"}, "", nil, "")
	rec := postTranscribe(t, env.handler, body, ct)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != ErrMissingFile {
		t.Errorf("code = %q, want %q", resp.Code, ErrMissingFile)
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestTranscribe_AmbiguousFiles(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 4, 1<<20)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range []string{"a", "b"} {
		part, _ := w.CreateFormFile(name, name+".wav")
		part.Write([]byte("audio"))
	}
	w.Close()

	rec := postTranscribe(t, env.handler, body, w.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribe_NotMultipart(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 4, 1<<20)

	rec := postTranscribe(t, env.handler, bytes.NewBufferString("not multipart"), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTranscribe_TooLarge(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 4, 64)

	body, ct := buildMultipartForm(t, nil, "file", bytes.Repeat([]byte{0x42}, 4096), "big.wav")
	rec := postTranscribe(t, env.handler, body, ct)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	assertTempDirEmpty(t, env.tempDir)
}

func TestTranscribe_QueueFull(t *testing.T) {
	prov := &fakeProvider{block: make(chan struct{})}
	env := newTestEnv(t, prov, 1, 1<<20)
	defer close(prov.block)

	send := func() *httptest.ResponseRecorder {
		body, ct := buildMultipartForm(t, nil, "file", []byte("audio"), "a.wav")
		return postTranscribe(t, env.handler, body, ct)
	}

	// First request occupies the only worker, second fills the queue.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			send()
		}()
		waitFor(t, func() bool {
			s := env.pool.Stats()
			return s.Busy+int64(s.Pending) == int64(i+1)
		})
	}

	rec := send()
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Retryable {
		t.Error("queue full should be retryable")
	}

	prov.block <- struct{}{}
	prov.block <- struct{}{}
	wg.Wait()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 4, 1<<20)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Provider != "fake" || resp.Model != "base" {
		t.Errorf("provider/model = %q/%q, want fake/base", resp.Provider, resp.Model)
	}
	if resp.Queue.Workers != 1 || resp.Queue.Capacity != 4 {
		t.Errorf("queue = %+v, want 1 worker and capacity 4", resp.Queue)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
}

func TestHealth_NoPool(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, "test", time.Now()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{}, 4, 1<<20)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/openapi.yaml", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %q, want application/yaml", ct)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
