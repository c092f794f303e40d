package transcribe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestPreprocess_InvalidAudio(t *testing.T) {
	if !CheckSox() {
		t.Skip("sox not installed")
	}
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(in, []byte("definitely not audio"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, cleanup, err := Preprocess(context.Background(), in)
	if err == nil {
		t.Fatal("expected sox to reject the input")
	}
	if out != in {
		t.Errorf("path = %q, want original %q on failure", out, in)
	}
	cleanup()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1 (failed conversion must not leave files)", len(entries))
	}
}

func TestPreprocess_WithoutSox(t *testing.T) {
	if CheckSox() {
		t.Skip("sox installed")
	}
	out, cleanup, err := Preprocess(context.Background(), "/tmp/in.wav")
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if out != "/tmp/in.wav" {
		t.Errorf("path = %q, want /tmp/in.wav", out)
	}
	cleanup()
}
