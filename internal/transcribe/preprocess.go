package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

const preprocessPattern = "preprocess-*.wav"

var (
	soxOnce      sync.Once
	soxAvailable bool
)

// CheckSox checks if sox is available in PATH. The lookup runs once.
func CheckSox() bool {
	soxOnce.Do(func() {
		_, err := exec.LookPath("sox")
		soxAvailable = err == nil
	})
	return soxAvailable
}

// Preprocess converts inputPath into a 16 kHz mono WAV with normalized volume,
// the input format whisper models expect. The output lands next to the input
// under a unique name.
//
// Returns the path to the converted file and a cleanup function.
// If sox is unavailable, returns the original path with a no-op cleanup.
func Preprocess(ctx context.Context, inputPath string) (string, func(), error) {
	noop := func() {}

	if !CheckSox() {
		return inputPath, noop, nil
	}

	out, err := os.CreateTemp(filepath.Dir(inputPath), preprocessPattern)
	if err != nil {
		return inputPath, noop, Wrap(KindStorage, "create preprocess file", err)
	}
	outPath := out.Name()
	out.Close()

	cmd := exec.CommandContext(ctx, "sox",
		inputPath, outPath,
		"rate", "16000",
		"channels", "1",
		"norm",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return inputPath, noop, fmt.Errorf("sox preprocess: %w: %s", err, output)
	}

	cleanup := func() {
		os.Remove(outPath)
	}
	return outPath, cleanup, nil
}
