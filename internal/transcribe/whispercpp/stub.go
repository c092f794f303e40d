//go:build !whispercpp

package whispercpp

import (
	"errors"

	"github.com/snarg/transcriber/internal/transcribe"
)

// Available reports whether this binary was built with whisper.cpp support.
const Available = false

// ErrNotCompiled is returned by Load in binaries built without -tags whispercpp.
var ErrNotCompiled = errors.New("whispercpp backend not compiled in (rebuild with -tags whispercpp)")

// Load always fails in builds without whisper.cpp.
func Load(modelPath string, threads uint) (transcribe.Provider, error) {
	return nil, ErrNotCompiled
}
