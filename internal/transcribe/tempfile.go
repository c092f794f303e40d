package transcribe

import (
	"fmt"
	"os"
	"sync"
)

// tempPattern prefixes every upload file so stray files are easy to spot.
const tempPattern = "transcribe-*"

const defaultTempSuffix = ".wav"

// TempFileGlobs match exactly the files this package writes to the temp
// directory when uploads are stored with suffix.
func TempFileGlobs(suffix string) []string {
	if suffix == "" {
		suffix = defaultTempSuffix
	}
	return []string{tempPattern + suffix, preprocessPattern}
}

// WriteTemp persists data to a new uniquely named file in dir (os.TempDir()
// when empty) ending in suffix. The returned release func removes the file; it
// is safe to call more than once and must be deferred by the caller so the
// file is removed on every exit path.
func WriteTemp(dir, suffix string, data []byte) (string, func(), error) {
	f, err := os.CreateTemp(dir, tempPattern+suffix)
	if err != nil {
		return "", func() {}, Wrap(KindStorage, "create temp file", err)
	}
	path := f.Name()

	var once sync.Once
	release := func() {
		once.Do(func() { os.Remove(path) })
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		release()
		return "", func() {}, Wrap(KindStorage, "write temp file", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", func() {}, Wrap(KindStorage, "close temp file", fmt.Errorf("%s: %w", path, err))
	}
	return path, release, nil
}
