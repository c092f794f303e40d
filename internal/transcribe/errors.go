package transcribe

import (
	"errors"
	"fmt"
)

// Kind classifies a transcription failure so callers can tell retryable
// conditions from permanent ones.
type Kind string

const (
	KindUpload      Kind = "upload"      // malformed or unreadable upload
	KindTooLarge    Kind = "too_large"   // upload exceeds the configured limit
	KindStorage     Kind = "storage"     // temp file create/write failed
	KindModel       Kind = "model"       // provider or model rejected the audio
	KindUnavailable Kind = "unavailable" // queue full or pool stopped
	KindTimeout     Kind = "timeout"     // model call exceeded its deadline
)

var (
	// ErrQueueFull is returned by Pool.Submit when no queue slot is free.
	ErrQueueFull = errors.New("transcription queue full")
	// ErrPoolStopped is returned by Pool.Submit after Stop.
	ErrPoolStopped = errors.New("transcription pool stopped")
)

// Error is a classified transcription failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindStorage, KindUnavailable, KindTimeout:
		return true
	}
	return false
}

// Wrap classifies err under kind. A nil err returns nil; an err that is
// already classified keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindModel for unclassified errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindModel
}

// IsRetryable reports whether err is a retryable classified error.
func IsRetryable(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Retryable()
}
