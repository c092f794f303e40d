package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/snarg/transcriber/internal/transcribe"
)

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	ErrInvalidBody   = "invalid_body"
	ErrMissingFile   = "missing_file"
	ErrTooLarge      = "too_large"
	ErrStorage       = "storage_error"
	ErrModel         = "model_error"
	ErrUnavailable   = "unavailable"
	ErrTimeout       = "timeout"
	ErrInternal      = "internal"
	retryAfterSecond = "1"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorWithCode writes a JSON error response carrying a machine-readable code.
func WriteErrorWithCode(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// transcribeStatus maps a transcription error kind to its HTTP status and code.
func transcribeStatus(kind transcribe.Kind) (int, string) {
	switch kind {
	case transcribe.KindUpload:
		return http.StatusBadRequest, ErrInvalidBody
	case transcribe.KindTooLarge:
		return http.StatusRequestEntityTooLarge, ErrTooLarge
	case transcribe.KindStorage:
		return http.StatusServiceUnavailable, ErrStorage
	case transcribe.KindUnavailable:
		return http.StatusServiceUnavailable, ErrUnavailable
	case transcribe.KindTimeout:
		return http.StatusGatewayTimeout, ErrTimeout
	default:
		return http.StatusInternalServerError, ErrModel
	}
}

// WriteTranscribeError writes err using the status for its kind. Retryable
// errors carry a Retry-After header.
func WriteTranscribeError(w http.ResponseWriter, err error) {
	status, code := transcribeStatus(transcribe.KindOf(err))
	if errors.Is(err, errMissingFile) {
		code = ErrMissingFile
	}
	retryable := transcribe.IsRetryable(err)
	if retryable {
		w.Header().Set("Retry-After", retryAfterSecond)
	}

	msg := err.Error()
	var te *transcribe.Error
	if errors.As(err, &te) && te.Kind == transcribe.KindModel {
		// Provider messages can be long and backend-specific; keep them in Detail.
		WriteJSON(w, status, ErrorResponse{Error: "transcription failed", Code: code, Detail: msg})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code, Retryable: retryable})
}
