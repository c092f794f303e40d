package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/transcriber/internal/transcribe"
)

// Multipart parts up to this size stay in memory; larger ones spill to disk
// until the form is released.
const multipartMemory = 32 << 20

// Transcriber turns an uploaded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, up transcribe.Upload) (*transcribe.Result, error)
}

// TranscribeHandler serves the upload endpoint.
type TranscribeHandler struct {
	svc      Transcriber
	maxBytes int64
	log      zerolog.Logger
}

// NewTranscribeHandler creates the upload handler. maxBytes bounds the whole
// request body.
func NewTranscribeHandler(svc Transcriber, maxBytes int64, log zerolog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		svc:      svc,
		maxBytes: maxBytes,
		log:      log.With().Str("handler", "transcribe").Logger(),
	}
}

// Routes registers the transcription endpoint.
func (h *TranscribeHandler) Routes(r chi.Router) {
	r.Post("/transcribe", h.Transcribe)
}

// Transcribe handles POST /transcribe.
// Reads the uploaded file named "file" (or the only file in the form) and
// responds with {"transcription": "..."}.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		if r.ContentLength > h.maxBytes {
			WriteTranscribeError(w, transcribe.Wrap(transcribe.KindTooLarge, "read upload", &http.MaxBytesError{Limit: h.maxBytes}))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	up, err := readUpload(r)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("rejected upload")
		WriteTranscribeError(w, err)
		return
	}

	res, err := h.svc.Transcribe(r.Context(), up)
	if err != nil {
		log := hlog.FromRequest(r)
		ev := log.Error()
		if transcribe.IsRetryable(err) {
			ev = log.Warn()
		}
		ev.Err(err).
			Str("filename", up.Filename).
			Int("bytes", len(up.Data)).
			Str("kind", string(transcribe.KindOf(err))).
			Msg("transcription failed")
		WriteTranscribeError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

// readUpload parses the multipart body and reads the audio part fully into memory.
func readUpload(r *http.Request) (transcribe.Upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return transcribe.Upload{}, classifyBodyErr("parse multipart form", err)
	}
	defer r.MultipartForm.RemoveAll()

	fh := pickFile(r.MultipartForm)
	if fh == nil {
		return transcribe.Upload{}, transcribe.Wrap(transcribe.KindUpload, "read upload", errMissingFile)
	}

	f, err := fh.Open()
	if err != nil {
		return transcribe.Upload{}, transcribe.Wrap(transcribe.KindUpload, "open upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return transcribe.Upload{}, classifyBodyErr("read upload", err)
	}
	return transcribe.Upload{Filename: fh.Filename, Data: data}, nil
}

var errMissingFile = errors.New(`no audio file in form (expected field "file")`)

// pickFile returns the "file" part, or the only file part when the client
// used another field name.
func pickFile(form *multipart.Form) *multipart.FileHeader {
	if fhs := form.File["file"]; len(fhs) > 0 {
		return fhs[0]
	}
	var only *multipart.FileHeader
	for _, fhs := range form.File {
		for _, fh := range fhs {
			if only != nil {
				return nil
			}
			only = fh
		}
	}
	return only
}

func classifyBodyErr(op string, err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return transcribe.Wrap(transcribe.KindTooLarge, op, err)
	}
	return transcribe.Wrap(transcribe.KindUpload, op, err)
}
