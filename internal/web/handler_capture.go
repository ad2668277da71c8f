package web

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/vbonduro/bloom/internal/service"
)

const maxPhotoSize = 20 * 1024 * 1024 // 20 MB

// maxCaptureTransitions bounds the states one capture can emit:
// image_captured, analyzing, identified and saved or error.
const maxCaptureTransitions = 8

// allowedImageTypes is the set of MIME types accepted for captured photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniff spec (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// readCaptureImage pulls the "image" part out of a multipart form. It writes
// the error response itself and reports false on failure.
func (s *Server) readCaptureImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize+1024*1024)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to parse form")
		return nil, "", false
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "image file required")
		return nil, "", false
	}
	defer closeWithLog(file, "capture file", s.logger)

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("read capture failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return nil, "", false
	}

	mimeType, ok := allowedImageMIME(imageData)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unsupported image format")
		return nil, "", false
	}
	return imageData, mimeType, true
}

// handleCapture runs a whole capture workflow and answers with its final
// state.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	imageData, mimeType, ok := s.readCaptureImage(w, r)
	if !ok {
		return
	}

	// Use a detached context so that a capture that reached the model is
	// saved even if the client goes away.
	wf := s.capture.NewWorkflow()
	st, err := wf.Run(context.WithoutCancel(r.Context()), imageData, mimeType)
	if err != nil && !errors.Is(err, service.ErrWorkflowReset) {
		s.logger.Warn("capture failed", "step", st.FailedAt, "error", err)
	}
	s.writeJSON(w, captureStatus(st), st)
}

// handleCaptureStream accepts the same multipart form as handleCapture but
// responds with an SSE stream carrying every workflow state as it happens.
// The stream ends with a "done" event.
func (s *Server) handleCaptureStream(w http.ResponseWriter, r *http.Request) {
	imageData, mimeType, ok := s.readCaptureImage(w, r)
	if !ok {
		return
	}

	states := make(chan service.CaptureState, maxCaptureTransitions)
	wf := s.capture.NewWorkflow(service.WithObserver(func(st service.CaptureState) {
		states <- st
	}))
	go func() {
		defer close(states)
		if _, err := wf.Run(context.WithoutCancel(r.Context()), imageData, mimeType); err != nil {
			s.logger.Warn("capture failed", "error", err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	for st := range states {
		if r.Context().Err() != nil {
			return
		}
		if err := writeEvent(w, "state", st); err != nil {
			return
		}
		_ = rc.Flush()
	}

	if err := writeEvent(w, "done", wf.State()); err != nil {
		s.logger.Error("write done event failed", "error", err)
	}
	_ = rc.Flush()
}

// captureStatus maps a finished workflow to an HTTP status. Model failures
// are reported as a bad gateway, everything else that failed as a 500.
func captureStatus(st service.CaptureState) int {
	switch st.Step {
	case service.StepSaved:
		return http.StatusCreated
	case service.StepError:
		if st.FailedAt == service.StepAnalyzing {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
