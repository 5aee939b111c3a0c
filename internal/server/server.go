// Package server exposes an editing session over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/delivery"
	"github.com/local/pdfeditor/internal/editor"
	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/filetype"
	"github.com/local/pdfeditor/internal/metrics"
	"github.com/local/pdfeditor/internal/source"
)

// Importer resolves import references.
type Importer interface {
	Fetch(ctx context.Context, ref string) (*source.File, error)
}

// ArtifactStore serves artifacts held by a delivery sink.
type ArtifactStore interface {
	Get(ctx context.Context, id string) (*delivery.Artifact, error)
}

type Dependencies struct {
	Session   *editor.Session
	Importer  Importer      // optional
	Artifacts ArtifactStore // optional
	MaxUpload int64
}

// Server serialises requests onto one session.
type Server struct {
	deps Dependencies
	mu   sync.Mutex

	// memLimit is the multipart size kept in memory; larger parts spill to
	// temp files.
	memLimit int64
}

func New(deps Dependencies) *Server {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = 100 << 20
	}
	return &Server{deps: deps, memLimit: 32 << 20}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /pages", s.handle("snapshot", s.handleSnapshot))
	mux.HandleFunc("GET /pages/{id}/preview", s.handle("preview", s.handlePreview))
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("POST /pages/delete", s.handle("delete", s.handleDelete))
	mux.HandleFunc("POST /pages/rotate", s.handle("rotate", s.handleRotate))
	mux.HandleFunc("POST /pages/move", s.handle("move", s.handleMove))
	mux.HandleFunc("POST /pages/reorder", s.handle("reorder", s.handleReorder))
	mux.HandleFunc("POST /pages/select", s.handle("select", s.handleSelect))
	mux.HandleFunc("POST /pages/select_all", s.handle("select_all", s.handleSelectAll))
	mux.HandleFunc("POST /pages/clear", s.handle("clear", s.handleClear))
	mux.HandleFunc("POST /pages/{id}/replace", s.handle("quick_replace", s.handleQuickReplace))
	mux.HandleFunc("POST /pages/replace", s.handle("batch_replace", s.handleBatchReplace))
	mux.HandleFunc("POST /quality", s.handle("quality", s.handleQuality))

	mux.HandleFunc("POST /selection/delete", s.handle("delete_selected", s.handleDeleteSelected))
	mux.HandleFunc("POST /selection/rotate", s.handle("rotate_selected", s.handleRotateSelected))
	mux.HandleFunc("POST /selection/download", s.handle("download_selected", s.handleDownloadSelected))

	mux.HandleFunc("POST /replace/enter", s.handle("replace_enter", s.handleReplaceEnter))
	mux.HandleFunc("POST /replace/exit", s.handle("replace_exit", s.handleReplaceExit))
	mux.HandleFunc("POST /replace/target", s.handle("replace_target", s.handleReplaceTarget))
	mux.HandleFunc("POST /replace/stage", s.handle("replace_stage", s.handleReplaceStage))
	mux.HandleFunc("GET /replace/preview", s.handle("replace_preview", s.handleReplacePreview))
	mux.HandleFunc("POST /replace/cancel", s.handle("replace_cancel", s.handleReplaceCancel))
	mux.HandleFunc("POST /replace/execute", s.handle("replace_execute", s.handleReplaceExecute))

	mux.HandleFunc("POST /export/merge", s.handle("merge", s.handleMerge))
	mux.HandleFunc("POST /export/image", s.handle("export_image", s.handleExportImage))
	mux.HandleFunc("POST /export/compress", s.handle("compress", s.handleCompress))

	mux.HandleFunc("GET /artifacts/{key}", s.handleArtifact)
}

// badRequest marks malformed input.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func errBadRequest(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// handle runs fn under the session lock and records the outcome.
func (s *Server) handle(op string, fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mu.Lock()
		err := fn(w, r)
		s.mu.Unlock()
		s.finish(w, op, start, err)
	}
}

func (s *Server) finish(w http.ResponseWriter, op string, start time.Time, err error) {
	metrics.ObserveOperation(op, resultLabel(err), time.Since(start))
	if err == nil {
		return
	}
	code := statusFor(err)
	ev := log.Warn()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("op", op).Int("status", code).Msg("request failed")
	writeJSON(w, code, map[string]any{"success": false, "error": failure.UserMessage(err)})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case failure.IsPrecondition(err):
		return "rejected"
	default:
		return "error"
	}
}

func statusFor(err error) int {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case failure.IsPrecondition(err):
		return http.StatusConflict
	case failure.IsNotFound(err), errors.Is(err, delivery.ErrExpired):
		return http.StatusNotFound
	case failure.IsInvalidDocument(err), failure.IsEmptySource(err):
		return http.StatusUnprocessableEntity
	default:
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest("invalid json")
	}
	return nil
}

// writeAttachment sends an exported artifact as a download.
func writeAttachment(w http.ResponseWriter, exp *editor.Export) {
	a := exp.Artifact
	h := w.Header()
	h.Set("Content-Type", a.MIME)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
	h.Set("Content-Length", strconv.Itoa(len(a.Data)))
	if exp.Location != "" {
		h.Set("X-Artifact-Location", exp.Location)
	}
	if len(exp.Skipped) > 0 {
		h.Set("X-Skipped-Pages", strings.Join(exp.Skipped, ","))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", delivery.MIMEPNG)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// readUploads reads every part named field from a multipart request.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request, field string) ([]editor.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUpload)
	if err := r.ParseMultipartForm(s.memLimit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, errBadRequest("invalid multipart form")
	}
	// parts are fully read below; only the form values outlive this call
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn().Err(err).Msg("failed to remove multipart temp files")
		}
	}()
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, errBadRequest("missing %s", field)
	}
	files := make([]editor.File, 0, len(headers))
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		name := hdr.Filename
		if name == "" {
			name = "upload.pdf"
		}
		if err := filetype.Check(data, name); err != nil {
			return nil, failure.InvalidDocument(name, err)
		}
		files = append(files, editor.File{Name: name, Data: data})
	}
	return files, nil
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (editor.File, error) {
	files, err := s.readUploads(w, r, "file")
	if err != nil {
		return editor.File{}, err
	}
	return files[0], nil
}
