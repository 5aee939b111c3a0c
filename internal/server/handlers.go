package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfeditor/internal/editor"
	"github.com/local/pdfeditor/internal/failure"
	"github.com/local/pdfeditor/internal/pdfdoc"
)

type pageReq struct {
	ID     string   `json:"id"`
	IDs    []string `json:"ids"`
	Delta  *int     `json:"delta"`
	Before string   `json:"before"`
	Index  *int     `json:"index"`
}

type reorderReq struct {
	Drag string `json:"drag"`
	Drop string `json:"drop"`
}

type importReq struct {
	Refs []string `json:"refs"`
}

const defaultDelta = 90

func delta(d *int) (int, error) {
	if d == nil {
		return defaultDelta, nil
	}
	if !pdfdoc.ValidRotation(*d) {
		return 0, errBadRequest("delta must be a multiple of 90")
	}
	return *d, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
	return nil
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) error {
	id := r.PathValue("id")
	p, ok := s.deps.Session.Page(id)
	if !ok {
		return &failure.NotFoundError{PageID: id}
	}
	writePNG(w, p.Preview.PNG)
	return nil
}

// handleImport accepts multipart files or a JSON list of references. Remote
// references are fetched before the session is locked.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	files, err := s.importFiles(w, r)
	if err == nil {
		s.mu.Lock()
		var pages []editor.Page
		pages, err = s.deps.Session.ImportFiles(r.Context(), files)
		snap := s.deps.Session.Snapshot()
		s.mu.Unlock()
		if err == nil {
			writeJSON(w, http.StatusCreated, map[string]any{"success": true, "files": len(files), "imported": len(pages), "pages": snap.Pages})
		}
	}
	s.finish(w, "import", start, err)
}

func (s *Server) importFiles(w http.ResponseWriter, r *http.Request) ([]editor.File, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return s.readUploads(w, r, "file")
	}
	var req importReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if len(req.Refs) == 0 {
		return nil, errBadRequest("missing refs")
	}
	if s.deps.Importer == nil {
		return nil, errBadRequest("reference import is not configured")
	}
	files := make([]editor.File, 0, len(req.Refs))
	for _, ref := range req.Refs {
		f, err := s.deps.Importer.Fetch(r.Context(), ref)
		if err != nil {
			return nil, failure.InvalidDocument(ref, err)
		}
		files = append(files, editor.File{Name: f.Name, Data: f.Data})
	}
	return files, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	var req pageReq
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	var (
		n   int
		err error
	)
	switch {
	case len(req.IDs) > 0:
		n, err = s.deps.Session.DeleteMany(req.IDs)
	case req.ID != "":
		var ok bool
		ok, err = s.deps.Session.Delete(req.ID)
		if ok {
			n = 1
		}
	default:
		return errBadRequest("missing id")
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": n})
	return nil
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) error {
	var req pageReq
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return errBadRequest("missing id")
	}
	d, err := delta(req.Delta)
	if err != nil {
		return err
	}
	rot, err := s.deps.Session.Rotate(req.ID, d)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": req.ID, "rotation": rot})
	return nil
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) error {
	var req pageReq
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return errBadRequest("missing id")
	}
	var err error
	if req.Index != nil {
		err = s.deps.Session.MoveToIndex(req.ID, *req.Index)
	} else {
		err = s.deps.Session.Move(req.ID, req.Before)
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": s.deps.Session.Snapshot().IDs()})
	return nil
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) error {
	var req reorderReq
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Drag == "" || req.Drop == "" {
		return errBadRequest("missing drag/drop")
	}
	if err := s.deps.Session.Reorder(req.Drag, req.Drop); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": s.deps.Session.Snapshot().IDs()})
	return nil
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) error {
	var req pageReq
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return errBadRequest("missing id")
	}
	if _, ok := s.deps.Session.Page(req.ID); !ok {
		return &failure.NotFoundError{PageID: req.ID}
	}
	on := s.deps.Session.ToggleSelect(req.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": req.ID, "selected": on})
	return nil
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) error {
	n := s.deps.Session.SelectAll()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "selected_count": n})
	return nil
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) error {
	if err := s.deps.Session.Clear(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
	return nil
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Quality string `json:"quality"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	q := s.deps.Session.SelectQuality(req.Quality)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "quality": q})
	return nil
}

func (s *Server) handleQuickReplace(w http.ResponseWriter, r *http.Request) error {
	f, err := s.readUpload(w, r)
	if err != nil {
		return err
	}
	id := r.PathValue("id")
	if err := s.deps.Session.ReplaceContent(r.Context(), id, f.Data, f.Name); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id, "source_name": f.Name})
	return nil
}

// handleBatchReplace replaces every page listed in the repeated "id" form
// field with the first page of the uploaded file.
func (s *Server) handleBatchReplace(w http.ResponseWriter, r *http.Request) error {
	f, err := s.readUpload(w, r)
	if err != nil {
		return err
	}
	ids := r.MultipartForm.Value["id"]
	if len(ids) == 0 {
		return errBadRequest("missing id")
	}
	n, err := s.deps.Session.ReplaceContentBatch(r.Context(), ids, f.Data, f.Name)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "replaced": n})
	return nil
}

func (s *Server) handleDeleteSelected(w http.ResponseWriter, r *http.Request) error {
	n, err := s.deps.Session.DeleteSelected()
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": n})
	return nil
}

func (s *Server) handleRotateSelected(w http.ResponseWriter, r *http.Request) error {
	var req pageReq
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	d, err := delta(req.Delta)
	if err != nil {
		return err
	}
	n, err := s.deps.Session.RotateSelected(d)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rotated": n})
	return nil
}

func (s *Server) handleDownloadSelected(w http.ResponseWriter, r *http.Request) error {
	exp, err := s.deps.Session.DownloadSelected(r.Context())
	if err != nil {
		return err
	}
	writeAttachment(w, exp)
	return nil
}

func (s *Server) handleReplaceEnter(w http.ResponseWriter, r *http.Request) error {
	s.deps.Session.EnterReplaceStaging()
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
	return nil
}

func (s *Server) handleReplaceExit(w http.ResponseWriter, r *http.Request) error {
	s.deps.Session.ExitReplaceStaging()
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
	return nil
}

func (s *Server) handleReplaceTarget(w http.ResponseWriter, r *http.Request) error {
	var req pageReq
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return errBadRequest("missing id")
	}
	on, err := s.deps.Session.ToggleReplaceTarget(req.ID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": req.ID, "target": on})
	return nil
}

func (s *Server) handleReplaceStage(w http.ResponseWriter, r *http.Request) error {
	f, err := s.readUpload(w, r)
	if err != nil {
		return err
	}
	view, err := s.deps.Session.StageReplacement(r.Context(), f.Data, f.Name)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "staged": view, "targets": s.deps.Session.Targets()})
	return nil
}

func (s *Server) handleReplacePreview(w http.ResponseWriter, r *http.Request) error {
	st := s.deps.Session.Snapshot().Staged
	if st == nil {
		return failure.Precondition("没有待确认的替换文件")
	}
	writePNG(w, st.Preview.PNG)
	return nil
}

func (s *Server) handleReplaceCancel(w http.ResponseWriter, r *http.Request) error {
	s.deps.Session.CancelReplacement()
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
	return nil
}

func (s *Server) handleReplaceExecute(w http.ResponseWriter, r *http.Request) error {
	n, err := s.deps.Session.ExecuteReplace(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "replaced": n})
	return nil
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) error {
	exp, err := s.deps.Session.MergeAll(r.Context())
	if err != nil {
		return err
	}
	writeAttachment(w, exp)
	return nil
}

func (s *Server) handleExportImage(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		ID      string `json:"id"`
		Quality string `json:"quality"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return errBadRequest("missing id")
	}
	exp, err := s.deps.Session.ExportImage(r.Context(), req.ID, req.Quality)
	if err != nil {
		return err
	}
	w.Header().Set("X-Render-Quality", string(exp.Plan.Effective))
	if exp.Plan.Downgraded() {
		w.Header().Set("X-Requested-Quality", string(exp.Plan.Requested))
	}
	writeAttachment(w, &exp.Export)
	return nil
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Tier string `json:"tier"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	exp, err := s.deps.Session.Compress(r.Context(), req.Tier)
	if err != nil {
		return err
	}
	rep := exp.Report
	h := w.Header()
	h.Set("X-Compression-Tier", string(rep.Tier))
	h.Set("X-Original-Size", strconv.FormatInt(rep.OriginalSize, 10))
	h.Set("X-Compressed-Size", strconv.FormatInt(rep.CompressedSize, 10))
	h.Set("X-Compression-Ratio", strconv.FormatFloat(rep.Ratio, 'f', 1, 64))
	writeAttachment(w, &exp.Export)
	return nil
}

// handleArtifact serves artifacts cached by the redis sink. It does not
// touch the session.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.deps.Artifacts == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	key := r.PathValue("key")
	a, err := s.deps.Artifacts.Get(r.Context(), key)
	if err != nil {
		s.finish(w, "artifact", start, err)
		return
	}
	log.Debug().Str("key", key).Str("name", a.Name).Msg("serving artifact")
	writeAttachment(w, &editor.Export{Artifact: *a})
	s.finish(w, "artifact", start, nil)
}
