package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/dealmap/internal/chunker"
	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/parser"
	"github.com/dgallion1/dealmap/internal/pipeline"
	"github.com/dgallion1/dealmap/internal/retrieval"
)

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	d := s.deals.Create(req.Name)
	info, err := s.deals.Info(d.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("deal created", "deal_id", d.ID, "name", d.Name)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"deals": s.deals.List()})
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	info, err := s.deals.Info(chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// snapshot loads the current snapshot of the request's deal, writing the
// error response itself when there is none.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*pipeline.Snapshot, bool) {
	snap, err := s.deals.Snapshot(chi.URLParam(r, "dealID"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return snap, true
}

// handleUpload queues one job per uploaded file. Files arrive under
// "file" or "files".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	if _, err := s.deals.Info(dealID); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024) // extra for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := append(r.MultipartForm.File["file"], r.MultipartForm.File["files"]...)
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, 0, len(files))
	accepted := 0
	var submitErr error
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !parser.IsSupportedExtension(filename) {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)),
			})
			continue
		}

		data, err := s.readUpload(fh)
		if err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		job := pipeline.NewJob(dealID, filename, data)
		if err := s.orchestrator.Submit(job); err != nil {
			submitErr = err
			results = append(results, map[string]any{
				"filename": filename,
				"job_id":   job.ID,
				"error":    err.Error(),
			})
			continue
		}
		accepted++
		results = append(results, map[string]any{
			"filename": filename,
			"job_id":   job.ID,
			"status":   pipeline.StatusQueued,
			"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
		})
	}

	code := http.StatusAccepted
	switch {
	case accepted > 0:
	case submitErr != nil:
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]any{"deal_id": dealID, "jobs": results})
}

func (s *Server) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}
	return data, nil
}

// handleJobStatus reports a job. A job whose document had no extractable
// text answers 422 with the same body.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	code := http.StatusOK
	if snap.Status == pipeline.StatusFailed && snap.FailureKind == pipeline.FailureExtraction {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, snap)
}

// handlePutSnapshot replaces a deal's content with a serialized map and,
// optionally, its retrieval index. Without an index one is built from the
// map.
func (s *Server) handlePutSnapshot(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10)

	var req struct {
		Map   json.RawMessage `json:"map"`
		Index json.RawMessage `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Map) == 0 || string(req.Map) == "null" {
		jsonError(w, "map is required", http.StatusBadRequest)
		return
	}
	m, err := docmap.Decode(bytes.NewReader(req.Map))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var idx *retrieval.Index
	if len(req.Index) > 0 && string(req.Index) != "null" {
		idx, err = retrieval.Decode(bytes.NewReader(req.Index))
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		idx = retrieval.Build(chunker.FromMap(m, s.cfg.Chunks()))
	}

	snap, err := s.deals.Swap(dealID, m, idx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("deal snapshot replaced",
		"deal_id", dealID,
		"documents", len(m.Documents),
		"chunks", idx.Len(),
		"version", snap.Version,
	)
	info, err := s.deals.Info(dealID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
