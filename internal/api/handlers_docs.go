package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/dealmap/internal/docmap"
)

// pathParam returns a URL parameter with percent-escapes decoded. Anchor
// ids and defined terms routinely carry ':' and spaces.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// handleListDocuments lists the documents of a deal.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	docs := make([]docmap.DocumentInfo, 0, len(snap.Map.Documents))
	for _, d := range snap.Map.Documents {
		info, err := snap.Map.OpenDocument(d.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		docs = append(docs, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	info, err := snap.Map.OpenDocument(pathParam(r, "docID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		jsonError(w, "page must be a number", http.StatusBadRequest)
		return
	}
	view, err := snap.Map.GotoPage(pathParam(r, "docID"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleReadSpan reads ?anchor= or ?doc_id=&page_start=&page_end=.
func (s *Server) handleReadSpan(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	start, err := intParam(r, "page_start")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := intParam(r, "page_end")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	span, err := snap.Map.ReadSpan(docmap.SpanRequest{
		Anchor:     q.Get("anchor"),
		DocumentID: q.Get("doc_id"),
		PageStart:  start,
		PageEnd:    end,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, span)
}

func (s *Server) handleGetAnchor(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	a, err := snap.Map.OpenAnchor(pathParam(r, "anchor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleQuoteEvidence returns excerpts for a list of anchors. Unknown
// anchors are skipped.
func (s *Server) handleQuoteEvidence(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	var req struct {
		Anchors []string `json:"anchors"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Anchors) == 0 {
		jsonError(w, "anchors is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": snap.Map.QuoteEvidence(req.Anchors)})
}
