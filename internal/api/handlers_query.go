package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dgallion1/dealmap/internal/answer"
	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/extract"
	"github.com/dgallion1/dealmap/internal/retrieval"
)

// handleSearch runs lexical navigation search: ?q=&scope=&top_k=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	scope, err := retrieval.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	topK, err := intParam(r, "top_k")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := retrieval.Search(snap.Map, q, scope, topK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"scope":   scope,
		"results": results,
	})
}

// handleRetrieve ranks chunks with BM25: ?q=&top_k=.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	topK, err := intParam(r, "top_k")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hits := snap.Index.Retrieve(q, topK)
	if hits == nil {
		hits = []retrieval.Hit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "hits": hits})
}

type extractRequest struct {
	Instruction  string          `json:"instruction"`
	DocumentType string          `json:"document_type"`
	Text         string          `json:"text"`
	Schema       *extract.Schema `json:"schema"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	var req extractRequest
	if err := decodeOptional(w, r, &req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.extractor.Run(r.Context(), extract.Request{
		Instruction:  req.Instruction,
		DocumentType: req.DocumentType,
		Text:         req.Text,
		Schema:       req.Schema,
		Map:          snap.Map,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleFollowReference resolves ?ref_id= or ?target_text=&doc_id=.
// An unresolved free-text target is a normal 200 response.
func (s *Server) handleFollowReference(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := snap.Map.FollowReference(docmap.RefQuery{
		RefID:      q.Get("ref_id"),
		TargetText: q.Get("target_text"),
		DocumentID: q.Get("doc_id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReadDefinition looks a term up; a missing term is found=false.
func (s *Server) handleReadDefinition(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	term := strings.TrimSpace(pathParam(r, "term"))
	if term == "" {
		jsonError(w, "term is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, snap.Map.ReadDefinition(term, r.URL.Query().Get("doc_id")))
}

type answerRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// handleAnswer retrieves evidence for a question, checks how well it
// covers the question and writes an answer from it.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeOptional(w, r, &req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 {
		jsonError(w, "top_k must not be negative", http.StatusBadRequest)
		return
	}

	hits := snap.Index.Retrieve(req.Question, req.TopK)
	evidence := snap.Map.QuoteEvidence(hitAnchors(hits))
	check := answer.SupportCheck(req.Question, evidence)
	res := s.answers.Answer(r.Context(), req.Question, evidence, check)
	writeJSON(w, http.StatusOK, map[string]any{
		"question": req.Question,
		"answer":   res.Text,
		"model":    res.Model,
		"fallback": res.Fallback,
		"support":  res.Support,
		"evidence": evidence,
	})
}

// hitAnchors lists the distinct anchors of hits in rank order.
func hitAnchors(hits []retrieval.Hit) []string {
	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Anchor == "" || seen[h.Anchor] {
			continue
		}
		seen[h.Anchor] = true
		out = append(out, h.Anchor)
	}
	return out
}

// decodeOptional decodes a JSON body into v; an empty body leaves v as is.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
