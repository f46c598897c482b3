package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/dealmap/internal/answer"
	"github.com/dgallion1/dealmap/internal/config"
	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/llm"
	"github.com/dgallion1/dealmap/internal/parser"
	"github.com/dgallion1/dealmap/internal/pipeline"
)

const apiKey = "test-key"

const creditText = `CREDIT AGREEMENT
TABLE OF CONTENTS
Article I Definitions .... 2
Prepayment .... 4
[PAGE 2]
ARTICLE I DEFINITIONS
"Applicable Margin" means 2.25% per annum.
Section 1.01 Defined Terms
[PAGE 3]
Section 2.01 Commitments
Each Lender agrees to make Loans in an aggregate amount of $100 million subject to Section 6.02.
[PAGE 4]
Section 6.02 Prepayment
The Borrower may prepay the Loans subject to Article I.
`

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		APIKey:         apiKey,
		WorkerCount:    1,
		MaxQueueSize:   8,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
		ChunkMaxChars:  1200,
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	cfg := testConfig()
	if deps.Orchestrator == nil {
		o := pipeline.NewOrchestrator(cfg, pipeline.NewDealStore(), pipeline.NewBuilder(pipeline.DefaultBuildOptions(), quietLog()), quietLog())
		o.Start(context.Background())
		t.Cleanup(o.Stop)
		deps.Orchestrator = o
	}
	return NewServer(deps, quietLog(), cfg)
}

func do(t *testing.T, s *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, s *Server, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	}
	return do(t, s, method, path, body, "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func createDeal(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/deals", map[string]string{"name": "acme"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create deal: %d %s", rec.Code, rec.Body.String())
	}
	var info pipeline.DealInfo
	decode(t, rec, &info)
	return info.ID
}

func upload(t *testing.T, s *Server, dealID, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return do(t, s, http.MethodPost, "/api/deals/"+dealID+"/documents", &buf, mw.FormDataContentType())
}

// uploadAndWait uploads one file and polls its job until it finishes.
func uploadAndWait(t *testing.T, s *Server, dealID, filename, content string) (int, pipeline.JobSnapshot) {
	t.Helper()
	rec := upload(t, s, dealID, filename, content)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Jobs []struct {
			JobID string `json:"job_id"`
		} `json:"jobs"`
	}
	decode(t, rec, &resp)
	if len(resp.Jobs) != 1 || resp.Jobs[0].JobID == "" {
		t.Fatalf("unexpected upload response %s", rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/api/jobs/"+resp.Jobs[0].JobID, nil, "")
		var snap pipeline.JobSnapshot
		decode(t, rec, &snap)
		if snap.Done() {
			return rec.Code, snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return 0, pipeline.JobSnapshot{}
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/deals", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/deals", nil)
	req.Header.Set("X-API-Key", apiKey)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected X-API-Key to authenticate, got %d", rec.Code)
	}
}

func TestDealLifecycle(t *testing.T) {
	s := newTestServer(t, Deps{})
	dealID := createDeal(t, s)

	code, job := uploadAndWait(t, s, dealID, "credit.txt", creditText)
	if code != http.StatusOK || job.Status != pipeline.StatusCompleted || job.DocID != "doc-1" {
		t.Fatalf("unexpected job %d %+v", code, job)
	}

	rec := do(t, s, http.MethodGet, "/api/deals/"+dealID, nil, "")
	var info pipeline.DealInfo
	decode(t, rec, &info)
	if info.Documents != 1 || info.Chunks == 0 || info.Version != 1 {
		t.Errorf("unexpected deal info %+v", info)
	}

	rec = do(t, s, http.MethodGet, "/api/deals", nil, "")
	var list struct {
		Deals []pipeline.DealInfo `json:"deals"`
	}
	decode(t, rec, &list)
	if len(list.Deals) != 1 || list.Deals[0].ID != dealID {
		t.Errorf("unexpected deal list %s", rec.Body.String())
	}

	code, dup := uploadAndWait(t, s, dealID, "again.txt", creditText)
	if code != http.StatusOK || dup.Status != pipeline.StatusDupSkipped {
		t.Errorf("expected duplicate skip, got %d %+v", code, dup)
	}
}

func TestQueries(t *testing.T) {
	s := newTestServer(t, Deps{})
	dealID := createDeal(t, s)
	if _, job := uploadAndWait(t, s, dealID, "credit.txt", creditText); job.Status != pipeline.StatusCompleted {
		t.Fatalf("indexing failed: %+v", job)
	}
	base := "/api/deals/" + dealID

	t.Run("search", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, base+"/search?q=prepayment&top_k=3", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("search: %d %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Results []map[string]any `json:"results"`
		}
		decode(t, rec, &resp)
		if len(resp.Results) == 0 || len(resp.Results) > 3 {
			t.Errorf("unexpected results %s", rec.Body.String())
		}
	})

	t.Run("retrieve", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, base+"/retrieve?q=prepay+loans", nil, "")
		var resp struct {
			Hits []map[string]any `json:"hits"`
		}
		decode(t, rec, &resp)
		if rec.Code != http.StatusOK || len(resp.Hits) == 0 {
			t.Errorf("unexpected retrieve response %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("anchor", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, base+"/anchors/doc-1:p1:b1", nil, "")
		var a docmap.Anchor
		decode(t, rec, &a)
		if rec.Code != http.StatusOK || a.Text != "CREDIT AGREEMENT" {
			t.Errorf("unexpected anchor %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("definition", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, base+"/definitions/applicable%20margin", nil, "")
		var def docmap.DefinitionResult
		decode(t, rec, &def)
		if !def.Found || def.Term != "Applicable Margin" {
			t.Errorf("unexpected definition %s", rec.Body.String())
		}
		rec = do(t, s, http.MethodGet, base+"/definitions/Nothing", nil, "")
		decode(t, rec, &def)
		if rec.Code != http.StatusOK || def.Found {
			t.Errorf("expected not found result, got %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("reference", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, base+"/references?target_text=Section+6.02&doc_id=doc-1", nil, "")
		var ref docmap.RefResult
		decode(t, rec, &ref)
		if rec.Code != http.StatusOK || !ref.Resolved || ref.Anchor == "" {
			t.Errorf("unexpected reference %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("documents", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, base+"/documents", nil, "")
		var resp struct {
			Documents []docmap.DocumentInfo `json:"documents"`
		}
		decode(t, rec, &resp)
		if len(resp.Documents) != 1 || resp.Documents[0].TotalPages != 4 {
			t.Errorf("unexpected documents %s", rec.Body.String())
		}
		rec = do(t, s, http.MethodGet, base+"/documents/doc-1/pages/4", nil, "")
		var page docmap.PageView
		decode(t, rec, &page)
		if !strings.HasPrefix(page.Text, "Section 6.02 Prepayment") {
			t.Errorf("unexpected page %s", rec.Body.String())
		}
		rec = do(t, s, http.MethodGet, base+"/span?doc_id=doc-1&page_start=3&page_end=4", nil, "")
		var span docmap.Span
		decode(t, rec, &span)
		if len(span.Parts) != 2 || !strings.Contains(span.Text, "[PAGE 4]") {
			t.Errorf("unexpected span %s", rec.Body.String())
		}
	})

	t.Run("evidence", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, base+"/evidence", map[string]any{"anchors": []string{"doc-1:p4:b1", "doc-1:p99:b1"}})
		var resp struct {
			Evidence []docmap.Quote `json:"evidence"`
		}
		decode(t, rec, &resp)
		if len(resp.Evidence) != 1 || resp.Evidence[0].Page != 4 {
			t.Errorf("unexpected evidence %s", rec.Body.String())
		}
	})

	t.Run("extract", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, base+"/extract", map[string]any{"instruction": "Extract the key terms"})
		if rec.Code != http.StatusOK {
			t.Fatalf("extract: %d %s", rec.Code, rec.Body.String())
		}
		var resp map[string]any
		decode(t, rec, &resp)
		if resp["document_type"] != "credit_agreement" {
			t.Errorf("unexpected document type %v", resp["document_type"])
		}
		fields, _ := resp["field_extraction"].(map[string]any)
		amount, _ := fields["facility_amount"].(map[string]any)
		if amount["value"] != "$100 million" {
			t.Errorf("expected facility amount, got %v", amount)
		}
	})

	t.Run("answer fallback", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, base+"/answer", map[string]any{"question": "Can the Borrower prepay the Loans?"})
		var resp struct {
			Answer   string         `json:"answer"`
			Fallback bool           `json:"fallback"`
			Support  answer.Support `json:"support"`
			Evidence []docmap.Quote `json:"evidence"`
		}
		decode(t, rec, &resp)
		if rec.Code != http.StatusOK || !resp.Fallback || len(resp.Evidence) == 0 {
			t.Fatalf("unexpected answer %d %s", rec.Code, rec.Body.String())
		}
		if !strings.HasPrefix(resp.Answer, "Question: Can the Borrower prepay the Loans?") {
			t.Errorf("unexpected fallback text %q", resp.Answer)
		}
		if resp.Support.Status == "" {
			t.Error("expected support status")
		}
	})
}

func TestAnswerUsesCompleter(t *testing.T) {
	c := &llm.Static{Response: "Yes, subject to Article I."}
	s := newTestServer(t, Deps{Answers: answer.New(c, "anthropic/test", quietLog())})
	dealID := createDeal(t, s)
	uploadAndWait(t, s, dealID, "credit.txt", creditText)

	rec := doJSON(t, s, http.MethodPost, "/api/deals/"+dealID+"/answer", map[string]any{"question": "prepay loans", "top_k": 2})
	var resp struct {
		Answer   string `json:"answer"`
		Model    string `json:"model"`
		Fallback bool   `json:"fallback"`
	}
	decode(t, rec, &resp)
	if resp.Fallback || resp.Model != "anthropic/test" || !strings.HasSuffix(resp.Answer, "Yes, subject to Article I.") {
		t.Errorf("unexpected answer %s", rec.Body.String())
	}
	if !strings.Contains(c.LastUser, "Question: prepay loans") {
		t.Errorf("unexpected prompt %q", c.LastUser)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, Deps{})
	dealID := createDeal(t, s)
	uploadAndWait(t, s, dealID, "credit.txt", creditText)
	base := "/api/deals/" + dealID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown deal", http.MethodGet, "/api/deals/nope/search?q=x", nil, http.StatusNotFound},
		{"unknown job", http.MethodGet, "/api/jobs/nope", nil, http.StatusNotFound},
		{"missing query", http.MethodGet, base + "/search", nil, http.StatusBadRequest},
		{"bad scope", http.MethodGet, base + "/search?q=loans&scope=chapter", nil, http.StatusBadRequest},
		{"bad top_k", http.MethodGet, base + "/retrieve?q=loans&top_k=-1", nil, http.StatusBadRequest},
		{"unknown anchor", http.MethodGet, base + "/anchors/doc-1:p9:b9", nil, http.StatusNotFound},
		{"unknown ref", http.MethodGet, base + "/references?ref_id=xref-999", nil, http.StatusNotFound},
		{"ref without target", http.MethodGet, base + "/references", nil, http.StatusBadRequest},
		{"reversed span", http.MethodGet, base + "/span?doc_id=doc-1&page_start=3&page_end=1", nil, http.StatusBadRequest},
		{"unknown page", http.MethodGet, base + "/documents/doc-1/pages/40", nil, http.StatusNotFound},
		{"bad schema", http.MethodPost, base + "/extract", map[string]any{"schema": map[string]any{"document_type": "x"}}, http.StatusBadRequest},
		{"empty question", http.MethodPost, base + "/answer", map[string]any{"question": " "}, http.StatusBadRequest},
		{"empty snapshot", http.MethodPut, base + "/snapshot", map[string]any{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSchemaViolationProblems(t *testing.T) {
	s := newTestServer(t, Deps{})
	dealID := createDeal(t, s)
	rec := doJSON(t, s, http.MethodPost, "/api/deals/"+dealID+"/extract", map[string]any{
		"schema": map[string]any{"document_type": "x", "fields": []map[string]any{{"name": "a"}, {"name": "a"}}},
	})
	var resp struct {
		Problems []string `json:"problems"`
	}
	decode(t, rec, &resp)
	if rec.Code != http.StatusBadRequest || len(resp.Problems) != 1 {
		t.Errorf("expected one problem, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUploadFailures(t *testing.T) {
	s := newTestServer(t, Deps{})
	dealID := createDeal(t, s)

	if rec := upload(t, s, dealID, "deal.exe", "MZ"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected unsupported type rejected, got %d", rec.Code)
	}
	if rec := upload(t, s, "missing", "credit.txt", creditText); rec.Code != http.StatusNotFound {
		t.Errorf("expected unknown deal 404, got %d", rec.Code)
	}
	if rec := upload(t, s, dealID, "huge.txt", strings.Repeat("x", 1<<20+1)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected oversized file rejected, got %d", rec.Code)
	}

	code, job := uploadAndWait(t, s, dealID, "blank.txt", "  \n  ")
	if code != http.StatusUnprocessableEntity || job.FailureKind != pipeline.FailureExtraction {
		t.Errorf("expected 422 extraction failure, got %d %+v", code, job)
	}
}

func TestPutSnapshot(t *testing.T) {
	s := newTestServer(t, Deps{})
	dealID := createDeal(t, s)

	src := &parser.Source{Name: "credit.txt", Pages: parser.SplitPages(creditText)}
	doc, err := pipeline.NewDocument(src, 1)
	if err != nil {
		t.Fatal(err)
	}
	m, err := pipeline.NewBuilder(pipeline.DefaultBuildOptions(), quietLog()).Build(context.Background(), []*docmap.Document{doc})
	if err != nil {
		t.Fatal(err)
	}
	var encoded bytes.Buffer
	if err := docmap.Encode(&encoded, m); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, http.MethodPut, "/api/deals/"+dealID+"/snapshot", map[string]json.RawMessage{"map": encoded.Bytes()})
	if rec.Code != http.StatusOK {
		t.Fatalf("put snapshot: %d %s", rec.Code, rec.Body.String())
	}
	var info pipeline.DealInfo
	decode(t, rec, &info)
	if info.Documents != 1 || info.Chunks == 0 {
		t.Errorf("unexpected info %+v", info)
	}

	rec = do(t, s, http.MethodGet, "/api/deals/"+dealID+"/retrieve?q=prepay", nil, "")
	if !strings.Contains(rec.Body.String(), "doc-1") {
		t.Errorf("expected hits from the loaded map, got %s", rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPut, "/api/deals/"+dealID+"/snapshot", map[string]any{"map": map[string]any{"documents": "nope"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected bad map rejected, got %d", rec.Code)
	}
}

func TestLLMStats(t *testing.T) {
	if rec := doJSON(t, newTestServer(t, Deps{}), http.MethodGet, "/api/stats/llm", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without stats, got %d", rec.Code)
	}

	stats := llm.NewStats(time.Hour)
	stats.Record(120*time.Millisecond, false)
	s := newTestServer(t, Deps{LLMStats: stats, ModelLabel: "openai/gpt"})
	rec := doJSON(t, s, http.MethodGet, "/api/stats/llm", nil)
	var resp struct {
		Model string            `json:"model"`
		Stats llm.StatsSnapshot `json:"stats"`
	}
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Model != "openai/gpt" || resp.Stats.Count != 1 {
		t.Errorf("unexpected stats %d %s", rec.Code, rec.Body.String())
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"credit.pdf", "credit.pdf"},
		{"../../etc/passwd.txt", "passwd.txt"},
		{`C:\deals\loan.docx`, "loan.docx"},
		{"", "unnamed"},
		{"a..b.txt", "a_b.txt"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
