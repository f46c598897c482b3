package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/dealmap/internal/answer"
	"github.com/dgallion1/dealmap/internal/config"
	"github.com/dgallion1/dealmap/internal/extract"
	"github.com/dgallion1/dealmap/internal/llm"
	"github.com/dgallion1/dealmap/internal/pipeline"
)

// Deps are the services the HTTP surface fronts. Answers and LLMStats may
// be nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Extractor    *extract.Extractor
	Answers      *answer.Synthesizer
	LLMStats     *llm.Stats
	ModelLabel   string
}

// Server is the HTTP API server for dealmap.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	deals        *pipeline.DealStore
	extractor    *extract.Extractor
	answers      *answer.Synthesizer
	llmStats     *llm.Stats
	modelLabel   string
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewExtractor(nil, log)
	}
	if deps.Answers == nil {
		deps.Answers = answer.New(nil, "", log)
	}
	s := &Server{
		orchestrator: deps.Orchestrator,
		deals:        deps.Orchestrator.Deals(),
		extractor:    deps.Extractor,
		answers:      deps.Answers,
		llmStats:     deps.LLMStats,
		modelLabel:   deps.ModelLabel,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/deals", s.handleCreateDeal)
		r.Get("/api/deals", s.handleListDeals)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/llm", s.handleLLMStats)

		r.Route("/api/deals/{dealID}", func(r chi.Router) {
			r.Get("/", s.handleGetDeal)
			r.Put("/snapshot", s.handlePutSnapshot)

			r.Post("/documents", s.handleUpload)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{docID}", s.handleGetDocument)
			r.Get("/documents/{docID}/pages/{page}", s.handleGetPage)
			r.Get("/span", s.handleReadSpan)
			r.Get("/anchors/{anchor}", s.handleGetAnchor)
			r.Post("/evidence", s.handleQuoteEvidence)

			r.Get("/search", s.handleSearch)
			r.Get("/retrieve", s.handleRetrieve)
			r.Post("/extract", s.handleExtract)
			r.Get("/references", s.handleFollowReference)
			r.Get("/definitions/{term}", s.handleReadDefinition)
			r.Post("/answer", s.handleAnswer)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
