package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/pipeline"
	"github.com/joelkehle/stratscope/internal/report"
	"github.com/joelkehle/stratscope/internal/scoring"
)

// Server exposes the analysis pipeline over HTTP. Analyses run
// asynchronously: POST returns immediately with a session ID and the
// pipeline progresses in the background, so clients poll the status
// endpoint until the run reaches a terminal state.
type Server struct {
	orch    *pipeline.Orchestrator
	store   pipeline.RunStore
	cat     *catalog.Catalog
	pdf     report.PDFRenderer
	logger  log.Logger
	baseCtx context.Context

	minContentChars int
}

type Config struct {
	Orchestrator *pipeline.Orchestrator
	Store        pipeline.RunStore
	Catalog      *catalog.Catalog
	PDF          report.PDFRenderer
	Logger       log.Logger

	// BaseCtx bounds background pipeline runs; canceling it stops
	// in-flight analyses at the next stage boundary.
	BaseCtx context.Context

	MinContentChars int
}

func NewServer(cfg Config) http.Handler {
	s := &Server{
		orch:            cfg.Orchestrator,
		store:           cfg.Store,
		cat:             cfg.Catalog,
		pdf:             cfg.PDF,
		logger:          cfg.Logger,
		baseCtx:         cfg.BaseCtx,
		minContentChars: cfg.MinContentChars,
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/analyses", s.handleAnalyses)
	mux.HandleFunc("/v1/analyses/", s.handleAnalysisByID)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case scoring.IsValidation(err):
		status, code = http.StatusBadRequest, "invalid_request"
	default:
		var ce *catalog.ConfigurationError
		if errors.As(err, &ce) {
			code = "configuration"
		}
	}
	writeJSON(w, status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"ok":    false,
			"error": map[string]any{"code": "method_not_allowed", "message": "use " + method},
		})
		return false
	}
	return true
}

type createAnalysisRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// handleAnalyses serves POST (start analysis) and GET (list sessions).
func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodGet:
		sessions, err := s.store.ListSessions(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": sessions})
	default:
		methodOnly(w, r, http.MethodPost)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &scoring.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return
	}
	if len(strings.TrimSpace(req.Content)) < s.minContentChars {
		writeError(w, &scoring.ValidationError{Field: "content", Reason: "content too short to analyze"})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	go s.runDetached(sessionID, req.Content)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":         true,
		"session_id": sessionID,
		"state":      pipeline.StateCreated,
	})
}

// runDetached drives a pipeline run outside the request lifecycle. The
// request context would cancel the run as soon as the 202 is written, so
// the server's base context bounds it instead.
func (s *Server) runDetached(sessionID, content string) {
	start := time.Now()
	_, err := s.orch.Start(s.baseCtx, sessionID, content, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("session", sessionID).Msg("background analysis failed")
		return
	}
	s.logger.Info().Str("session", sessionID).Dur("elapsed", time.Since(start)).Msg("background analysis finished")
}

// handleAnalysisByID routes /v1/analyses/{id}/{action}.
func (s *Server) handleAnalysisByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/analyses/")
	parts := strings.SplitN(rest, "/", 2)
	sessionID := parts[0]
	if sessionID == "" {
		writeError(w, pipeline.ErrNotFound)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "status":
		s.handleStatus(w, r, sessionID)
	case "results", "":
		s.handleResults(w, r, sessionID)
	case "report.md":
		s.handleReportMarkdown(w, r, sessionID)
	case "report.pdf":
		s.handleReportPDF(w, r, sessionID)
	case "resume":
		s.handleResume(w, r, sessionID)
	default:
		writeError(w, pipeline.ErrNotFound)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	run, err := s.store.GetRun(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": run.Status()})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	run, err := s.store.GetRun(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	// The full content snapshot can be large; results omit it.
	out := *run
	out.ContentSnapshot = ""
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run": out})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	run, err := s.store.GetRun(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if run.State != pipeline.StateComplete {
		go func() {
			if _, err := s.orch.Resume(s.baseCtx, sessionID, nil); err != nil {
				s.logger.Error().Err(err).Str("session", sessionID).Msg("resume failed")
			}
		}()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":         true,
		"session_id": sessionID,
		"state":      run.State,
	})
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	run, err := s.store.GetRun(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	md := report.BuildMarkdown(run, s.cat)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.pdf == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{
			"ok":    false,
			"error": map[string]any{"code": "pdf_disabled", "message": "PDF rendering is not enabled"},
		})
		return
	}
	run, err := s.store.GetRun(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	md := report.BuildMarkdown(run, s.cat)
	pdf, err := s.pdf.Render(r.Context(), md)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="analysis-`+sessionID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"segments": len(s.cat.Segments),
		"factors":  len(s.cat.Factors),
		"layers":   len(s.cat.Layers),
	})
}
