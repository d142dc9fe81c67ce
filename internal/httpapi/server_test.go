package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phuslu/log"

	"github.com/joelkehle/stratscope/internal/catalog"
	"github.com/joelkehle/stratscope/internal/oracle"
	"github.com/joelkehle/stratscope/internal/pattern"
	"github.com/joelkehle/stratscope/internal/pipeline"
	"github.com/joelkehle/stratscope/internal/scoring"
	"github.com/joelkehle/stratscope/internal/store"
)

func apiCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]catalog.Segment{{
			ID:        "seg_a",
			Name:      "Segment A",
			FactorIDs: []string{"f1"},
			Metrics: map[string][]string{
				catalog.MetricAttractiveness:       {"f1"},
				catalog.MetricCompetitiveIntensity: {"f1"},
				catalog.MetricMarketSize:           {"f1"},
				catalog.MetricGrowthPotential:      {"f1"},
			},
		}},
		[]catalog.Factor{{ID: "f1", SegmentID: "seg_a", Name: "Factor One", LayerIDs: []string{"l1"}}},
		[]catalog.Layer{{ID: "l1", FactorID: "f1", DisplayName: "Layer One"}},
		nil,
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func apiLibrary(t *testing.T, cat *catalog.Catalog) *pattern.Library {
	t.Helper()
	lib, err := pattern.NewLibrary([]pattern.Pattern{{
		ID:   "pat1",
		Name: "Steady Climber",
		Type: pattern.TypeSuccess,
		TriggerConditions: map[string]pattern.Condition{
			"factor_present": {Score: "f1", Operator: pattern.OpGreaterEqual, Threshold: 0.2},
		},
		StrategicResponse: "invest",
		OutcomeKPIs: map[string]pattern.Distribution{
			"revenue_growth": {Kind: pattern.KindTriangular, Min: 0, Mode: 0.5, Max: 1, Bounds: [2]float64{0, 1}},
		},
		BaseConfidence: 0.7,
	}}, cat)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return lib
}

type constScorer struct{}

func (constScorer) ScoreLayers(_ context.Context, _ string, layers []catalog.Layer) ([]scoring.LayerScore, []oracle.SkippedLayer, error) {
	scores := make([]scoring.LayerScore, 0, len(layers))
	for _, l := range layers {
		scores = append(scores, scoring.LayerScore{
			LayerID: l.ID, Score: 0.7, Confidence: 0.8, Insights: []string{"ok"}, EvidenceCount: 1,
		})
	}
	return scores, nil, nil
}

func newTestServer(t *testing.T) (http.Handler, pipeline.RunStore) {
	t.Helper()
	cat := apiCatalog(t)
	lib := apiLibrary(t, cat)
	st := store.NewMemoryStore()
	logger := log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Catalog:    cat,
		Library:    lib,
		Scorer:     constScorer{},
		Store:      st,
		Logger:     logger,
		Iterations: 100,
		Seed:       7,
	})
	h := NewServer(Config{
		Orchestrator:    orch,
		Store:           st,
		Catalog:         cat,
		Logger:          logger,
		MinContentChars: 10,
	})
	return h, st
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", resp.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["ok"] != true || body["layers"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
}

func TestCreateRunsAnalysisToCompletion(t *testing.T) {
	h, st := newTestServer(t)

	payload := `{"content": "a content snapshot long enough to analyze"}`
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(payload)))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in %v", body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		run, err := st.GetRun(context.Background(), sessionID)
		if err == nil && run.State.Terminal() {
			if run.State != pipeline.StateComplete {
				t.Fatalf("run ended in %q: %s", run.State, run.FailureReason)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("analysis did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	statusResp := httptest.NewRecorder()
	h.ServeHTTP(statusResp, httptest.NewRequest(http.MethodGet, "/v1/analyses/"+sessionID+"/status", nil))
	if statusResp.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", statusResp.Code)
	}
	var statusBody struct {
		OK     bool            `json:"ok"`
		Status pipeline.Status `json:"status"`
	}
	if err := json.Unmarshal(statusResp.Body.Bytes(), &statusBody); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if statusBody.Status.State != pipeline.StateComplete {
		t.Fatalf("state = %q", statusBody.Status.State)
	}
	if statusBody.Status.StageProgress.PatternsMatched != 1 {
		t.Fatalf("progress = %+v", statusBody.Status.StageProgress)
	}
}

func TestCreateRejectsShortContent(t *testing.T) {
	h, _ := newTestServer(t)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(`{"content": "x"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.Code)
	}
	body := decodeBody(t, resp)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "invalid_request" {
		t.Fatalf("body = %v", body)
	}
}

func TestCreateRejectsMalformedJSON(t *testing.T) {
	h, _ := newTestServer(t)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/v1/analyses", bytes.NewReader([]byte("{"))))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	h, _ := newTestServer(t)
	for _, path := range []string{
		"/v1/analyses/ghost/status",
		"/v1/analyses/ghost/results",
		"/v1/analyses/ghost/report.md",
	} {
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", path, resp.Code)
		}
	}
}

func TestUnknownActionReturns404(t *testing.T) {
	h, _ := newTestServer(t)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/analyses/sess1/export", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestResultsOmitContentSnapshot(t *testing.T) {
	h, st := newTestServer(t)
	run := &pipeline.Run{
		SessionID:       "sess1",
		Version:         1,
		State:           pipeline.StateComplete,
		ContentSnapshot: "secret snapshot body",
		Seed:            7,
		StartedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := st.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/analyses/sess1/results", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "secret snapshot body") {
		t.Fatal("results must not include the content snapshot")
	}
}

func TestListSessions(t *testing.T) {
	h, st := newTestServer(t)
	now := time.Now().UTC()
	for _, id := range []string{"b-session", "a-session"} {
		run := &pipeline.Run{SessionID: id, Version: 1, State: pipeline.StateComplete, StartedAt: now, UpdatedAt: now}
		if err := st.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/analyses", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	body := decodeBody(t, resp)
	sessions, _ := body["sessions"].([]any)
	if len(sessions) != 2 || sessions[0] != "a-session" {
		t.Fatalf("sessions = %v", sessions)
	}
}

func TestMarkdownReportEndpoint(t *testing.T) {
	h, st := newTestServer(t)
	now := time.Now().UTC()
	run := &pipeline.Run{SessionID: "sess1", Version: 1, State: pipeline.StateComplete, Seed: 7, StartedAt: now, UpdatedAt: now, CompletedAt: now}
	if err := st.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/analyses/sess1/report.md", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(resp.Body.String(), "sess1") {
		t.Fatal("report must reference the session")
	}
}

func TestPDFDisabledReturns501(t *testing.T) {
	h, st := newTestServer(t)
	now := time.Now().UTC()
	run := &pipeline.Run{SessionID: "sess1", Version: 1, State: pipeline.StateComplete, StartedAt: now, UpdatedAt: now}
	if err := st.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/analyses/sess1/report.pdf", nil))
	if resp.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/v1/health", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.Code)
	}
}
