package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsroom/internal/core"
	"newsroom/internal/store"
)

type stubPipeline struct {
	state       core.SchedulerState
	collections int
	generations int
	learnings   int
	err         error
}

func (p *stubPipeline) State() core.SchedulerState { return p.state }

func (p *stubPipeline) RunCollection(ctx context.Context) error {
	p.collections++
	return p.err
}

func (p *stubPipeline) RunGeneration(ctx context.Context) error {
	p.generations++
	return p.err
}

func (p *stubPipeline) RunLearning(ctx context.Context) error {
	p.learnings++
	return p.err
}

type stubStatusStore struct {
	backlog  int
	articles map[core.ArticleStatus]int
	runs     []store.RunStats
	err      error
}

func (s *stubStatusStore) CountUnprocessed() (int, error) {
	return s.backlog, s.err
}

func (s *stubStatusStore) CountArticlesByStatusSince(cutoff time.Time) (map[core.ArticleStatus]int, error) {
	return s.articles, s.err
}

func (s *stubStatusStore) GetRunStatsSince(cutoff time.Time) ([]store.RunStats, error) {
	return s.runs, s.err
}

func newTestServer(pipeline *stubPipeline, st *stubStatusStore) *Server {
	if pipeline == nil {
		pipeline = &stubPipeline{}
	}
	if st == nil {
		st = &stubStatusStore{}
	}
	return New("127.0.0.1:0", pipeline, st)
}

func doRequest(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	s := newTestServer(nil, nil)
	rec, body := doRequest(t, s, http.MethodGet, "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if body["ok"] != true {
		t.Errorf("Expected ok:true, got %v", body["ok"])
	}
}

func TestStatus(t *testing.T) {
	pipeline := &stubPipeline{state: core.SchedulerState{IsRunning: true, Config: core.DefaultSchedulerConfig()}}
	st := &stubStatusStore{
		backlog:  7,
		articles: map[core.ArticleStatus]int{core.StatusPublished: 2, core.StatusPendingReview: 1},
		runs:     []store.RunStats{{Kind: "collection", ItemsIn: 10, ItemsOut: 8}},
	}
	s := newTestServer(pipeline, st)

	rec, body := doRequest(t, s, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["backlog"] != float64(7) {
		t.Errorf("Expected backlog 7, got %v", body["backlog"])
	}
	scheduler, ok := body["scheduler"].(map[string]interface{})
	if !ok || scheduler["is_running"] != true {
		t.Errorf("Expected running scheduler state, got %v", body["scheduler"])
	}
}

func TestStatus_StoreFailure(t *testing.T) {
	s := newTestServer(nil, &stubStatusStore{err: errors.New("database locked")})

	rec, body := doRequest(t, s, http.MethodGet, "/api/status")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if body["ok"] != false {
		t.Errorf("Expected ok:false envelope, got %v", body)
	}
	if body["error"] == "" {
		t.Error("Expected error message in envelope")
	}
}

func TestTrigger(t *testing.T) {
	pipeline := &stubPipeline{}
	s := newTestServer(pipeline, nil)

	for _, job := range []string{"collection", "generation", "learning"} {
		rec, body := doRequest(t, s, http.MethodPost, "/api/trigger/"+job)
		if rec.Code != http.StatusOK {
			t.Errorf("Trigger %s: expected 200, got %d", job, rec.Code)
		}
		if body["job"] != job {
			t.Errorf("Trigger %s: expected job echoed, got %v", job, body["job"])
		}
	}
	if pipeline.collections != 1 || pipeline.generations != 1 || pipeline.learnings != 1 {
		t.Errorf("Expected one run per job, got %d/%d/%d",
			pipeline.collections, pipeline.generations, pipeline.learnings)
	}
}

func TestTrigger_UnknownJob(t *testing.T) {
	s := newTestServer(nil, nil)

	rec, body := doRequest(t, s, http.MethodPost, "/api/trigger/nonsense")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if body["ok"] != false {
		t.Errorf("Expected ok:false envelope, got %v", body)
	}
}

func TestTrigger_RunFailure(t *testing.T) {
	pipeline := &stubPipeline{err: errors.New("collection exploded")}
	s := newTestServer(pipeline, nil)

	rec, body := doRequest(t, s, http.MethodPost, "/api/trigger/collection")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if body["ok"] != false {
		t.Errorf("Expected ok:false envelope, got %v", body)
	}
}
