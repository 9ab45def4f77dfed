package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// newTrackingServer fakes the tracking service, recording the requests it
// receives.
func newTrackingServer(t *testing.T) (*httptest.Server, *requestLog) {
	t.Helper()
	log := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		log.add(r.URL.Path, body)

		if r.URL.Path == "/api/runs" {
			w.Write([]byte(`{"id": "run-123"}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)
	return server, log
}

type requestLog struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
}

func (l *requestLog) add(path string, body map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
	l.bodies = append(l.bodies, body)
}

func TestStartRun_Lifecycle(t *testing.T) {
	server, log := newTrackingServer(t)

	run, err := StartRun(context.Background(), Config{
		BaseURL: server.URL,
		Project: "transfer-metrics",
		RunName: "cifar10_vit-base",
		JobType: "metrics",
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID != "run-123" {
		t.Errorf("expected run id run-123, got %q", run.ID)
	}

	err = run.Log(context.Background(), map[string]any{
		"metric_scores": map[string]any{
			"parc": map[string]any{"score": 61.2, "time": 0.8},
		},
		"model_name": "vit-base",
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	if err := run.Finish(context.Background()); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	// Nested values must arrive flattened.
	logged := log.bodies[1]
	if logged["metric_scores.parc.score"] != 61.2 {
		t.Errorf("expected flattened score key, got body %v", logged)
	}
	if log.paths[2] != "/api/runs/run-123/finish" {
		t.Errorf("expected finish call, got %v", log.paths)
	}
}

func TestStartRun_SecondRunRejected(t *testing.T) {
	server, _ := newTrackingServer(t)
	cfg := Config{BaseURL: server.URL, JobType: "metrics"}

	first, err := StartRun(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	defer first.Finish(context.Background())

	_, err = StartRun(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected the second StartRun to be rejected while a run is active")
	}
	if !strings.Contains(err.Error(), "already been initialised") {
		t.Errorf("unexpected error: %v", err)
	}

	// After Finish the slot is free again.
	if err := first.Finish(context.Background()); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	second, err := StartRun(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartRun after Finish failed: %v", err)
	}
	second.Finish(context.Background())
}

func TestStartRun_RequiresJobType(t *testing.T) {
	if _, err := StartRun(context.Background(), Config{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected an error when no job type is given")
	}
}
