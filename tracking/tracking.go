// Package tracking pushes experiment results to an external run-tracking
// service. A process may hold at most one active run at a time, mirroring
// the service's session semantics; Finish releases the slot.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/FrenchMajesty/transfer-metrics/internal/retry"
)

// Config identifies the tracking service and the run being recorded.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Project string `yaml:"project"`
	RunName string `yaml:"run_name"`
	Group   string `yaml:"group"`
	JobType string `yaml:"job_type"`
}

var (
	activeMu sync.Mutex
	active   bool
)

// Run is a handle to an open tracking session.
type Run struct {
	ID string

	cfg        Config
	httpClient *http.Client
	retryCfg   retry.Config
	finished   bool
}

// StartRun opens a tracking session. It fails if another run is already
// active in this process; call Finish on the previous run first.
func StartRun(ctx context.Context, cfg Config) (*Run, error) {
	if cfg.JobType == "" {
		return nil, fmt.Errorf("no job type given for tracking run")
	}

	activeMu.Lock()
	if active {
		activeMu.Unlock()
		return nil, fmt.Errorf("a tracking run has already been initialised in this process")
	}
	active = true
	activeMu.Unlock()

	run := &Run{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		retryCfg:   retry.DefaultConfig(),
	}

	body, err := run.post(ctx, "/api/runs", map[string]any{
		"project":  cfg.Project,
		"name":     cfg.RunName,
		"group":    cfg.Group,
		"job_type": cfg.JobType,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to start tracking run: %w", err)
	}

	run.ID = gjson.GetBytes(body, "id").String()
	if run.ID == "" {
		release()
		return nil, fmt.Errorf("tracking service did not return a run id")
	}
	return run, nil
}

// Log pushes a flat key-value record to the run. Nested maps are flattened
// with dotted keys.
func (r *Run) Log(ctx context.Context, values map[string]any) error {
	flat := make(map[string]any)
	flatten("", values, flat)

	_, err := r.post(ctx, "/api/runs/"+r.ID+"/log", flat)
	if err != nil {
		return fmt.Errorf("failed to log to tracking run %s: %w", r.ID, err)
	}
	return nil
}

// Finish closes the run and releases the process-wide session slot. It is
// safe to call once; further calls are no-ops.
func (r *Run) Finish(ctx context.Context) error {
	if r.finished {
		return nil
	}
	r.finished = true
	defer release()

	_, err := r.post(ctx, "/api/runs/"+r.ID+"/finish", map[string]any{})
	if err != nil {
		return fmt.Errorf("failed to finish tracking run %s: %w", r.ID, err)
	}
	return nil
}

func release() {
	activeMu.Lock()
	active = false
	activeMu.Unlock()
}

func (r *Run) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tracking payload: %w", err)
	}

	return retry.Do(ctx, r.retryCfg, "tracking", retry.OnServerErrors, func() ([]byte, int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, 0, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return body, resp.StatusCode, fmt.Errorf("tracking service returned status %d: %s", resp.StatusCode, body)
		}
		return body, resp.StatusCode, nil
	})
}

// flatten turns nested maps into dotted keys so the record is a flat
// key-value log.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(full, nested, out)
			continue
		}
		out[full] = value
	}
}
