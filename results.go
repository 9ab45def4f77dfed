package transfermetrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// MetricResult is one metric's score and the time it took to compute, in
// seconds.
type MetricResult struct {
	Score float64 `json:"score"`
	Time  float64 `json:"time"`
}

// Results is the write-once record of an experiment run. It is created at
// orchestrator construction, mutated additively while the run progresses,
// and persisted once at the end.
type Results struct {
	// Config is a copy of the run configuration.
	Config map[string]any `json:"config"`

	// InferenceTimes holds elapsed seconds per inference type.
	InferenceTimes map[string]float64 `json:"inference_times"`

	// MetricScores maps metric name to score and timing.
	MetricScores map[string]MetricResult `json:"metric_scores"`

	// Warnings records recovered problems, surfaced so callers and test
	// suites can assert on them rather than scrape logs.
	Warnings []string `json:"warnings,omitempty"`
}

func newResults(cfg Config) *Results {
	return &Results{
		Config:         cfg.Metadata(),
		InferenceTimes: make(map[string]float64),
		MetricScores:   make(map[string]MetricResult),
	}
}

// Flat returns the results as a flat-friendly map for the tracking sink.
func (r *Results) Flat() map[string]any {
	out := map[string]any{
		"config": r.Config,
	}
	inference := make(map[string]any, len(r.InferenceTimes))
	for inferenceType, seconds := range r.InferenceTimes {
		inference[inferenceType] = seconds
	}
	out["inference_times"] = inference

	scores := make(map[string]any, len(r.MetricScores))
	for name, res := range r.MetricScores {
		scores[name] = map[string]any{"score": res.Score, "time": res.Time}
	}
	out["metric_scores"] = scores
	return out
}

// save writes the record as JSON to a fresh file under saveDir, named with
// the timestamp and a short unique suffix so parallel array jobs never
// collide.
func (r *Results) save(saveDir string) (string, error) {
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create save directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	suffix := uuid.New().String()[:8]
	path := filepath.Join(saveDir, fmt.Sprintf("results_%s_%s.json", timestamp, suffix))

	encoded, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return path, nil
}
