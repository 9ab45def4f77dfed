// Package transfermetrics runs transferability-metric experiments: given a
// pretrained model and a target dataset it computes cheap proxy scores that
// predict fine-tuning performance without any training.
package transfermetrics

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FrenchMajesty/transfer-metrics/dataset"
	"github.com/FrenchMajesty/transfer-metrics/metrics"
	"github.com/FrenchMajesty/transfer-metrics/tracking"
)

// DefaultSaveDir is where result files go when no save directory is set.
const DefaultSaveDir = "results"

// DatasetArgs selects manifest fields, categories and splits.
type DatasetArgs struct {
	dataset.LoadArgs  `yaml:",inline"`
	dataset.SplitArgs `yaml:",inline"`
}

// Caches holds the collaborator cache directories.
type Caches struct {
	Datasets string `yaml:"datasets"`
	Models   string `yaml:"models"`
}

// InferenceArgs configures how inference artifacts are obtained.
type InferenceArgs struct {
	// Extractor picks the feature-extraction backend: "server" (the
	// inference server, default) or "voyage" (text datasets).
	Extractor string `yaml:"extractor"`

	// ServerURL and APIKey locate the inference server.
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`

	// FeatureCache enables the Pinecone-backed feature cache.
	FeatureCache bool   `yaml:"feature_cache"`
	CacheHost    string `yaml:"cache_host"`
}

// Config is the fully-resolved configuration for one experiment run: one
// (model, dataset, metric-set, seed) combination. Defaults are filled once
// at construction; the orchestrator treats the value as immutable for the
// run.
type Config struct {
	ModelName   string      `yaml:"model_name"`
	DatasetName string      `yaml:"dataset_name"`
	DatasetArgs DatasetArgs `yaml:"dataset_args"`

	// NSamples is the training-subset size, MetricsSamples the further
	// subset metrics are computed on.
	NSamples       int `yaml:"n_samples"`
	MetricsSamples int `yaml:"metrics_samples"`

	RandomState int64 `yaml:"random_state"`

	// Metrics names the scorers to run; MetricKwargs carries per-metric
	// options keyed by metric name.
	Metrics      []string                   `yaml:"metrics"`
	MetricKwargs map[string]metrics.Options `yaml:"metric_kwargs"`

	Caches    Caches        `yaml:"caches"`
	SaveDir   string        `yaml:"save_dir"`
	LocalSave bool          `yaml:"local_save"`
	Device    string        `yaml:"device"`
	RunName   string        `yaml:"run_name"`
	Inference InferenceArgs `yaml:"inference"`

	UseTracking  bool            `yaml:"use_tracking"`
	TrackingArgs tracking.Config `yaml:"tracking_args"`
}

// ReadConfig loads a run configuration from a yaml file, fills defaults and
// validates it.
func ReadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyDefaults fills in default values for unset config fields. It is
// called once, before the run starts; nothing re-derives defaults later.
func (c *Config) ApplyDefaults() {
	c.DatasetArgs.LoadArgs.ApplyDefaults()
	c.DatasetArgs.SplitArgs.ApplyDefaults()

	if c.SaveDir == "" {
		c.SaveDir = DefaultSaveDir
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
	if c.MetricsSamples == 0 {
		c.MetricsSamples = c.NSamples
	}
	if c.RunName == "" {
		c.RunName = runName(c.DatasetName, c.ModelName)
	}
	if c.TrackingArgs.RunName == "" {
		c.TrackingArgs.RunName = c.RunName
	}
	if c.TrackingArgs.Group == "" {
		c.TrackingArgs.Group = runName(c.DatasetName, "")
	}
}

// Validate checks the fields every run needs.
func (c Config) Validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("config is missing model_name")
	}
	if c.DatasetName == "" {
		return fmt.Errorf("config is missing dataset_name")
	}
	if len(c.Metrics) == 0 {
		return fmt.Errorf("config names no metrics to score")
	}
	if c.NSamples <= 0 {
		return fmt.Errorf("n_samples must be positive, got %d", c.NSamples)
	}
	if c.MetricsSamples > c.NSamples {
		return fmt.Errorf("metrics_samples (%d) cannot exceed n_samples (%d)", c.MetricsSamples, c.NSamples)
	}
	return nil
}

// Metadata returns the JSON-friendly copy of the configuration stored in
// the results record.
func (c Config) Metadata() map[string]any {
	return map[string]any{
		"model_name":      c.ModelName,
		"dataset_name":    c.DatasetName,
		"n_samples":       c.NSamples,
		"metrics_samples": c.MetricsSamples,
		"random_state":    c.RandomState,
		"metrics":         append([]string(nil), c.Metrics...),
		"device":          c.Device,
		"run_name":        c.RunName,
	}
}

// runName builds a run identifier that stays short enough for the tracking
// service's name limit.
func runName(datasetName, modelName string) string {
	if len(datasetName) > 64 {
		datasetName = datasetName[len(datasetName)-25:]
	}
	name := datasetName
	if modelName != "" {
		name = datasetName + "_" + modelName
	}
	return strings.ReplaceAll(name, "/", "-")
}
