// Package sweep expands a top-level experiment grid into individual run
// configurations, one per (model, dataset, label-subset, sample-size, seed)
// combination, and optionally emits a Slurm array jobscript to run them.
package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	transfermetrics "github.com/FrenchMajesty/transfer-metrics"
	"github.com/FrenchMajesty/transfer-metrics/metrics"
	"github.com/FrenchMajesty/transfer-metrics/tracking"
)

// DefaultMaxArrayJobs is the Slurm scheduler's array-job size cap.
const DefaultMaxArrayJobs = 1001

// TopLevelConfig is the grid definition. The list-valued fields are swept
// over; everything else is copied into each generated config unchanged.
type TopLevelConfig struct {
	ConfigDir string `yaml:"config_dir"`

	Models       []string `yaml:"models"`
	DatasetNames []string `yaml:"dataset_names"`
	NSamples     []int    `yaml:"n_samples"`
	RandomStates []int64  `yaml:"random_states"`

	// KeepLabels optionally sweeps over class subsets of each dataset. An
	// empty outer list means one run per dataset with all classes kept.
	KeepLabels [][]string `yaml:"keep_labels"`

	MetricsSamples int                        `yaml:"metrics_samples"`
	Metrics        []string                   `yaml:"metrics"`
	MetricKwargs   map[string]metrics.Options `yaml:"metric_kwargs"`

	DatasetArgs transfermetrics.DatasetArgs   `yaml:"dataset_args"`
	Caches      transfermetrics.Caches        `yaml:"caches"`
	SaveDir     string                        `yaml:"save_dir"`
	LocalSave   bool                          `yaml:"local_save"`
	Device      string                        `yaml:"device"`
	Inference   transfermetrics.InferenceArgs `yaml:"inference"`

	UseTracking  bool            `yaml:"use_tracking"`
	TrackingArgs tracking.Config `yaml:"tracking_args"`

	// ConfigGenDtime stamps the generated batch; sub configs and the
	// jobscript all land under {config_dir}/{config_gen_dtime}.
	ConfigGenDtime string `yaml:"config_gen_dtime"`

	MaxArrayJobs int `yaml:"max_array_jobs"`

	UseSlurm bool      `yaml:"use_slurm"`
	Slurm    SlurmArgs `yaml:"slurm"`
}

// ReadTopLevel loads a grid definition from a yaml file, fills defaults and
// validates it.
func ReadTopLevel(path string) (*TopLevelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read top-level config: %w", err)
	}
	var cfg TopLevelConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse top-level config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *TopLevelConfig) ApplyDefaults() {
	if c.ConfigGenDtime == "" {
		c.ConfigGenDtime = time.Now().Format("20060102-150405")
	}
	if c.MaxArrayJobs == 0 {
		c.MaxArrayJobs = DefaultMaxArrayJobs
	}
	c.Slurm.applyDefaults()
}

func (c *TopLevelConfig) Validate() error {
	if c.ConfigDir == "" {
		return fmt.Errorf("top-level config is missing config_dir")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("top-level config names no models")
	}
	if len(c.DatasetNames) == 0 {
		return fmt.Errorf("top-level config names no datasets")
	}
	if len(c.NSamples) == 0 {
		return fmt.Errorf("top-level config names no n_samples values")
	}
	if len(c.Metrics) == 0 {
		return fmt.Errorf("top-level config names no metrics")
	}
	return nil
}

// GenerateSubConfigs expands the grid into one run configuration per
// combination of the swept fields. The returned warnings flag conditions the
// caller should surface, currently only a grid larger than the scheduler's
// array-job cap.
func (c *TopLevelConfig) GenerateSubConfigs() ([]transfermetrics.Config, []string) {
	randomStates := c.RandomStates
	if len(randomStates) == 0 {
		randomStates = []int64{0}
	}
	labelSets := c.KeepLabels
	if len(labelSets) == 0 {
		labelSets = [][]string{nil}
	}

	var configs []transfermetrics.Config
	for _, model := range c.Models {
		for _, datasetName := range c.DatasetNames {
			for _, labels := range labelSets {
				for _, n := range c.NSamples {
					for _, seed := range randomStates {
						configs = append(configs, c.subConfig(model, datasetName, labels, n, seed))
					}
				}
			}
		}
	}

	var warnings []string
	if len(configs) > c.MaxArrayJobs {
		warnings = append(warnings, fmt.Sprintf(
			"generated %d configs but array jobs cannot exceed %d", len(configs), c.MaxArrayJobs))
	}
	return configs, warnings
}

func (c *TopLevelConfig) subConfig(model, datasetName string, labels []string, n int, seed int64) transfermetrics.Config {
	datasetArgs := c.DatasetArgs
	if labels != nil {
		datasetArgs.KeepLabels = labels
	}

	trackingArgs := c.TrackingArgs
	if trackingArgs.Group == "" {
		// Group the whole batch together in the tracking UI.
		trackingArgs.Group = datasetName + "_" + c.ConfigGenDtime
	}

	return transfermetrics.Config{
		ModelName:      model,
		DatasetName:    datasetName,
		DatasetArgs:    datasetArgs,
		NSamples:       n,
		MetricsSamples: c.MetricsSamples,
		RandomState:    seed,
		Metrics:        append([]string(nil), c.Metrics...),
		MetricKwargs:   c.MetricKwargs,
		Caches:         c.Caches,
		SaveDir:        c.SaveDir,
		LocalSave:      c.LocalSave,
		Device:         c.Device,
		Inference:      c.Inference,
		UseTracking:    c.UseTracking,
		TrackingArgs:   trackingArgs,
	}
}

// SaveSubConfigs writes the generated configs under
// {config_dir}/{config_gen_dtime}, one yaml file each. File names are
// 1-indexed because Slurm array jobs index from 1.
func (c *TopLevelConfig) SaveSubConfigs(configs []transfermetrics.Config) (string, error) {
	dir := filepath.Join(c.ConfigDir, c.ConfigGenDtime)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	for i, cfg := range configs {
		raw, err := yaml.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to marshal sub config %d: %w", i+1, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("config_metrics_%d.yaml", i+1))
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return dir, nil
}
