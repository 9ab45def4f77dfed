package sweep_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	transfermetrics "github.com/FrenchMajesty/transfer-metrics"
	"github.com/FrenchMajesty/transfer-metrics/sweep"
)

func gridConfig(t *testing.T) *sweep.TopLevelConfig {
	t.Helper()
	cfg := &sweep.TopLevelConfig{
		ConfigDir:    t.TempDir(),
		Models:       []string{"vit-base", "resnet-50"},
		DatasetNames: []string{"cifar10", "food101"},
		NSamples:     []int{100, 500},
		RandomStates: []int64{42, 43},
		Metrics:      []string{"parc", "n_pars"},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("grid config invalid: %v", err)
	}
	return cfg
}

func TestGenerateSubConfigs_GridSize(t *testing.T) {
	cfg := gridConfig(t)

	configs, warnings := cfg.GenerateSubConfigs()
	if len(configs) != 16 {
		t.Fatalf("expected 2*2*2*2 = 16 configs, got %d", len(configs))
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	// Every combination appears exactly once.
	seen := map[string]bool{}
	for _, c := range configs {
		key := c.ModelName + "|" + c.DatasetName
		seen[key] = true
		if c.NSamples != 100 && c.NSamples != 500 {
			t.Errorf("unexpected n_samples %d", c.NSamples)
		}
		if len(c.Metrics) != 2 {
			t.Errorf("metrics not copied into sub config: %v", c.Metrics)
		}
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 model/dataset pairs, got %d", len(seen))
	}
}

func TestGenerateSubConfigs_KeepLabelsSweep(t *testing.T) {
	cfg := gridConfig(t)
	cfg.Models = []string{"vit-base"}
	cfg.DatasetNames = []string{"cifar10"}
	cfg.NSamples = []int{100}
	cfg.RandomStates = []int64{42}
	cfg.KeepLabels = [][]string{{"cat", "dog"}, {"bird", "plane"}}

	configs, _ := cfg.GenerateSubConfigs()
	if len(configs) != 2 {
		t.Fatalf("expected one config per label subset, got %d", len(configs))
	}
	if got := configs[0].DatasetArgs.KeepLabels; len(got) != 2 || got[0] != "cat" {
		t.Errorf("first config should keep cat/dog, got %v", got)
	}
	if got := configs[1].DatasetArgs.KeepLabels; len(got) != 2 || got[0] != "bird" {
		t.Errorf("second config should keep bird/plane, got %v", got)
	}
}

func TestGenerateSubConfigs_ArrayJobCap(t *testing.T) {
	cfg := gridConfig(t)
	cfg.MaxArrayJobs = 10

	_, warnings := cfg.GenerateSubConfigs()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "array jobs") {
		t.Errorf("expected an array-job cap warning, got %v", warnings)
	}
}

func TestSaveSubConfigs_RoundTrip(t *testing.T) {
	cfg := gridConfig(t)
	configs, _ := cfg.GenerateSubConfigs()

	dir, err := cfg.SaveSubConfigs(configs)
	if err != nil {
		t.Fatalf("SaveSubConfigs failed: %v", err)
	}
	if filepath.Base(dir) != cfg.ConfigGenDtime {
		t.Errorf("batch directory should be stamped with config_gen_dtime, got %s", dir)
	}

	// Slurm array tasks index from 1.
	first := filepath.Join(dir, "config_metrics_1.yaml")
	loaded, err := transfermetrics.ReadConfig(first)
	if err != nil {
		t.Fatalf("generated config does not round-trip: %v", err)
	}
	if loaded.ModelName != "vit-base" {
		t.Errorf("expected first config for vit-base, got %s", loaded.ModelName)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(configs) {
		t.Errorf("expected %d files, got %d", len(configs), len(entries))
	}
}

func TestWriteJobScript(t *testing.T) {
	cfg := gridConfig(t)
	configs, _ := cfg.GenerateSubConfigs()
	dir, err := cfg.SaveSubConfigs(configs)
	if err != nil {
		t.Fatal(err)
	}

	path, err := cfg.WriteJobScript(dir, len(configs))
	if err != nil {
		t.Fatalf("WriteJobScript failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	script := string(raw)
	for _, want := range []string{
		"#SBATCH --job-name=metrics_experiment",
		"#SBATCH --time=0-0:30:0",
		"#SBATCH --array=1-16",
		"config_metrics_${SLURM_ARRAY_TASK_ID}.yaml",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("jobscript missing %q:\n%s", want, script)
		}
	}
}
