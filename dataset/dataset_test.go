package dataset_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/FrenchMajesty/transfer-metrics/dataset"
)

func writeManifest(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.jsonl")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, []string{
		`{"image": "img/0.png", "label": "cat"}`,
		`{"image": "img/1.png", "label": "dog"}`,
		`{"image": "img/2.png", "label": "cat"}`,
	})

	ds, err := dataset.Load(path, dataset.LoadArgs{}, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if ds.Len() != 3 {
		t.Fatalf("expected 3 samples, got %d", ds.Len())
	}
	if ds.Classes.NumClasses() != 2 {
		t.Fatalf("expected 2 classes, got %d", ds.Classes.NumClasses())
	}

	// Class names are sorted for a stable encoding.
	catIdx, ok := ds.Classes.Index("cat")
	if !ok || catIdx != 0 {
		t.Errorf("expected cat -> 0, got %d (ok=%v)", catIdx, ok)
	}
	if ds.Classes.Name(1) != "dog" {
		t.Errorf("expected index 1 -> dog, got %q", ds.Classes.Name(1))
	}
	if err := ds.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_KeepLabels(t *testing.T) {
	path := writeManifest(t, []string{
		`{"image": "a.png", "label": "cat"}`,
		`{"image": "b.png", "label": "dog"}`,
		`{"image": "c.png", "label": "bird"}`,
	})

	ds, err := dataset.Load(path, dataset.LoadArgs{KeepLabels: []string{"cat", "bird"}}, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 samples after label filtering, got %d", ds.Len())
	}
	if _, ok := ds.Classes.Index("dog"); ok {
		t.Error("filtered-out label should not be in the class encoding")
	}
}

func TestLoad_CustomFields(t *testing.T) {
	path := writeManifest(t, []string{
		`{"file": "a.png", "category": "x"}`,
	})

	ds, err := dataset.Load(path, dataset.LoadArgs{ImageField: "file", LabelField: "category"}, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Samples[0].Input != "a.png" {
		t.Errorf("expected input a.png, got %q", ds.Samples[0].Input)
	}
}

func TestLoad_MissingField(t *testing.T) {
	path := writeManifest(t, []string{`{"image": "a.png"}`})
	if _, err := dataset.Load(path, dataset.LoadArgs{}, ""); err == nil {
		t.Fatal("expected an error for a manifest line without a label")
	}
}

func TestCreateSplits(t *testing.T) {
	ds := makeDataset(100, map[string]int{"cat": 50, "dog": 50})

	splits, err := dataset.CreateSplits(ds, dataset.SplitArgs{}, 7)
	if err != nil {
		t.Fatalf("CreateSplits failed: %v", err)
	}

	total := 0
	for _, name := range []string{"train", "validation", "test"} {
		split, ok := splits[name]
		if !ok {
			t.Fatalf("missing split %q", name)
		}
		total += split.Len()
	}
	if total != 100 {
		t.Errorf("splits should partition the dataset, got %d samples total", total)
	}
	if splits["validation"].Len() != 15 || splits["test"].Len() != 15 {
		t.Errorf("expected 15/15 val/test, got %d/%d", splits["validation"].Len(), splits["test"].Len())
	}

	// Deterministic in the seed.
	again, err := dataset.CreateSplits(ds, dataset.SplitArgs{}, 7)
	if err != nil {
		t.Fatalf("CreateSplits failed: %v", err)
	}
	if again["train"].Samples[0] != splits["train"].Samples[0] {
		t.Error("expected identical splits for the same seed")
	}
}

func TestSubsample_Stratified(t *testing.T) {
	ds := makeDataset(100, map[string]int{"cat": 80, "dog": 20})

	sub, err := ds.Subsample(50, 3, true)
	if err != nil {
		t.Fatalf("Subsample failed: %v", err)
	}
	if sub.Len() != 50 {
		t.Fatalf("expected 50 samples, got %d", sub.Len())
	}

	counts := map[int]int{}
	for _, s := range sub.Samples {
		counts[s.Label]++
	}
	catIdx, _ := sub.Classes.Index("cat")
	dogIdx, _ := sub.Classes.Index("dog")
	if counts[catIdx] != 40 || counts[dogIdx] != 10 {
		t.Errorf("stratification should preserve the 80/20 ratio, got %d/%d", counts[catIdx], counts[dogIdx])
	}
}

func TestSubsample_SingleMemberClass(t *testing.T) {
	ds := makeDataset(21, map[string]int{"cat": 20, "rare": 1})

	_, err := ds.Subsample(10, 3, true)
	if err == nil {
		t.Fatal("expected stratification to fail for a single-member class")
	}

	var stratErr *dataset.StratificationError
	if !errors.As(err, &stratErr) {
		t.Fatalf("expected *StratificationError, got %T: %v", err, err)
	}
	if stratErr.Label != "rare" || stratErr.Count != 1 {
		t.Errorf("unexpected error detail: %+v", stratErr)
	}

	// The unstratified draw must still work on the same dataset.
	sub, err := ds.Subsample(10, 3, false)
	if err != nil {
		t.Fatalf("unstratified Subsample failed: %v", err)
	}
	if sub.Len() != 10 {
		t.Errorf("expected 10 samples, got %d", sub.Len())
	}
}

func TestSubsample_KeepAll(t *testing.T) {
	ds := makeDataset(10, map[string]int{"cat": 5, "dog": 5})
	sub, err := ds.Subsample(50, 1, true)
	if err != nil {
		t.Fatalf("Subsample failed: %v", err)
	}
	if sub.Len() != 10 {
		t.Errorf("oversized request should return the dataset unchanged, got %d samples", sub.Len())
	}
}

// makeDataset builds a dataset with the given per-class sample counts.
func makeDataset(n int, classCounts map[string]int) *dataset.Dataset {
	names := make([]string, 0, len(classCounts))
	for name := range classCounts {
		names = append(names, name)
	}
	// Sorted encoding, matching Load.
	sort.Strings(names)
	classes := dataset.NewClassLabel(names)

	samples := make([]dataset.Sample, 0, n)
	for _, name := range names {
		idx, _ := classes.Index(name)
		for k := 0; k < classCounts[name]; k++ {
			samples = append(samples, dataset.Sample{
				Input: fmt.Sprintf("img/%s_%d.png", name, k),
				Label: idx,
			})
		}
	}
	return &dataset.Dataset{Name: "synthetic", Samples: samples, Classes: classes}
}
