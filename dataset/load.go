package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/gjson"
)

// LoadArgs selects which manifest fields and categories to use when loading.
type LoadArgs struct {
	// ImageField is the manifest key holding the sample input, "image" by
	// default.
	ImageField string `yaml:"image_field"`

	// LabelField is the manifest key holding the category name, "label" by
	// default.
	LabelField string `yaml:"label_field"`

	// KeepLabels restricts the dataset to the named categories. Empty keeps
	// everything.
	KeepLabels []string `yaml:"keep_labels"`
}

// ApplyDefaults fills unset manifest field names.
func (a *LoadArgs) ApplyDefaults() {
	if a.ImageField == "" {
		a.ImageField = "image"
	}
	if a.LabelField == "" {
		a.LabelField = "label"
	}
}

// Load reads a dataset from a JSONL manifest, one sample object per line.
// The class encoding is built from the distinct category names in the
// manifest, sorted for stability across runs. If cacheDir is non-empty the
// manifest is resolved relative to it.
func Load(name string, args LoadArgs, cacheDir string) (*Dataset, error) {
	args.ApplyDefaults()

	path := name
	if cacheDir != "" && !filepath.IsAbs(name) {
		path = filepath.Join(cacheDir, name)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset manifest: %w", err)
	}
	defer f.Close()

	keep := make(map[string]bool, len(args.KeepLabels))
	for _, label := range args.KeepLabels {
		keep[label] = true
	}

	type rawSample struct {
		input string
		label string
	}
	var raw []rawSample
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}
		if !gjson.Valid(text) {
			return nil, fmt.Errorf("invalid JSON on manifest line %d", line)
		}

		input := gjson.Get(text, args.ImageField)
		label := gjson.Get(text, args.LabelField)
		if !input.Exists() || !label.Exists() {
			return nil, fmt.Errorf("manifest line %d is missing %q or %q", line, args.ImageField, args.LabelField)
		}

		if len(keep) > 0 && !keep[label.String()] {
			continue
		}
		raw = append(raw, rawSample{input: input.String(), label: label.String()})
		seen[label.String()] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset manifest: %w", err)
	}

	names := make([]string, 0, len(seen))
	for label := range seen {
		names = append(names, label)
	}
	sort.Strings(names)
	classes := NewClassLabel(names)

	samples := make([]Sample, len(raw))
	for i, r := range raw {
		idx, _ := classes.Index(r.label)
		samples[i] = Sample{Input: r.input, Label: idx}
	}

	return &Dataset{Name: name, Samples: samples, Classes: classes}, nil
}
