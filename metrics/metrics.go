package metrics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// InferenceType describes what kind of model artifact a metric needs before
// it can be scored.
type InferenceType string

const (
	// InferenceFeatures means the metric consumes embeddings produced by the
	// model on the evaluation samples.
	InferenceFeatures InferenceType = "features"

	// InferenceModel means the metric consumes the model itself (with its
	// classification head removed), without running a forward pass.
	InferenceModel InferenceType = "model"

	// InferenceNone means the metric needs no model artifact at all.
	InferenceNone InferenceType = ""
)

// Model is a loaded model with its classification head removed.
type Model interface {
	Name() string
	NumParameters() int64
}

// ModelInput carries the inference artifact handed to a metric. Exactly one
// field is populated, matching the metric's declared inference type.
type ModelInput struct {
	Features *mat.Dense
	Model    Model
}

// Metric scores the transferability of a pretrained model to a target task.
type Metric interface {
	Name() string
	InferenceType() InferenceType

	// DatasetDependent reports whether the score depends on the labels.
	DatasetDependent() bool

	// Fit computes the transferability score for the given inference
	// artifact and label vector.
	Fit(input ModelInput, labels []int) (float64, error)
}

// Options holds the per-metric configuration shared by all constructors.
type Options struct {
	// RandomState seeds any stochastic step of the metric.
	RandomState int64 `yaml:"random_state"`

	// ReduceDim is the target dimension for feature reduction, 0 to skip.
	ReduceDim int `yaml:"reduce_dim"`

	// ScaleFeatures standardizes feature columns before scoring.
	ScaleFeatures bool `yaml:"scale_features"`
}

// Constructor builds a metric from its options.
type Constructor func(opts Options) Metric

// registry maps metric names to constructors. It is fixed at compile time;
// metrics are looked up when a run configuration is resolved, never
// registered dynamically.
var registry = map[string]Constructor{
	"parc":   func(opts Options) Metric { return NewPARC(opts) },
	"logme":  func(opts Options) Metric { return NewLogME(opts) },
	"n_pars": func(opts Options) Metric { return NewNumParams(opts) },
}

// New builds the named metric from the registry.
func New(name string, opts Options) (Metric, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q (available: %v)", name, Names())
	}
	return ctor(opts), nil
}

// Names returns the registered metric names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
