package transfermetrics

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/FrenchMajesty/transfer-metrics/dataset"
	"github.com/FrenchMajesty/transfer-metrics/metrics"
)

// FeatureExtractor produces a feature matrix by running the model backbone
// (head removed) over every dataset sample.
type FeatureExtractor interface {
	ExtractFeatures(ctx context.Context, ds *dataset.Dataset, device string) (*mat.Dense, error)
}

// ModelLoader loads the model with its classification head removed, without
// running a forward pass.
type ModelLoader interface {
	LoadModel(ctx context.Context) (metrics.Model, error)
}

// FeatureStore is an optional cache for extracted feature matrices, keyed
// by run identity.
type FeatureStore interface {
	Fetch(ctx context.Context, key string, n int) (*mat.Dense, bool, error)
	Store(ctx context.Context, key string, features *mat.Dense) error
}

// DatasetLoader loads a named dataset. The default implementation reads
// JSONL manifests from disk; tests substitute in-memory datasets.
type DatasetLoader interface {
	LoadDataset(name string, args dataset.LoadArgs, cacheDir string) (*dataset.Dataset, error)
}

// Providers bundles the external collaborators an experiment needs. The
// feature store and dataset loader are optional; a nil dataset loader means
// manifests are read from disk.
type Providers struct {
	Extractor    FeatureExtractor
	ModelLoader  ModelLoader
	FeatureStore FeatureStore
	Datasets     DatasetLoader
}

// UnsupportedInferenceTypeError is returned when a metric declares an
// inference type the orchestrator does not implement.
type UnsupportedInferenceTypeError struct {
	Type metrics.InferenceType
}

func (e *UnsupportedInferenceTypeError) Error() string {
	return "no inference implemented for type '" + string(e.Type) + "'"
}
