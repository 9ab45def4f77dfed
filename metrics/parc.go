package metrics

import "fmt"

// PARC scores transferability as the rank correlation between the pairwise
// similarity structure of the model's features and that of the labels
// (Bolya et al., "Scalable Diverse Model Selection for Accessible Transfer
// Learning"). Scores are scaled to a 0-100 range.
type PARC struct {
	randomState   int64
	reduceDim     int
	scaleFeatures bool
}

// NewPARC builds a PARC metric from the shared metric options.
func NewPARC(opts Options) *PARC {
	return &PARC{
		randomState:   opts.RandomState,
		reduceDim:     opts.ReduceDim,
		scaleFeatures: opts.ScaleFeatures,
	}
}

func (p *PARC) Name() string                 { return "parc" }
func (p *PARC) InferenceType() InferenceType { return InferenceFeatures }
func (p *PARC) DatasetDependent() bool       { return true }

// Fit computes the PARC score for the given features and labels. A
// reduction dimension exceeding the data rank fails with
// *InvalidDimensionError; degenerate features score 0.
func (p *PARC) Fit(input ModelInput, labels []int) (float64, error) {
	features := input.Features
	if features == nil {
		return 0, fmt.Errorf("parc requires extracted features as model input")
	}

	n, _ := features.Dims()
	if n != len(labels) {
		return 0, fmt.Errorf("feature matrix has %d rows but %d labels were given", n, len(labels))
	}

	if p.scaleFeatures {
		features = standardize(features)
	}

	features, err := reduceFeatures(features, p.reduceDim)
	if err != nil {
		return 0, err
	}

	numClasses := 0
	for _, label := range labels {
		if label >= numClasses {
			numClasses = label + 1
		}
	}

	featPairs := upperTriangular(sampleCorrelations(features))
	labelPairs := upperTriangular(sampleCorrelations(oneHot(labels, numClasses)))

	return spearman(featPairs, labelPairs) * 100, nil
}
