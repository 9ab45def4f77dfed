package metrics

import "fmt"

// NumParams scores a model by its parameter count. It is a dataset-free
// baseline: larger pretrained models tend to transfer better, so the raw
// count is a surprisingly competitive reference point for the learned
// metrics to beat.
type NumParams struct{}

// NewNumParams builds the parameter-count metric. The options are accepted
// for registry uniformity but the metric has no configuration.
func NewNumParams(_ Options) *NumParams {
	return &NumParams{}
}

func (m *NumParams) Name() string                 { return "n_pars" }
func (m *NumParams) InferenceType() InferenceType { return InferenceModel }
func (m *NumParams) DatasetDependent() bool       { return false }

// Fit returns the model's parameter count as the score.
func (m *NumParams) Fit(input ModelInput, _ []int) (float64, error) {
	if input.Model == nil {
		return 0, fmt.Errorf("n_pars requires a loaded model as input")
	}
	return float64(input.Model.NumParameters()), nil
}
