// Package voyage extracts features through the Voyage AI embedding API, for
// datasets whose sample inputs are raw text rather than image references.
package voyage

import (
	"context"
	"fmt"
	"os"

	"github.com/austinfhunter/voyageai"
	"gonum.org/v1/gonum/mat"

	"github.com/FrenchMajesty/transfer-metrics/dataset"
)

const defaultModel = "voyage-3.5-lite"

// batchSize is the input limit per embedding request.
const batchSize = 128

// Extractor produces feature matrices from a Voyage embedding model.
type Extractor struct {
	client *voyageai.VoyageClient
	model  string
}

// NewExtractor creates a Voyage-backed feature extractor. The API key falls
// back to the VOYAGEAI_API_KEY environment variable.
func NewExtractor(apiKey, model string) (*Extractor, error) {
	if apiKey == "" {
		apiKey = os.Getenv("VOYAGEAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no Voyage API key provided and VOYAGEAI_API_KEY is not set")
	}
	if model == "" {
		model = defaultModel
	}

	return &Extractor{
		client: voyageai.NewClient(&voyageai.VoyageClientOpts{Key: apiKey}),
		model:  model,
	}, nil
}

// ExtractFeatures embeds every sample input and returns one feature row per
// sample, in dataset order. Voyage has no device notion so the preference
// is ignored.
func (e *Extractor) ExtractFeatures(ctx context.Context, ds *dataset.Dataset, _ string) (*mat.Dense, error) {
	inputs := ds.Inputs()
	inputType := "document"
	var rows [][]float32

	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}

		resp, err := e.client.Embed(inputs[start:end], e.model, &voyageai.EmbeddingRequestOpts{
			InputType: &inputType,
		})
		if err != nil {
			return nil, fmt.Errorf("could not get embeddings: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("voyage returned %d embeddings for %d inputs", len(resp.Data), end-start)
		}
		for _, obj := range resp.Data {
			rows = append(rows, obj.Embedding)
		}
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no samples to extract features for")
	}
	dim := len(rows[0])
	out := mat.NewDense(len(rows), dim, nil)
	for i, row := range rows {
		for j, v := range row {
			out.Set(i, j, float64(v))
		}
	}
	return out, nil
}
