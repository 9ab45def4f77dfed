// Package inference talks to a model inference server that exposes
// feature-extraction and model-metadata endpoints for pretrained backbones.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"gonum.org/v1/gonum/mat"

	"github.com/FrenchMajesty/transfer-metrics/dataset"
	"github.com/FrenchMajesty/transfer-metrics/internal/retry"
	"github.com/FrenchMajesty/transfer-metrics/metrics"
)

// DefaultBatchSize is how many samples are sent per feature-extraction
// request.
const DefaultBatchSize = 32

// Client calls the inference server with retry logic.
type Client struct {
	BaseURL     string
	ModelName   string
	APIKey      string
	HTTPClient  *http.Client
	RetryConfig retry.Config
	BatchSize   int
}

// NewClient creates an inference-server client for the given model.
func NewClient(baseURL, modelName, apiKey string) *Client {
	return &Client{
		BaseURL:     baseURL,
		ModelName:   modelName,
		APIKey:      apiKey,
		HTTPClient:  http.DefaultClient,
		RetryConfig: retry.DefaultConfig(),
		BatchSize:   DefaultBatchSize,
	}
}

// ExtractFeatures runs the model backbone (head removed) over every sample
// and returns one feature row per sample, in dataset order.
func (c *Client) ExtractFeatures(ctx context.Context, ds *dataset.Dataset, device string) (*mat.Dense, error) {
	inputs := ds.Inputs()
	var rows [][]float64

	for start := 0; start < len(inputs); start += c.batchSize() {
		end := start + c.batchSize()
		if end > len(inputs) {
			end = len(inputs)
		}

		req := featuresRequest{
			Model:    c.ModelName,
			Inputs:   inputs[start:end],
			Device:   device,
			DropHead: true,
		}
		body, err := c.post(ctx, "/v1/features", req)
		if err != nil {
			return nil, err
		}

		var resp featuresResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse features response: %w", err)
		}
		if len(resp.Features) != end-start {
			return nil, fmt.Errorf("inference server returned %d feature rows for %d inputs", len(resp.Features), end-start)
		}
		rows = append(rows, resp.Features...)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no samples to extract features for")
	}
	dim := len(rows[0])
	out := mat.NewDense(len(rows), dim, nil)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("feature row %d has %d values, expected %d", i, len(row), dim)
		}
		out.SetRow(i, row)
	}
	return out, nil
}

// LoadModel fetches the model's metadata (head removed) without running any
// forward pass.
func (c *Client) LoadModel(ctx context.Context) (metrics.Model, error) {
	body, err := c.get(ctx, "/v1/models/"+url.PathEscape(c.ModelName))
	if err != nil {
		return nil, err
	}

	var info modelInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse model info response: %w", err)
	}
	if info.Name == "" {
		info.Name = c.ModelName
	}
	return &remoteModel{info: info}, nil
}

func (c *Client) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, encoded)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	return retry.Do(ctx, c.RetryConfig, "inference", retry.OnServerErrors, func() ([]byte, int, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, 0, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return body, resp.StatusCode, &APIError{StatusCode: resp.StatusCode, RawBody: body}
		}
		return body, resp.StatusCode, nil
	})
}

// remoteModel is the local handle for a model hosted on the inference
// server.
type remoteModel struct {
	info modelInfo
}

func (m *remoteModel) Name() string         { return m.info.Name }
func (m *remoteModel) NumParameters() int64 { return m.info.NumParameters }

// HiddenSize is the dimensionality of the backbone's feature output.
func (m *remoteModel) HiddenSize() int { return m.info.HiddenSize }
