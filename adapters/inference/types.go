package inference

import (
	"encoding/json"
	"fmt"
)

type featuresRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
	Device string   `json:"device,omitempty"`
	// DropHead asks the server to run the backbone only, skipping the
	// classification head.
	DropHead bool `json:"drop_head"`
}

type featuresResponse struct {
	Features [][]float64 `json:"features"`
}

type modelInfo struct {
	Name          string `json:"name"`
	NumParameters int64  `json:"num_parameters"`
	HiddenSize    int    `json:"hidden_size"`
}

// APIError is a non-2xx response from the inference server.
type APIError struct {
	StatusCode int
	RawBody    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference server returned status %d: %s", e.StatusCode, string(e.RawBody))
}
