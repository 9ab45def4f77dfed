// Package pinecone caches extracted feature matrices in a Pinecone index so
// repeated experiments over the same (model, dataset, seed) combination can
// skip the inference pass.
package pinecone

import (
	"context"
	"fmt"
	"os"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/types/known/structpb"
)

// fetchBatchSize is the id limit per fetch request.
const fetchBatchSize = 100

// Store persists feature rows as vectors keyed by run identity.
type Store struct {
	index indexOperations
}

// indexOperations is the slice of the Pinecone index API the store needs,
// kept narrow so tests can substitute a fake.
type indexOperations interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	FetchVectors(ctx context.Context, ids []string) (*pinecone.FetchVectorsResponse, error)
}

// NewStore connects to a Pinecone index. Key and host fall back to the
// PINECONE_API_KEY and PINECONE_HOST environment variables.
func NewStore(apiKey, host, namespace string) (*Store, error) {
	if apiKey == "" {
		apiKey = os.Getenv("PINECONE_API_KEY")
	}
	if host == "" {
		host = os.Getenv("PINECONE_HOST")
	}
	if apiKey == "" || host == "" {
		return nil, fmt.Errorf("pinecone feature cache needs an API key and index host")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	index, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone index: %w", err)
	}

	return &Store{index: index}, nil
}

// Store writes one vector per feature row under the given run key.
func (s *Store) Store(ctx context.Context, key string, features *mat.Dense) error {
	n, d := features.Dims()
	vectors := make([]*pinecone.Vector, n)
	for i := 0; i < n; i++ {
		values := make([]float32, d)
		for j := 0; j < d; j++ {
			values[j] = float32(features.At(i, j))
		}

		metadata, err := structpb.NewStruct(map[string]any{
			"run_key": key,
			"row":     i,
			"rows":    n,
		})
		if err != nil {
			return fmt.Errorf("failed to build vector metadata: %w", err)
		}

		vectors[i] = &pinecone.Vector{
			Id:     rowID(key, i),
			Values: values,
			Metadata: &pinecone.Metadata{
				Fields: metadata.Fields,
			},
		}
	}

	if _, err := s.index.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to upsert feature rows: %w", err)
	}
	return nil
}

// Fetch reassembles the cached feature matrix for the run key, expecting n
// rows. The second return is false on a cache miss (any row absent).
func (s *Store) Fetch(ctx context.Context, key string, n int) (*mat.Dense, bool, error) {
	rows := make([][]float32, n)
	for start := 0; start < n; start += fetchBatchSize {
		end := start + fetchBatchSize
		if end > n {
			end = n
		}
		ids := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			ids = append(ids, rowID(key, i))
		}

		resp, err := s.index.FetchVectors(ctx, ids)
		if err != nil {
			return nil, false, fmt.Errorf("failed to fetch feature rows: %w", err)
		}
		for i := start; i < end; i++ {
			vec, ok := resp.Vectors[rowID(key, i)]
			if !ok || vec == nil {
				return nil, false, nil
			}
			rows[i] = vec.Values
		}
	}

	if n == 0 || len(rows[0]) == 0 {
		return nil, false, nil
	}
	d := len(rows[0])
	out := mat.NewDense(n, d, nil)
	for i, row := range rows {
		if len(row) != d {
			return nil, false, fmt.Errorf("cached row %d has %d values, expected %d", i, len(row), d)
		}
		for j, v := range row {
			out.Set(i, j, float64(v))
		}
	}
	return out, true, nil
}

func rowID(key string, row int) string {
	return fmt.Sprintf("%s:%d", key, row)
}
