package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// InvalidDimensionError is returned when a feature-reduction request asks
// for more components than the data rank permits.
type InvalidDimensionError struct {
	Requested int
	MaxRank   int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("cannot reduce features to %d dimensions: maximum obtainable rank is %d", e.Requested, e.MaxRank)
}

// reduceFeatures projects the (n x d) feature matrix onto its first dim
// principal components, preserving maximal variance. A dim of 0 means no
// reduction and returns the input unchanged. The projection uses an exact
// SVD, so the result is deterministic.
func reduceFeatures(features *mat.Dense, dim int) (*mat.Dense, error) {
	if dim == 0 {
		return features, nil
	}

	n, d := features.Dims()
	maxRank := n
	if d < n {
		maxRank = d
	}
	if dim > maxRank {
		return nil, &InvalidDimensionError{Requested: dim, MaxRank: maxRank}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(features, nil); !ok {
		return nil, fmt.Errorf("principal component decomposition failed for %dx%d feature matrix", n, d)
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)

	var reduced mat.Dense
	reduced.Mul(features, vectors.Slice(0, d, 0, dim))
	return &reduced, nil
}

// standardize rescales each feature column to zero mean and unit variance.
// Zero-variance columns are centered only.
func standardize(features *mat.Dense) *mat.Dense {
	n, d := features.Dims()
	out := mat.NewDense(n, d, nil)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, features)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		for i := 0; i < n; i++ {
			out.Set(i, j, (col[i]-mean)/std)
		}
	}
	return out
}
