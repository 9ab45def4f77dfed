package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// upperTriangular extracts the strictly-upper-triangular entries of a square
// matrix in row-major order. For a symmetric pairwise matrix this yields each
// pair once, excluding self-pairs, n(n-1)/2 values in total.
func upperTriangular(m mat.Matrix) []float64 {
	n, _ := m.Dims()
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// sampleCorrelations computes the n x n Pearson correlation matrix between
// the rows of the (n x d) input. Rows with zero variance produce NaN entries,
// which downstream rank correlation treats as degenerate.
func sampleCorrelations(features mat.Matrix) *mat.SymDense {
	n, _ := features.Dims()
	corr := mat.NewSymDense(n, nil)
	stat.CorrelationMatrix(corr, features.T(), nil)
	return corr
}

// oneHot encodes the label vector as an (n x numClasses) indicator matrix.
func oneHot(labels []int, numClasses int) *mat.Dense {
	out := mat.NewDense(len(labels), numClasses, nil)
	for i, label := range labels {
		out.Set(i, label, 1)
	}
	return out
}

// spearman computes the Spearman rank correlation between two equal-length
// sequences. Degenerate inputs (NaN entries or zero-variance ranks) yield 0
// rather than an error, since they carry no ordering information.
func spearman(a, b []float64) float64 {
	if hasNaN(a) || hasNaN(b) {
		return 0
	}
	r := stat.Correlation(ranks(a), ranks(b), nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// ranks assigns 1-based ranks to the values of x, averaging ranks over ties.
func ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	out := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && x[idx[j]] == x[idx[i]] {
			j++
		}
		// Tied values share the average of the ranks they span.
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			out[idx[k]] = avg
		}
		i = j
	}
	return out
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
