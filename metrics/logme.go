package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// fixedPointIterations bounds the alpha/beta evidence optimization. The
// fixed point is reached in a handful of steps in practice.
const fixedPointIterations = 11

// LogME scores transferability as the log of the maximum evidence of the
// labels given the extracted features under a Bayesian linear model (You et
// al., "LogME: Practical Assessment of Pre-trained Models for Transfer
// Learning"). Higher is better; the score is unbounded.
type LogME struct {
	randomState int64
}

// NewLogME builds a LogME metric from the shared metric options. The
// reduction options are ignored: LogME operates on the full feature space.
func NewLogME(opts Options) *LogME {
	return &LogME{randomState: opts.RandomState}
}

func (m *LogME) Name() string                 { return "logme" }
func (m *LogME) InferenceType() InferenceType { return InferenceFeatures }
func (m *LogME) DatasetDependent() bool       { return true }

// Fit computes the mean per-class log evidence of the one-hot label targets
// under the feature design matrix.
func (m *LogME) Fit(input ModelInput, labels []int) (float64, error) {
	features := input.Features
	if features == nil {
		return 0, fmt.Errorf("logme requires extracted features as model input")
	}

	n, d := features.Dims()
	if n != len(labels) {
		return 0, fmt.Errorf("feature matrix has %d rows but %d labels were given", n, len(labels))
	}

	var svd mat.SVD
	if ok := svd.Factorize(features, mat.SVDThin); !ok {
		return 0, fmt.Errorf("svd of the %dx%d feature matrix failed", n, d)
	}
	singular := svd.Values(nil)
	var u mat.Dense
	svd.UTo(&u)

	k := len(singular)
	sigma := make([]float64, k)
	for i, s := range singular {
		sigma[i] = s * s
	}

	numClasses := 0
	for _, label := range labels {
		if label >= numClasses {
			numClasses = label + 1
		}
	}

	total := 0.0
	z := make([]float64, k)
	for class := 0; class < numClasses; class++ {
		// Project the class indicator onto the left singular vectors.
		y2 := 0.0
		for i := range z {
			z[i] = 0
		}
		for row, label := range labels {
			if label != class {
				continue
			}
			y2++
			for i := 0; i < k; i++ {
				z[i] += u.At(row, i)
			}
		}

		z2 := 0.0
		for _, v := range z {
			z2 += v * v
		}
		// Residual of y outside the feature column space.
		resZ2 := y2 - z2
		if resZ2 < 0 {
			resZ2 = 0
		}

		total += evidence(sigma, z, resZ2, n, d)
	}

	return total / float64(numClasses), nil
}

// evidence runs the alpha/beta fixed-point optimization for one target and
// returns the per-sample log evidence.
func evidence(sigma, z []float64, resZ2 float64, n, d int) float64 {
	const eps = 1e-5

	alpha, beta := 1.0, 1.0
	var m2, res2 float64
	for it := 0; it < fixedPointIterations; it++ {
		t := alpha / beta
		gamma := 0.0
		m2 = 0.0
		res2 = resZ2
		for i, s := range sigma {
			gamma += s / (s + t)
			denom := (s + t) * (s + t)
			m2 += s * z[i] * z[i] / denom
			res2 += t * t * z[i] * z[i] / denom
		}
		alpha = gamma / (m2 + eps)
		beta = (float64(n) - gamma) / (res2 + eps)
	}

	logDet := 0.0
	for _, s := range sigma {
		logDet += math.Log(alpha + beta*s)
	}
	// Dimensions beyond the data rank contribute log(alpha) each.
	logDet += float64(d-len(sigma)) * math.Log(alpha)

	ev := float64(n)/2*math.Log(beta) +
		float64(d)/2*math.Log(alpha) -
		logDet/2 -
		beta/2*res2 -
		alpha/2*m2 -
		float64(n)/2*math.Log(2*math.Pi)
	return ev / float64(n)
}
