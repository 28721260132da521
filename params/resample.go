package params

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

var ErrSingularCovariance = errors.New("sample covariance is not positive definite")

// ResampleMultivariateNormal fits a multivariate normal to samples (one row
// per sample, one column per parameter) and draws new rows from it.
// The result has (n/p)*p rows, p being the number of parameters.
func ResampleMultivariateNormal(samples *mat.Dense, n int, src rand.Source) (*mat.Dense, error) {
	rows, p := samples.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("need at least 2 samples, have %d", rows)
	}
	draws := (n / p) * p
	if draws <= 0 {
		return nil, fmt.Errorf("cannot draw %d samples of %d parameters", n, p)
	}

	mean := make([]float64, p)
	col := make([]float64, rows)
	for j := range mean {
		mat.Col(col, j, samples)
		mean[j] = stat.Mean(col, nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, samples, nil)

	normal, ok := distmv.NewNormal(mean, &cov, src)
	if !ok {
		return nil, ErrSingularCovariance
	}

	out := mat.NewDense(draws, p, nil)
	row := make([]float64, p)
	for i := 0; i < draws; i++ {
		normal.Rand(row)
		out.SetRow(i, row)
	}
	return out, nil
}
