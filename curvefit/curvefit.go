// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package curvefit fits a parametric model to data by nonlinear least
// squares, treating the model as a black box.
package curvefit

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

// Model evaluates a parametric curve at x.
type Model func(x float64, p []float64) float64

// Fit minimizes the sum of squared residuals of model over (xs, ys) for
// nparams parameters, starting from all ones. It returns the best-fit
// parameter vector.
func Fit(model Model, xs, ys []float64, nparams int) ([]float64, error) {
	p0 := make([]float64, nparams)
	for i := range p0 {
		p0[i] = 1
	}
	return FitFrom(model, xs, ys, p0)
}

// FitFrom is Fit with an explicit starting parameter vector.
func FitFrom(model Model, xs, ys []float64, p0 []float64) ([]float64, error) {
	if len(xs) != len(ys) {
		return nil, errors.Errorf("curvefit: length mismatch (x=%d, y=%d)", len(xs), len(ys))
	}
	if len(xs) < len(p0) {
		return nil, errors.Errorf("curvefit: %d samples cannot constrain %d parameters", len(xs), len(p0))
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var sse float64
			for i, x := range xs {
				r := model(x, p) - ys[i]
				sse += r * r
			}
			return sse
		},
	}

	res, err := optimize.Minimize(problem, p0, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "curvefit: minimization failed")
	}
	if err := res.Status.Err(); err != nil {
		return nil, errors.Wrap(err, "curvefit: minimization did not converge")
	}
	return res.X, nil
}
