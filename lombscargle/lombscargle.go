// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lombscargle computes the generalized (floating-mean)
// Lomb-Scargle periodogram of an unevenly sampled time series.
package lombscargle

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Normalization selects how the raw chi-square reduction is scaled.
type Normalization string

const (
	// Standard normalizes power to [0, 1] by the residual of the
	// constant-only model.
	Standard Normalization = "standard"
	// Model normalizes power by the residual of the best-fit model.
	Model Normalization = "model"
	// PSD leaves the power in units of the chi-square reduction.
	PSD Normalization = "psd"
)

// Config controls the frequency grid and the power normalization. The
// zero value selects the defaults documented on each field.
type Config struct {
	// Normalization of the power values. Default Standard.
	Normalization Normalization
	// SamplesPerPeak is the grid oversampling factor. Default 5.
	SamplesPerPeak int
	// NyquistFactor scales the automatic maximum frequency. Default 1.
	NyquistFactor float64
	// MinFreq and MaxFreq override the automatic grid limits when > 0.
	MinFreq float64
	MaxFreq float64
}

func (cfg Config) samplesPerPeak() int {
	if cfg.SamplesPerPeak <= 0 {
		return 5
	}
	return cfg.SamplesPerPeak
}

func (cfg Config) nyquistFactor() float64 {
	if cfg.NyquistFactor <= 0 {
		return 1
	}
	return cfg.NyquistFactor
}

func (cfg Config) normalization() Normalization {
	if cfg.Normalization == "" {
		return Standard
	}
	return cfg.Normalization
}

// Periodogram computes the generalized Lomb-Scargle power of the series
// (ts, ys) on an automatically chosen frequency grid. The grid spacing is
// 1/(SamplesPerPeak*T) for an observation baseline T, starting at half a
// grid step and extending to NyquistFactor times the average Nyquist
// frequency n/(2T).
func Periodogram(ts, ys []float64, cfg Config) (freqs, power []float64, err error) {
	if len(ts) != len(ys) {
		return nil, nil, errors.Errorf("lombscargle: length mismatch (time=%d, mag=%d)", len(ts), len(ys))
	}
	if len(ts) < 2 {
		return nil, nil, errors.Errorf("lombscargle: need at least 2 samples, got %d", len(ts))
	}

	baseline := floats.Max(ts) - floats.Min(ts)
	if baseline <= 0 {
		return nil, nil, errors.Errorf("lombscargle: degenerate time baseline %v", baseline)
	}

	df := 1 / (baseline * float64(cfg.samplesPerPeak()))
	fmin := cfg.MinFreq
	if fmin <= 0 {
		fmin = 0.5 * df
	}
	fmax := cfg.MaxFreq
	if fmax <= 0 {
		fmax = cfg.nyquistFactor() * 0.5 * float64(len(ts)) / baseline
	}
	if fmax <= fmin {
		return nil, nil, errors.Errorf("lombscargle: empty frequency grid [%v, %v]", fmin, fmax)
	}

	n := 1 + int(math.Round((fmax-fmin)/df))
	freqs = make([]float64, n)
	for i := range freqs {
		freqs[i] = fmin + float64(i)*df
	}

	power, err = Power(ts, ys, freqs, cfg.normalization())
	if err != nil {
		return nil, nil, err
	}
	return freqs, power, nil
}

// Power computes the generalized Lomb-Scargle power of (ts, ys) at the
// given frequencies.
func Power(ts, ys []float64, freqs []float64, norm Normalization) ([]float64, error) {
	if len(ts) != len(ys) {
		return nil, errors.Errorf("lombscargle: length mismatch (time=%d, mag=%d)", len(ts), len(ys))
	}

	n := float64(len(ys))
	mean := floats.Sum(ys) / n

	yy := 0.0
	yc := make([]float64, len(ys))
	for i, y := range ys {
		d := y - mean
		yc[i] = d
		yy += d * d
	}
	yy /= n

	power := make([]float64, len(freqs))
	for i, f := range freqs {
		omega := 2 * math.Pi * f

		var c, s, cc, ss, cs, ycos, ysin float64
		for k, t := range ts {
			sin, cos := math.Sincos(omega * t)
			c += cos
			s += sin
			cc += cos * cos
			ss += sin * sin
			cs += cos * sin
			ycos += yc[k] * cos
			ysin += yc[k] * sin
		}
		c /= n
		s /= n
		cc = cc/n - c*c
		ss = ss/n - s*s
		cs = cs/n - c*s
		ycos /= n
		ysin /= n

		d := cc*ss - cs*cs
		denom := yy * d
		if denom <= 0 {
			continue
		}
		p := (ss*ycos*ycos + cc*ysin*ysin - 2*cs*ycos*ysin) / denom

		switch norm {
		case Model:
			power[i] = p / (1 - p)
		case PSD:
			power[i] = 0.5 * n * yy * p
		default:
			power[i] = p
		}
	}
	return power, nil
}
