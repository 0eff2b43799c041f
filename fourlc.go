// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fourlc extracts periodic features from light curves of variable
// stars by iterative multi-frequency harmonic decomposition (Richards et
// al., 2011): find the dominant peak of a spectral-power estimate, fit a
// 4-harmonic sinusoid model at that frequency, subtract the fit and repeat
// on the whitened residual.
package fourlc

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/varstar-lpc/fourlc/curvefit"
	"github.com/varstar-lpc/fourlc/lombscargle"
)

const (
	// NumSlots is the number of ranked frequency slots.
	NumSlots = 5
	// NumHarmonics is the number of harmonics fitted per frequency.
	NumHarmonics = 4
)

// Default gate parameters for the conditional extension slots.
const (
	DefaultSNRThreshold = 3.0
	DefaultWindowSize   = 0.5
)

// Pulsation-type and eclipsing-type frequency bands used to decide where
// the extension slots search (cycles per unit time).
var (
	band1 = [2]float64{0.4, 3.3}
	band2 = [2]float64{3.3, 27.4}
)

// Spectrum is a spectral-power estimate over a monotonically increasing
// frequency grid.
type Spectrum struct {
	Freqs []float64
	Power []float64
}

// PeriodogramFunc estimates the spectral power of a (time, magnitude)
// series. The frequency grid must be sorted in increasing order.
type PeriodogramFunc func(ts, mags []float64) (Spectrum, error)

// PeakFunc returns the indices of the local maxima of a power array.
type PeakFunc func(power []float64) []int

// Model evaluates a parametric curve at x.
type Model func(x float64, p []float64) float64

// FitFunc fits a 3-parameter model to (xs, ys) by least squares and
// returns the best-fit parameter vector.
type FitFunc func(model Model, xs, ys []float64) ([]float64, error)

// Extractor runs the iterative frequency extraction. The zero value is not
// usable: Periodogram must be set. New returns an Extractor wired to the
// in-repo Lomb-Scargle estimator.
type Extractor struct {
	Periodogram PeriodogramFunc
	FindPeaks   PeakFunc // nil means LocalMaxima
	CurveFit    FitFunc  // nil means the curvefit-backed default

	SNRThreshold float64 // extension-slot gate; <= 0 means DefaultSNRThreshold
	WindowSize   float64 // SNR noise window half-width; <= 0 means DefaultWindowSize
}

// New returns an Extractor using the generalized Lomb-Scargle periodogram
// with the provided configuration and the package defaults for everything
// else.
func New(cfg lombscargle.Config) *Extractor {
	return &Extractor{
		Periodogram: func(ts, mags []float64) (Spectrum, error) {
			freqs, power, err := lombscargle.Periodogram(ts, mags, cfg)
			if err != nil {
				return Spectrum{}, err
			}
			return Spectrum{Freqs: freqs, Power: power}, nil
		},
	}
}

// Components holds the raw decomposition: one entry per attempted slot, in
// rank order. A slot whose frequency search found no peak carries NaN for
// its frequency, amplitudes and phases. Phases are relative to the slot's
// own first harmonic, so Phase[i][0] is 0 for every populated slot.
type Components struct {
	Freqs []float64
	Amp   [][NumHarmonics]float64
	Phase [][NumHarmonics]float64
}

// Components decomposes the magnitude series into up to NumSlots harmonic
// components. The first 3 slots are always attempted; the remaining 2 are
// gated by the signal-to-noise threshold and restricted to whichever of
// the two frequency bands the first 3 slots left unrepresented.
//
// Search failures (no local maximum, peak below the SNR gate) are normal
// outcomes and leave slots absent; only collaborator failures return an
// error.
func (ex *Extractor) Components(mags, ts []float64) (Components, error) {
	tt := make([]float64, len(ts))
	tmin := math.Inf(1)
	for _, t := range ts {
		if t < tmin {
			tmin = t
		}
	}
	for i, t := range ts {
		tt[i] = t - tmin
	}

	resid := make([]float64, len(mags))
	copy(resid, mags)

	var out Components
	for i := 0; i < 3; i++ {
		freq, err := ex.dominantFreq(tt, resid)
		if err != nil {
			return Components{}, err
		}
		if math.IsNaN(freq) {
			out.append(freq, nanHarmonics(), nanHarmonics())
			continue
		}
		amp, ph, err := ex.whiten(tt, resid, freq)
		if err != nil {
			return Components{}, err
		}
		out.append(freq, amp, ph)
	}

	band := missingBand(out.Freqs)
	for i := 0; i < NumSlots-3; i++ {
		freq, err := ex.significantFreq(tt, resid, band)
		if err != nil {
			return Components{}, err
		}
		if math.IsNaN(freq) {
			break
		}
		amp, ph, err := ex.whiten(tt, resid, freq)
		if err != nil {
			return Components{}, err
		}
		out.append(freq, amp, ph)
	}

	for i := range out.Phase {
		ph0 := out.Phase[i][0]
		for j := range out.Phase[i] {
			out.Phase[i][j] = wrapPhase(out.Phase[i][j] - ph0)
		}
	}
	return out, nil
}

func (c *Components) append(freq float64, amp, ph [NumHarmonics]float64) {
	c.Freqs = append(c.Freqs, freq)
	c.Amp = append(c.Amp, amp)
	c.Phase = append(c.Phase, ph)
}

// missingBand decides where the extension slots search: nil (unrestricted)
// when both bands are already represented, otherwise the band none of the
// extracted frequencies fell into.
func missingBand(freqs []float64) *[2]float64 {
	var in1, in2 bool
	for _, f := range freqs {
		if band1[0] <= f && f <= band1[1] {
			in1 = true
		}
		if band2[0] <= f && f <= band2[1] {
			in2 = true
		}
	}
	switch {
	case in1 && in2:
		return nil
	case !in1:
		b := band1
		return &b
	default:
		b := band2
		return &b
	}
}

// dominantFreq returns the frequency of the strongest local maximum of the
// residual's periodogram, or NaN when there is none.
func (ex *Extractor) dominantFreq(ts, resid []float64) (float64, error) {
	sp, err := ex.Periodogram(ts, resid)
	if err != nil {
		return 0, errors.Wrap(err, "fourlc: could not compute periodogram")
	}
	peak := ex.bestPeak(sp.Power)
	if peak < 0 {
		return math.NaN(), nil
	}
	return sp.Freqs[peak], nil
}

// significantFreq is dominantFreq with an optional band restriction and a
// signal-to-noise gate. It returns NaN when no peak exists or the best
// peak fails the gate.
func (ex *Extractor) significantFreq(ts, resid []float64, band *[2]float64) (float64, error) {
	sp, err := ex.Periodogram(ts, resid)
	if err != nil {
		return 0, errors.Wrap(err, "fourlc: could not compute periodogram")
	}
	freqs, power := sp.Freqs, sp.Power
	if band != nil {
		beg := sort.SearchFloat64s(freqs, band[0])
		end := beg
		for end < len(freqs) && freqs[end] <= band[1] {
			end++
		}
		freqs, power = freqs[beg:end], power[beg:end]
	}
	peak := ex.bestPeak(power)
	if peak < 0 {
		return math.NaN(), nil
	}
	if snr(freqs, power, peak, ex.windowSize()) < ex.snrThreshold() {
		return math.NaN(), nil
	}
	return freqs[peak], nil
}

// bestPeak returns the local-maximum index with the highest power, ties
// broken by array order, or -1 when there is no local maximum.
func (ex *Extractor) bestPeak(power []float64) int {
	find := ex.FindPeaks
	if find == nil {
		find = LocalMaxima
	}
	peaks := find(power)
	if len(peaks) == 0 {
		return -1
	}
	best := peaks[0]
	for _, p := range peaks[1:] {
		if power[p] > power[best] {
			best = p
		}
	}
	return best
}

// snr is the ratio of the peak power to the mean power of the bins within
// window of the peak frequency, the peak bin excluded. An empty noise
// window counts as infinitely significant.
func snr(freqs, power []float64, peak int, window float64) float64 {
	fmax := freqs[peak]
	var (
		sum float64
		n   int
	)
	for i, f := range freqs {
		if i == peak || f < fmax-window || f > fmax+window {
			continue
		}
		sum += power[i]
		n++
	}
	if n == 0 {
		return math.Inf(1)
	}
	return power[peak] / (sum / float64(n))
}

// whiten fits the 4 harmonics of freq against the residual, one at a time
// in order, subtracting each harmonic's best-fit model before fitting the
// next. It returns the harmonic amplitudes and raw phases.
func (ex *Extractor) whiten(ts, resid []float64, freq float64) (amp, ph [NumHarmonics]float64, err error) {
	fit := ex.CurveFit
	if fit == nil {
		fit = fitCurve
	}
	for j := 0; j < NumHarmonics; j++ {
		hf := float64(j+1) * freq
		p, err := fit(func(t float64, p []float64) float64 {
			return Harmonic(t, hf, p)
		}, ts, resid)
		if err != nil {
			return amp, ph, errors.Wrapf(err, "fourlc: could not fit harmonic %d of frequency %v", j+1, freq)
		}
		a, b := p[0], p[1]
		amp[j] = math.Hypot(a, b)
		ph[j] = math.Atan2(b, a)
		for k, t := range ts {
			resid[k] -= Harmonic(t, hf, p)
		}
	}
	return amp, ph, nil
}

// Harmonic evaluates the single-harmonic model
//
//	y = p[0]*sin(2*pi*f*t) + p[1]*cos(2*pi*f*t) + p[2]
//
// at time t.
func Harmonic(t, f float64, p []float64) float64 {
	s, c := math.Sincos(2 * math.Pi * f * t)
	return p[0]*s + p[1]*c + p[2]
}

func fitCurve(model Model, xs, ys []float64) ([]float64, error) {
	return curvefit.Fit(curvefit.Model(model), xs, ys, 3)
}

func (ex *Extractor) snrThreshold() float64 {
	if ex.SNRThreshold <= 0 {
		return DefaultSNRThreshold
	}
	return ex.SNRThreshold
}

func (ex *Extractor) windowSize() float64 {
	if ex.WindowSize <= 0 {
		return DefaultWindowSize
	}
	return ex.WindowSize
}

// wrapPhase maps ph from (-2*pi, 2*pi) into [-pi, pi].
func wrapPhase(ph float64) float64 {
	switch {
	case ph > math.Pi:
		return ph - 2*math.Pi
	case ph < -math.Pi:
		return ph + 2*math.Pi
	}
	return ph
}

func nanHarmonics() [NumHarmonics]float64 {
	var v [NumHarmonics]float64
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}

// Features is the fixed-schema feature record. Absent slots hold NaN for
// every field. Period[0] is always NaN: the period of the first frequency
// is reported elsewhere and never emitted here.
type Features struct {
	Amplitude [NumSlots][NumHarmonics]float64
	RelPhase  [NumSlots][NumHarmonics]float64
	Period    [NumSlots]float64
}

// Features extracts the harmonic components of the magnitude series and
// assembles them into the fixed feature schema.
func (ex *Extractor) Features(mags, ts []float64) (Features, error) {
	comp, err := ex.Components(mags, ts)
	if err != nil {
		return Features{}, err
	}
	return comp.Features(), nil
}

// Features assembles the decomposition into the fixed feature schema.
func (c Components) Features() Features {
	var fs Features
	for i := 0; i < NumSlots; i++ {
		if i < len(c.Freqs) {
			fs.Amplitude[i] = c.Amp[i]
			fs.RelPhase[i] = c.Phase[i]
		} else {
			fs.Amplitude[i] = nanHarmonics()
			fs.RelPhase[i] = nanHarmonics()
		}
		fs.Period[i] = math.NaN()
		if i > 0 && i < len(c.Freqs) {
			fs.Period[i] = 1 / c.Freqs[i]
		}
	}
	return fs
}

// Map flattens the record into the named feature mapping:
// Freq{1..5}_harmonics_amplitude_{0..3}, Freq{1..5}_harmonics_rel_phase_{0..3}
// and PeriodLS{2..5}. Missing values are NaN. PeriodLS1 is never emitted.
func (fs Features) Map() map[string]float64 {
	m := make(map[string]float64, NumSlots*2*NumHarmonics+NumSlots-1)
	for i := 0; i < NumSlots; i++ {
		for j := 0; j < NumHarmonics; j++ {
			m[fmt.Sprintf("Freq%d_harmonics_amplitude_%d", i+1, j)] = fs.Amplitude[i][j]
			m[fmt.Sprintf("Freq%d_harmonics_rel_phase_%d", i+1, j)] = fs.RelPhase[i][j]
		}
		if i > 0 {
			m[fmt.Sprintf("PeriodLS%d", i+1)] = fs.Period[i]
		}
	}
	return m
}

// Analysis bundles a decomposition with the data needed to plot it.
type Analysis struct {
	Data struct {
		X []float64 // time, shifted to start at zero
		Y []float64 // magnitude
	}
	Spec  Spectrum // periodogram of the raw magnitudes
	Comp  Components
	Feats Features

	Name string
}

// Analyze runs the full extraction on one light curve and keeps the raw
// periodogram around for plotting. A nil Extractor means New with the
// default Lomb-Scargle configuration.
func Analyze(name string, ts, mags []float64, ex *Extractor) (Analysis, error) {
	if ex == nil {
		ex = New(lombscargle.Config{})
	}

	an := Analysis{Name: name}
	an.Data.X = make([]float64, len(ts))
	tmin := math.Inf(1)
	for _, t := range ts {
		if t < tmin {
			tmin = t
		}
	}
	for i, t := range ts {
		an.Data.X[i] = t - tmin
	}
	an.Data.Y = mags

	sp, err := ex.Periodogram(an.Data.X, mags)
	if err != nil {
		return Analysis{}, errors.Wrapf(err, "fourlc: could not compute periodogram of %q", name)
	}
	an.Spec = sp

	an.Comp, err = ex.Components(mags, ts)
	if err != nil {
		return Analysis{}, errors.Wrapf(err, "fourlc: could not decompose %q", name)
	}
	an.Feats = an.Comp.Features()
	return an, nil
}
