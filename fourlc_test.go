// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fourlc

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/varstar-lpc/fourlc/lombscargle"
)

// queueSpectra returns a PeriodogramFunc replaying the given spectra, one
// per call, repeating the last one.
func queueSpectra(specs ...Spectrum) PeriodogramFunc {
	i := 0
	return func(ts, mags []float64) (Spectrum, error) {
		sp := specs[i]
		if i < len(specs)-1 {
			i++
		}
		return sp, nil
	}
}

// flatSpectrum builds a flat unit-power spectrum over [0, 30] in steps of
// 0.5, with power bumps at the given frequencies.
func flatSpectrum(bumps map[float64]float64) Spectrum {
	var sp Spectrum
	for f := 0.0; f <= 30; f += 0.5 {
		p := 1.0
		if v, ok := bumps[f]; ok {
			p = v
		}
		sp.Freqs = append(sp.Freqs, f)
		sp.Power = append(sp.Power, p)
	}
	return sp
}

func stubFit(m Model, xs, ys []float64) ([]float64, error) {
	return []float64{1, 1, 0}, nil
}

func sinusoid(n int, dt, amp, freq float64) (ts, mags []float64) {
	ts = make([]float64, n)
	mags = make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) * dt
		mags[i] = amp * math.Sin(2*math.Pi*freq*ts[i])
	}
	return ts, mags
}

func TestComponentsSlotSchema(t *testing.T) {
	ex := &Extractor{
		Periodogram: queueSpectra(
			flatSpectrum(map[float64]float64{1.0: 100}),
			flatSpectrum(map[float64]float64{1.5: 90}),
			flatSpectrum(map[float64]float64{5.0: 80}),
			flatSpectrum(map[float64]float64{6.0: 70}),
			flatSpectrum(map[float64]float64{7.0: 60}),
		),
		CurveFit: stubFit,
	}

	ts, mags := sinusoid(100, 0.1, 1, 1)
	comp, err := ex.Components(mags, ts)
	if err != nil {
		t.Fatalf("could not extract components: %v", err)
	}

	want := []float64{1.0, 1.5, 5.0, 6.0, 7.0}
	if !reflect.DeepEqual(comp.Freqs, want) {
		t.Fatalf("frequencies mismatch: got %v, want %v", comp.Freqs, want)
	}
	for i := range comp.Phase {
		if comp.Phase[i][0] != 0 {
			t.Errorf("slot %d: harmonic-0 relative phase: got %v, want 0", i+1, comp.Phase[i][0])
		}
		for j, a := range comp.Amp[i] {
			if !(a >= 0) {
				t.Errorf("slot %d harmonic %d: negative amplitude %v", i+1, j, a)
			}
		}
	}
}

func TestNoPeakSlotsAbsent(t *testing.T) {
	// monotonically increasing power has no local maximum
	mono := Spectrum{
		Freqs: []float64{0.5, 1.0, 1.5, 2.0},
		Power: []float64{1, 2, 3, 4},
	}
	ex := &Extractor{
		Periodogram: queueSpectra(mono),
		CurveFit:    stubFit,
	}

	ts, mags := sinusoid(50, 0.1, 1, 1)
	comp, err := ex.Components(mags, ts)
	if err != nil {
		t.Fatalf("could not extract components: %v", err)
	}
	if got, want := len(comp.Freqs), 3; got != want {
		t.Fatalf("attempted slots: got %d, want %d", got, want)
	}
	for i, f := range comp.Freqs {
		if !math.IsNaN(f) {
			t.Errorf("slot %d: frequency: got %v, want NaN", i+1, f)
		}
	}

	feats := comp.Features()
	m := feats.Map()
	if got, want := len(m), NumSlots*2*NumHarmonics+NumSlots-1; got != want {
		t.Fatalf("feature count: got %d, want %d", got, want)
	}
	for k, v := range m {
		if !math.IsNaN(v) {
			t.Errorf("feature %s: got %v, want NaN", k, v)
		}
	}
	if _, ok := m["PeriodLS1"]; ok {
		t.Errorf("PeriodLS1 must never be emitted")
	}
}

func TestMissingValueCompleteness(t *testing.T) {
	// 3 clean slots, then a peak too weak for the SNR gate.
	ex := &Extractor{
		Periodogram: queueSpectra(
			flatSpectrum(map[float64]float64{1.0: 100}),
			flatSpectrum(map[float64]float64{5.0: 90}),
			flatSpectrum(map[float64]float64{2.0: 80}),
			flatSpectrum(map[float64]float64{6.0: 2.5}),
		),
		CurveFit: stubFit,
	}

	ts, mags := sinusoid(50, 0.1, 1, 1)
	feats, err := ex.Features(mags, ts)
	if err != nil {
		t.Fatalf("could not extract features: %v", err)
	}

	m := feats.Map()
	for i := 3; i < NumSlots; i++ {
		for j := 0; j < NumHarmonics; j++ {
			for _, k := range []string{
				fmt.Sprintf("Freq%d_harmonics_amplitude_%d", i+1, j),
				fmt.Sprintf("Freq%d_harmonics_rel_phase_%d", i+1, j),
			} {
				if !math.IsNaN(m[k]) {
					t.Errorf("feature %s: got %v, want NaN", k, m[k])
				}
			}
		}
		k := fmt.Sprintf("PeriodLS%d", i+1)
		if !math.IsNaN(m[k]) {
			t.Errorf("feature %s: got %v, want NaN", k, m[k])
		}
	}
	for i := 1; i < 3; i++ {
		k := fmt.Sprintf("PeriodLS%d", i+1)
		if math.IsNaN(m[k]) {
			t.Errorf("feature %s: got NaN, want a period", k)
		}
	}
}

func TestRangeGateRestriction(t *testing.T) {
	// All 3 unconditional frequencies fall in [0.4, 3.3], so the
	// extension search must be restricted to [3.3, 27.4] even though the
	// strongest extension peak lies below it.
	ext := flatSpectrum(map[float64]float64{1.0: 500, 10.0: 50})
	ex := &Extractor{
		Periodogram: queueSpectra(
			flatSpectrum(map[float64]float64{1.0: 100}),
			flatSpectrum(map[float64]float64{1.5: 90}),
			flatSpectrum(map[float64]float64{2.0: 80}),
			ext,
		),
		CurveFit: stubFit,
	}

	ts, mags := sinusoid(50, 0.1, 1, 1)
	comp, err := ex.Components(mags, ts)
	if err != nil {
		t.Fatalf("could not extract components: %v", err)
	}
	if got, want := len(comp.Freqs), 5; got != want {
		t.Fatalf("slots: got %d, want %d", got, want)
	}
	for _, f := range comp.Freqs[3:] {
		if f < 3.3 || f > 27.4 {
			t.Errorf("extension frequency %v outside [3.3, 27.4]", f)
		}
	}
	if got, want := comp.Freqs[3], 10.0; got != want {
		t.Errorf("extension frequency: got %v, want %v", got, want)
	}
}

func TestSNRGate(t *testing.T) {
	// Both bands represented after step A: unrestricted extension. The
	// 4th peak clears the gate (SNR=4), the 5th does not (SNR=2.9).
	ex := &Extractor{
		Periodogram: queueSpectra(
			flatSpectrum(map[float64]float64{1.0: 100}),
			flatSpectrum(map[float64]float64{5.0: 90}),
			flatSpectrum(map[float64]float64{1.5: 80}),
			flatSpectrum(map[float64]float64{6.0: 4}),
			flatSpectrum(map[float64]float64{7.0: 2.9}),
		),
		CurveFit: stubFit,
	}

	ts, mags := sinusoid(50, 0.1, 1, 1)
	comp, err := ex.Components(mags, ts)
	if err != nil {
		t.Fatalf("could not extract components: %v", err)
	}
	if got, want := len(comp.Freqs), 4; got != want {
		t.Fatalf("slots: got %d, want %d", got, want)
	}
	if got, want := comp.Freqs[3], 6.0; got != want {
		t.Errorf("accepted extension frequency: got %v, want %v", got, want)
	}

	m := comp.Features().Map()
	if got, want := m["PeriodLS4"], 1/6.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("PeriodLS4: got %v, want %v", got, want)
	}
	if !math.IsNaN(m["PeriodLS5"]) {
		t.Errorf("PeriodLS5: got %v, want NaN", m["PeriodLS5"])
	}
}

func TestSNREmptyWindow(t *testing.T) {
	freqs := []float64{2, 4, 6, 8}
	power := []float64{1, 5, 1, 1}
	if got := snr(freqs, power, 1, 0.5); !math.IsInf(got, 1) {
		t.Errorf("snr with empty noise window: got %v, want +Inf", got)
	}
	if got, want := snr(freqs, power, 1, 2), 5.0; got != want {
		t.Errorf("snr: got %v, want %v", got, want)
	}
}

func TestMissingBand(t *testing.T) {
	for _, tc := range []struct {
		freqs []float64
		want  *[2]float64
	}{
		{[]float64{1.0, 5.0, 0.1}, nil},
		{[]float64{5.0, 10.0, 20.0}, &band1},
		{[]float64{1.0, 2.0, 3.0}, &band2},
		{[]float64{0.1, 30.0, math.NaN()}, &band1},
		{[]float64{3.3, 0.1, 0.2}, nil}, // 3.3 belongs to both bands
	} {
		got := missingBand(tc.freqs)
		switch {
		case got == nil && tc.want != nil:
			t.Errorf("freqs %v: got unrestricted, want %v", tc.freqs, *tc.want)
		case got != nil && tc.want == nil:
			t.Errorf("freqs %v: got %v, want unrestricted", tc.freqs, *got)
		case got != nil && *got != *tc.want:
			t.Errorf("freqs %v: got %v, want %v", tc.freqs, *got, *tc.want)
		}
	}
}

func TestWrapPhase(t *testing.T) {
	for _, tc := range []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, -math.Pi},
		{1.5 * math.Pi, -0.5 * math.Pi},
		{-1.5 * math.Pi, 0.5 * math.Pi},
	} {
		if got := wrapPhase(tc.in); math.Abs(got-tc.want) > 1e-15 {
			t.Errorf("wrapPhase(%v): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDeterminism(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end extraction in -short mode")
	}
	ts, mags := sinusoid(200, 0.25, 2, 0.3)

	ex := New(lombscargle.Config{})
	c1, err := ex.Components(mags, ts)
	if err != nil {
		t.Fatalf("could not extract components: %v", err)
	}
	c2, err := ex.Components(mags, ts)
	if err != nil {
		t.Fatalf("could not extract components: %v", err)
	}
	if !reflect.DeepEqual(sanitize(c1), sanitize(c2)) {
		t.Fatalf("extraction is not deterministic:\n 1st: %+v\n 2nd: %+v", c1, c2)
	}
}

// sanitize makes NaN comparable by replacing it with a sentinel.
func sanitize(c Components) Components {
	repl := func(v float64) float64 {
		if math.IsNaN(v) {
			return -999
		}
		return v
	}
	out := Components{Freqs: make([]float64, len(c.Freqs))}
	for i := range c.Freqs {
		out.Freqs[i] = repl(c.Freqs[i])
		var amp, ph [NumHarmonics]float64
		for j := 0; j < NumHarmonics; j++ {
			amp[j] = repl(c.Amp[i][j])
			ph[j] = repl(c.Phase[i][j])
		}
		out.Amp = append(out.Amp, amp)
		out.Phase = append(out.Phase, ph)
	}
	return out
}

func TestPureSinusoid(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end extraction in -short mode")
	}
	// 5*sin(2*pi*0.1*t) over 500 uniform samples of [0, 100)
	ts, mags := sinusoid(500, 0.2, 5, 0.1)

	ex := New(lombscargle.Config{})
	comp, err := ex.Components(mags, ts)
	if err != nil {
		t.Fatalf("could not extract components: %v", err)
	}
	if len(comp.Freqs) == 0 {
		t.Fatalf("no frequency extracted")
	}

	baseline := ts[len(ts)-1] - ts[0]
	df := 1 / (5 * baseline) // default grid resolution
	if got, want := comp.Freqs[0], 0.1; math.Abs(got-want) > df {
		t.Errorf("fundamental frequency: got %v, want %v within %v", got, want, df)
	}
	if got, want := comp.Amp[0][0], 5.0; math.Abs(got-want) > 0.2 {
		t.Errorf("harmonic-0 amplitude: got %v, want %v within 0.2", got, want)
	}
	if got := comp.Phase[0][0]; got != 0 {
		t.Errorf("harmonic-0 relative phase: got %v, want 0", got)
	}

	for i := range comp.Amp {
		for j, a := range comp.Amp[i] {
			if !math.IsNaN(a) && a < 0 {
				t.Errorf("slot %d harmonic %d: negative amplitude %v", i+1, j, a)
			}
		}
	}

	// after whitening the single tone, nothing comparable remains
	for i := 1; i < len(comp.Amp); i++ {
		if a := comp.Amp[i][0]; !math.IsNaN(a) && a > 2.5 {
			t.Errorf("slot %d: residual amplitude %v too large after whitening", i+1, a)
		}
	}

	m := comp.Features().Map()
	if _, ok := m["PeriodLS1"]; ok {
		t.Errorf("PeriodLS1 must never be emitted")
	}
}
