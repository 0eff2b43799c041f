// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fourlc

import (
	"fmt"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Plot draws the analysis on the provided canvas: the light curve on top,
// the Lomb-Scargle periodogram with the extracted frequencies marked on
// the bottom.
func Plot(dc draw.Canvas, an Analysis) error {
	var err error

	err = topPlot(dc, an)
	if err != nil {
		return err
	}

	err = bottomPlot(dc, an)
	if err != nil {
		return err
	}

	return nil
}

func topPlot(dc draw.Canvas, an Analysis) error {
	var (
		pt     = dc.Size()
		height = pt.Y
		width  = pt.X
	)

	top := draw.Canvas{
		Canvas: dc,
		Rectangle: vg.Rectangle{
			Min: vg.Point{X: 0, Y: 0.6 * height},
			Max: vg.Point{X: width, Y: height},
		},
	}

	p := hplot.New()
	p.Title.Text = fmt.Sprintf("%s -- %d observations", an.Name, len(an.Data.Y))
	p.X.Label.Text = "time"
	p.Y.Label.Text = "magnitude"

	line, err := hplot.NewLine(hplot.ZipXY(an.Data.X, an.Data.Y))
	if err != nil {
		return errors.Wrap(err, "fourlc: could not create light-curve line")
	}
	line.LineStyle.Color = color.RGBA{R: 255, A: 255}

	p.Add(line, hplot.NewGrid())
	p.Draw(top)

	return nil
}

func bottomPlot(dc draw.Canvas, an Analysis) error {
	var (
		pt     = dc.Size()
		height = pt.Y
		width  = pt.X
	)

	bottom := draw.Canvas{
		Canvas: dc,
		Rectangle: vg.Rectangle{
			Min: vg.Point{X: 0, Y: 0},
			Max: vg.Point{X: width, Y: 0.6 * height},
		},
	}

	p := hplot.New()
	p.Title.Text = "Lomb-Scargle periodogram"
	p.X.Label.Text = "frequency"
	p.Y.Label.Text = "power"

	line, err := hplot.NewLine(hplot.ZipXY(an.Spec.Freqs, an.Spec.Power))
	if err != nil {
		return errors.Wrap(err, "fourlc: could not create periodogram line")
	}
	line.LineStyle.Color = color.RGBA{B: 255, A: 255}
	p.Add(line)

	marks := peakMarks(an.Spec, an.Comp.Freqs)
	if len(marks) > 0 {
		sc, err := plotter.NewScatter(marks)
		if err != nil {
			return errors.Wrap(err, "fourlc: could not create peak markers")
		}
		sc.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
	}

	p.Add(hplot.NewGrid())
	p.Draw(bottom)

	return nil
}

// peakMarks locates each extracted fundamental on the display spectrum.
func peakMarks(sp Spectrum, freqs []float64) plotter.XYs {
	var xys plotter.XYs
	for _, f := range freqs {
		if math.IsNaN(f) {
			continue
		}
		best, dist := -1, math.Inf(1)
		for i, g := range sp.Freqs {
			if d := math.Abs(g - f); d < dist {
				best, dist = i, d
			}
		}
		if best >= 0 {
			xys = append(xys, plotter.XY{X: sp.Freqs[best], Y: sp.Power[best]})
		}
	}
	return xys
}
