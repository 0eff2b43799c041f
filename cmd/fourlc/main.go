// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command fourlc extracts periodic light-curve features from photometry
// files (CSV or ASAS-style) and plots the light curve together with its
// Lomb-Scargle periodogram.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/varstar-lpc/fourlc"
	"github.com/varstar-lpc/fourlc/asas"
	"github.com/varstar-lpc/fourlc/lombscargle"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

func main() {
	log.SetPrefix("fourlc: ")
	log.SetFlags(0)

	var (
		snr     = flag.Float64("snr", fourlc.DefaultSNRThreshold, "signal-to-noise threshold for the extension frequencies")
		window  = flag.Float64("window", fourlc.DefaultWindowSize, "frequency half-width of the SNR noise window")
		spp     = flag.Int("spp", 5, "periodogram grid samples per peak")
		nyquist = flag.Float64("nyquist", 1, "periodogram Nyquist oversampling factor")
		doPlot  = flag.Bool("plot", true, "write a PNG plot next to each feature dump")
	)

	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("missing input file(s)")
	}

	log.Printf("snr threshold: %v", *snr)
	log.Printf("snr window:    %v", *window)
	log.Printf("files:         %v", flag.Args())

	ex := fourlc.New(lombscargle.Config{
		SamplesPerPeak: *spp,
		NyquistFactor:  *nyquist,
	})
	ex.SNRThreshold = *snr
	ex.WindowSize = *window

	var grp errgroup.Group
	for _, fname := range flag.Args() {
		fname := fname
		grp.Go(func() error {
			err := process(fname, ex, *doPlot)
			if err != nil {
				return errors.Wrapf(err, "could not process %q", fname)
			}
			return nil
		})
	}
	err := grp.Wait()
	if err != nil {
		log.Fatal(err)
	}
}

func process(fname string, ex *fourlc.Extractor, doPlot bool) error {
	ts, mags, err := load(fname)
	if err != nil {
		return err
	}
	log.Printf("%s: %d observations", fname, len(mags))

	an, err := fourlc.Analyze(filepath.Base(fname), ts, mags, ex)
	if err != nil {
		return err
	}

	feats := an.Feats.Map()
	keys := make([]string, 0, len(feats))
	for k := range feats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Printf("%s: %-30s %v", fname, k, feats[k])
	}

	if !doPlot {
		return nil
	}
	return savePlot(pngName(fname), an)
}

// load sniffs the file format: ASAS-style files open with a '#' header,
// anything else goes through the CSV loader.
func load(fname string) (ts, mags []float64, err error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var head [1]byte
	_, err = io.ReadFull(f, head[:])
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not read file header")
	}
	_, err = f.Seek(0, io.SeekStart)
	if err != nil {
		return nil, nil, err
	}

	switch head[0] {
	case '#':
		lc, err := asas.Parse(f)
		if err != nil {
			return nil, nil, errors.Wrap(err, "could not parse ASAS file")
		}
		return lc.TimeSeries(), lc.Magnitudes(), nil
	default:
		return fourlc.Load(f)
	}
}

func savePlot(oname string, an fourlc.Analysis) error {
	const (
		width  = 20 * vg.Centimeter
		height = 30 * vg.Centimeter
	)

	c := vgimg.PngCanvas{Canvas: vgimg.New(width, height)}
	err := fourlc.Plot(draw.New(c), an)
	if err != nil {
		return errors.Wrap(err, "could not plot analysis")
	}

	o, err := os.Create(oname)
	if err != nil {
		return errors.Wrapf(err, "could not create output file")
	}
	defer o.Close()
	_, err = c.WriteTo(o)
	if err != nil {
		return errors.Wrapf(err, "could not write output plot")
	}
	err = o.Close()
	if err != nil {
		return errors.Wrapf(err, "could not close output file")
	}

	return nil
}

func pngName(fname string) string {
	base := filepath.Base(fname)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s.png", strings.TrimSuffix(base, ext))
}
