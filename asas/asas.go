// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asas parses ASAS-style photometry files: '#'-prefixed header
// fields followed by whitespace-separated (HJD, magnitude[, error[,
// grade]]) rows.
package asas

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type File struct {
	Dataset string   // value of the '#dataset=' header
	Desig   string   // star designation, from '#desig='
	NData   int      // declared number of rows, from '#ndata='
	Cols    []string // column names, from '#cols='

	HJD   []float64 // heliocentric Julian date of each observation
	Mag   []float64
	Err   []float64 // photometric error, empty when the file carries none
	Grade []string  // per-observation quality grade, if present
}

// TimeSeries returns the observation times.
func (f File) TimeSeries() []float64 { return f.HJD }

// Magnitudes returns the observed magnitudes.
func (f File) Magnitudes() []float64 { return f.Mag }

// Parse parses an ASAS photometry stream.
func Parse(r io.Reader) (File, error) {
	var f File

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		txt := strings.TrimSpace(sc.Text())
		if len(txt) == 0 {
			continue
		}
		if txt[0] == '#' {
			err := f.parseHeader(txt)
			if err != nil {
				return f, err
			}
			continue
		}

		err := f.parseRow(txt)
		if err != nil {
			return f, err
		}
	}

	err := sc.Err()
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return f, errors.Wrap(err, "asas: could not scan file")
	}

	if f.NData > 0 && f.NData != len(f.HJD) {
		return f, errors.Errorf("asas: header declares %d rows, got %d", f.NData, len(f.HJD))
	}
	return f, nil
}

func (f *File) parseHeader(txt string) error {
	key, val, ok := strings.Cut(txt[1:], "=")
	if !ok {
		// free-form comment line
		return nil
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "dataset":
		f.Dataset = val

	case "desig":
		f.Desig = val

	case "ndata":
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.Wrapf(err, "asas: could not parse ndata %q", val)
		}
		f.NData = n

	case "cols":
		f.Cols = strings.Fields(val)
	}
	return nil
}

func (f *File) parseRow(txt string) error {
	tokens := strings.Fields(txt)
	if len(tokens) < 2 {
		return errors.Errorf("asas: short data row %d %q", len(f.HJD), txt)
	}

	hjd, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return errors.Wrapf(err, "asas: could not parse HJD in row %d %q", len(f.HJD), txt)
	}
	mag, err := strconv.ParseFloat(tokens[1], 64)
	if err != nil {
		return errors.Wrapf(err, "asas: could not parse magnitude in row %d %q", len(f.HJD), txt)
	}

	f.HJD = append(f.HJD, hjd)
	f.Mag = append(f.Mag, mag)

	if len(tokens) > 2 {
		merr, err := strconv.ParseFloat(tokens[2], 64)
		if err != nil {
			return errors.Wrapf(err, "asas: could not parse error in row %d %q", len(f.HJD)-1, txt)
		}
		f.Err = append(f.Err, merr)
	}
	if len(tokens) > 3 {
		f.Grade = append(f.Grade, tokens[3])
	}
	return nil
}
