// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fourlc

import (
	"reflect"
	"strings"
	"testing"
)

func TestLoadTwoColumns(t *testing.T) {
	const data = `# time,magnitude
0.0,10.5
1.5,10.2
3.0,10.8
`
	ts, mags, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("could not load: %v", err)
	}
	if want := []float64{0, 1.5, 3}; !reflect.DeepEqual(ts, want) {
		t.Errorf("times: got %v, want %v", ts, want)
	}
	if want := []float64{10.5, 10.2, 10.8}; !reflect.DeepEqual(mags, want) {
		t.Errorf("magnitudes: got %v, want %v", mags, want)
	}
}

func TestLoadOneColumn(t *testing.T) {
	const data = "10.5\n10.2\n10.8\n"
	ts, mags, err := Load(strings.NewReader(data))
	if err != nil {
		t.Fatalf("could not load: %v", err)
	}
	if want := []float64{0, 1, 2}; !reflect.DeepEqual(ts, want) {
		t.Errorf("times: got %v, want %v", ts, want)
	}
	if want := []float64{10.5, 10.2, 10.8}; !reflect.DeepEqual(mags, want) {
		t.Errorf("magnitudes: got %v, want %v", mags, want)
	}
}

func TestLoadBadData(t *testing.T) {
	const data = "1.0,ten\n"
	_, _, err := Load(strings.NewReader(data))
	if err == nil {
		t.Fatalf("expected error for non-numeric magnitude")
	}
}
