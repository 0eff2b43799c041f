// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fourlc

// LocalMaxima returns the indices of the local maxima of xs, in order. A
// flat-topped maximum reports the middle of its plateau (the left middle
// for even plateaus). The first and last samples never qualify.
func LocalMaxima(xs []float64) []int {
	var peaks []int
	for i := 1; i < len(xs)-1; i++ {
		if xs[i] <= xs[i-1] {
			continue
		}
		// climb across a possible plateau
		j := i
		for j < len(xs)-1 && xs[j+1] == xs[i] {
			j++
		}
		if j < len(xs)-1 && xs[j+1] < xs[i] {
			peaks = append(peaks, (i+j)/2)
		}
		i = j
	}
	return peaks
}
