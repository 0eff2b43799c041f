// Copyright 2024 The fourlc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fourlc

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go-hep.org/x/hep/csvutil"
)

// Load reads a light curve from the provided io.Reader.
// Load expects CSV data with 1 column (magnitudes, observed at implicit
// integer times) or 2 columns (time, magnitude). Lines starting with '#'
// are skipped.
func Load(r io.Reader) (ts, mags []float64, err error) {
	br := bufio.NewReaderSize(r, 1<<16)
	ncols, err := sniffColumns(br)
	if err != nil {
		return nil, nil, fmt.Errorf("fourlc: could not sniff columns: %w", err)
	}

	tbl := &csvutil.Table{
		Reader: csv.NewReader(br),
	}
	tbl.Reader.Comment = '#'
	defer tbl.Close()

	rows, err := tbl.ReadRows(0, -1)
	if err != nil {
		return nil, nil, fmt.Errorf("fourlc: could not read rows: %w", err)
	}
	defer rows.Close()

	id := 0
	for rows.Next() {
		var t, m float64
		switch ncols {
		case 1:
			err = rows.Scan(&m)
			t = float64(id)
		default:
			err = rows.Scan(&t, &m)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("fourlc: could not scan row %d: %w", id, err)
		}
		ts = append(ts, t)
		mags = append(mags, m)
		id++
	}

	if err := rows.Err(); err != nil {
		if err != io.EOF {
			return nil, nil, fmt.Errorf("fourlc: error while processing rows: %w", err)
		}
	}

	return ts, mags, nil
}

// sniffColumns peeks at the first data line to count CSV columns, without
// consuming the reader.
func sniffColumns(br *bufio.Reader) (int, error) {
	for peek := 1024; ; peek *= 2 {
		buf, err := br.Peek(peek)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return 0, err
		}
		lines := strings.Split(string(buf), "\n")
		for i, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if i == len(lines)-1 && err == nil {
				break // line may be truncated, peek further
			}
			return strings.Count(line, ",") + 1, nil
		}
		if err == io.EOF || err == bufio.ErrBufferFull {
			return 0, io.ErrUnexpectedEOF
		}
	}
}
