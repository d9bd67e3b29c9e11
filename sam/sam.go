// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sam rewrites SAM alignment records so that they describe positions
// on an extracted window instead of the original reference.
package sam

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cznic/mathutil"

	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/coords"
	"github.com/googlegenomics/subset/internal/lines"
)

// Mandatory SAM columns, section 1.4 of the SAM specification.
const (
	rnameColumn = 2
	posColumn   = 3
	rnextColumn = 6
	pnextColumn = 7
	tlenColumn  = 8

	mandatoryColumns = 11
)

// SyntaxError reports an alignment line without the mandatory columns.
type SyntaxError struct {
	Line string
}

func (err *SyntaxError) Error() string {
	return fmt.Sprintf("malformed alignment: %q", err.Line)
}

// ShiftLine returns line rewritten to coordinates local to w.  Header lines
// and empty lines are returned unchanged.
//
// Unlike annotation features, reads are never truncated: a read that starts
// before or after w yields coords.ErrNoOverlap, as does an unmapped read
// without numeric positions.  The mate position is moved by the same offset
// but is not checked against w, so pairs keep pointing at each other.
func ShiftLine(line string, w genomics.Window) (string, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || strings.HasPrefix(line, "@") {
		return line, nil
	}

	fields := strings.Split(line, "\t")
	if len(fields) < mandatoryColumns {
		return "", &SyntaxError{line}
	}
	if fields[rnameColumn] != w.Name {
		return "", &coords.ReferenceMismatchError{Got: fields[rnameColumn], Want: w.Name}
	}

	pos, err := strconv.Atoi(fields[posColumn])
	if err != nil {
		return "", fmt.Errorf("read %s not mapped: %w", fields[0], coords.ErrNoOverlap)
	}
	tlen, err := strconv.Atoi(fields[tlenColumn])
	if err != nil {
		return "", fmt.Errorf("read %s not mapped: %w", fields[0], coords.ErrNoOverlap)
	}

	local, err := coords.ShiftStrict(w, pos, mathutil.Max(pos, pos+tlen))
	if err != nil {
		return "", err
	}

	fields[rnameColumn] = w.Label()
	fields[posColumn] = strconv.Itoa(local.Start)
	if fields[rnextColumn] == w.Name {
		fields[rnextColumn] = w.Label()
	}
	// A PNEXT of zero means the mate position is unavailable.
	if pnext, err := strconv.Atoi(fields[pnextColumn]); err == nil && pnext != 0 {
		fields[pnextColumn] = strconv.Itoa(local.Start + pnext - pos)
	}
	return strings.Join(fields, "\t"), nil
}

// Crop writes every read from r that starts inside w to out, in local
// coordinates.  Blank lines are not copied.
func Crop(r io.Reader, out io.Writer, w genomics.Window) (lines.Stats, error) {
	return lines.Transform(r, out, func(line string) (string, error) {
		if strings.TrimSpace(line) == "" {
			return "", lines.ErrSkip
		}
		return ShiftLine(line, w)
	})
}
