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

// Package gff rewrites GFF and GTF annotation records so that they describe
// positions on an extracted window instead of the original sequence.
package gff

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/coords"
	"github.com/googlegenomics/subset/internal/lines"
)

const (
	seqidColumn = 0
	startColumn = 3
	endColumn   = 4

	// GFF3 files may embed sequences after this directive.  They describe the
	// original sequences and are not carried into the cropped file.
	fastaDirective = "##FASTA"
)

// SyntaxError reports a data line that cannot be interpreted as a feature.
type SyntaxError struct {
	Line string
	Msg  string
}

func (err *SyntaxError) Error() string {
	return fmt.Sprintf("malformed feature (%s): %q", err.Msg, err.Line)
}

// ShiftLine returns line rewritten to coordinates local to w.  Comment and
// directive lines are returned unchanged apart from trailing whitespace.
//
// A feature that does not overlap w yields coords.ErrNoOverlap and should be
// dropped.  A feature on another sequence yields a
// *coords.ReferenceMismatchError.
func ShiftLine(line string, w genomics.Window) (string, error) {
	line = strings.TrimRight(line, " \t\r\n")
	if strings.HasPrefix(line, "#") {
		return line, nil
	}
	if line == "" {
		return "", lines.ErrSkip
	}

	fields := strings.Split(line, "\t")
	if len(fields) <= endColumn {
		return "", &SyntaxError{line, fmt.Sprintf("%d columns", len(fields))}
	}
	if fields[seqidColumn] != w.Name {
		return "", &coords.ReferenceMismatchError{Got: fields[seqidColumn], Want: w.Name}
	}

	start, err := strconv.Atoi(fields[startColumn])
	if err != nil {
		return "", &SyntaxError{line, "start is not an integer"}
	}
	end, err := strconv.Atoi(fields[endColumn])
	if err != nil {
		return "", &SyntaxError{line, "end is not an integer"}
	}

	local, err := coords.Shift(w, start, end)
	if err != nil {
		return "", err
	}

	fields[seqidColumn] = w.Label()
	fields[startColumn] = strconv.Itoa(local.Start)
	fields[endColumn] = strconv.Itoa(local.End)
	return strings.Join(fields, "\t"), nil
}

// Crop writes every feature from r that overlaps w to out, in local
// coordinates.
func Crop(r io.Reader, out io.Writer, w genomics.Window) (lines.Stats, error) {
	return lines.Transform(r, out, func(line string) (string, error) {
		if strings.HasPrefix(line, fastaDirective) {
			return "", lines.ErrStop
		}
		return ShiftLine(line, w)
	})
}
