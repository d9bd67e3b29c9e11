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

// Package lines streams line-oriented records through a rewriting function.
package lines

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/googlegenomics/subset/internal/coords"
)

// maximumLineLength bounds the memory used for a single record.  GFF
// attribute columns and long-read SAM records can be far longer than the
// bufio.Scanner default.
const maximumLineLength = 64 * 1024 * 1024

var (
	// ErrSkip is returned by a RewriteFunc to drop a line that is not a
	// record, such as a blank line.
	ErrSkip = errors.New("skip line")

	// ErrStop is returned by a RewriteFunc to end the stream early.  The
	// current line and every line after it are dropped.
	ErrStop = errors.New("stop reading")
)

// RewriteFunc returns the replacement for a single line (without its line
// terminator).  Returning coords.ErrNoOverlap drops the line.
type RewriteFunc func(line string) (string, error)

// Stats counts what happened to the lines of a stream.
type Stats struct {
	Lines   int // lines read
	Written int // lines written
	Dropped int // records outside the window
	Skipped int // blank or trailing lines
}

func (s Stats) String() string {
	return fmt.Sprintf("%d lines read, %d written, %d dropped, %d skipped", s.Lines, s.Written, s.Dropped, s.Skipped)
}

// Transform reads lines from r, rewrites each with rewrite and writes the
// result to w.  Any error other than coords.ErrNoOverlap, ErrSkip or ErrStop
// aborts the stream and is returned annotated with the line number.
func Transform(r io.Reader, w io.Writer, rewrite RewriteFunc) (Stats, error) {
	var stats Stats

	out := bufio.NewWriter(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maximumLineLength)
	for scanner.Scan() {
		stats.Lines++
		line, err := rewrite(scanner.Text())
		switch {
		case err == nil:
		case errors.Is(err, coords.ErrNoOverlap):
			stats.Dropped++
			continue
		case errors.Is(err, ErrSkip):
			stats.Skipped++
			continue
		case errors.Is(err, ErrStop):
			stats.Skipped++
			for scanner.Scan() {
				stats.Lines++
				stats.Skipped++
			}
			return stats, finish(scanner, out)
		default:
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}

		if _, err := out.WriteString(line); err != nil {
			return stats, fmt.Errorf("writing line %d: %w", stats.Lines, err)
		}
		if err := out.WriteByte('\n'); err != nil {
			return stats, fmt.Errorf("writing line %d: %w", stats.Lines, err)
		}
		stats.Written++
	}
	return stats, finish(scanner, out)
}

func finish(scanner *bufio.Scanner, out *bufio.Writer) error {
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	return nil
}
