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

package lines

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/googlegenomics/subset/internal/coords"
)

func TestTransform(t *testing.T) {
	input := "keep 1\ndrop\n\nkeep 2\nstop\nkeep 3\n"
	rewrite := func(line string) (string, error) {
		switch {
		case line == "":
			return "", ErrSkip
		case line == "drop":
			return "", fmt.Errorf("outside: %w", coords.ErrNoOverlap)
		case line == "stop":
			return "", ErrStop
		}
		return strings.ToUpper(line), nil
	}

	var out bytes.Buffer
	stats, err := Transform(strings.NewReader(input), &out, rewrite)
	if err != nil {
		t.Fatalf("Transform() returned error: %v", err)
	}
	if got, want := out.String(), "KEEP 1\nKEEP 2\n"; got != want {
		t.Errorf("Wrong output: got %q, want %q", got, want)
	}
	if want := (Stats{Lines: 6, Written: 2, Dropped: 1, Skipped: 3}); stats != want {
		t.Errorf("Wrong stats: got %+v, want %+v", stats, want)
	}
}

func TestTransform_Abort(t *testing.T) {
	failure := errors.New("bad record")
	rewrite := func(line string) (string, error) {
		if line == "bad" {
			return "", failure
		}
		return line, nil
	}

	_, err := Transform(strings.NewReader("good\nbad\ngood\n"), &bytes.Buffer{}, rewrite)
	if !errors.Is(err, failure) {
		t.Fatalf("Transform() returned %v, want %v", err, failure)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Error %q does not name the line", err)
	}
}

func TestTransform_LongLine(t *testing.T) {
	line := strings.Repeat("A", 1<<20)
	var out bytes.Buffer
	if _, err := Transform(strings.NewReader(line+"\n"), &out, func(s string) (string, error) { return s, nil }); err != nil {
		t.Fatalf("Transform() returned error: %v", err)
	}
	if got, want := out.Len(), len(line)+1; got != want {
		t.Errorf("Wrong output length: got %d, want %d", got, want)
	}
}

func TestTransform_NoTrailingNewline(t *testing.T) {
	var out bytes.Buffer
	stats, err := Transform(strings.NewReader("a\nb"), &out, func(s string) (string, error) { return s, nil })
	if err != nil {
		t.Fatalf("Transform() returned error: %v", err)
	}
	if out.String() != "a\nb\n" || stats.Written != 2 {
		t.Errorf("Wrong output %q (%+v)", out.String(), stats)
	}
}
