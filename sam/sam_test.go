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

package sam

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/coords"
)

var window = genomics.Window{Name: "chr1", Start: 100, End: 200}

func record(fields ...string) string {
	return strings.Join(fields, "\t")
}

func TestShiftLine(t *testing.T) {
	testCases := []struct {
		name string
		line string
		want string
	}{
		{
			"proper pair",
			record("r1", "99", "chr1", "150", "60", "10M", "=", "170", "30", "ACGTACGTAC", "IIIIIIIIII"),
			record("r1", "99", "chr1:100-200", "51", "60", "10M", "=", "71", "30", "ACGTACGTAC", "IIIIIIIIII"),
		},
		{
			"reverse mate",
			record("r1", "147", "chr1", "170", "60", "10M", "=", "150", "-30", "ACGTACGTAC", "IIIIIIIIII"),
			record("r1", "147", "chr1:100-200", "71", "60", "10M", "=", "51", "-30", "ACGTACGTAC", "IIIIIIIIII"),
		},
		{
			"reverse mate of a template starting left of the window",
			record("r6", "147", "chr1", "110", "60", "10M", "=", "80", "-40", "ACGTACGTAC", "IIIIIIIIII"),
			record("r6", "147", "chr1:100-200", "11", "60", "10M", "=", "-19", "-40", "ACGTACGTAC", "IIIIIIIIII"),
		},
		{
			"unpaired",
			record("r2", "0", "chr1", "100", "60", "5M", "*", "0", "0", "ACGTA", "IIIII", "NM:i:0"),
			record("r2", "0", "chr1:100-200", "1", "60", "5M", "*", "0", "0", "ACGTA", "IIIII", "NM:i:0"),
		},
		{
			"mate outside window is not validated",
			record("r3", "97", "chr1", "190", "60", "5M", "=", "900", "715", "ACGTA", "IIIII"),
			record("r3", "97", "chr1:100-200", "91", "60", "5M", "=", "801", "715", "ACGTA", "IIIII"),
		},
		{
			"mate reference named explicitly",
			record("r4", "97", "chr1", "120", "60", "5M", "chr1", "140", "25", "ACGTA", "IIIII"),
			record("r4", "97", "chr1:100-200", "21", "60", "5M", "chr1:100-200", "41", "25", "ACGTA", "IIIII"),
		},
		{
			"mate on other reference",
			record("r5", "97", "chr1", "120", "60", "5M", "chr7", "5000", "0", "ACGTA", "IIIII"),
			record("r5", "97", "chr1:100-200", "21", "60", "5M", "chr7", "4901", "0", "ACGTA", "IIIII"),
		},
		{"header", "@SQ\tSN:chr1\tLN:1000", "@SQ\tSN:chr1\tLN:1000"},
		{"empty", "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ShiftLine(tc.line, window)
			if err != nil {
				t.Fatalf("ShiftLine() returned error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Wrong line:\n got %q\nwant %q", got, tc.want)
			}
		})
	}
}

// Reads overlapping the left edge of the window are dropped, not truncated,
// while annotation features in the same position are clamped.  This
// asymmetry is intentional: cropping a read would require rewriting its
// sequence, qualities and CIGAR.
func TestShiftLine_PartialOverlapIsDropped(t *testing.T) {
	line := record("r1", "0", "chr1", "95", "60", "20M", "*", "0", "15", "ACGTACGTACGTACGTACGT", "IIIIIIIIIIIIIIIIIIII")
	if got, err := ShiftLine(line, window); !errors.Is(err, coords.ErrNoOverlap) {
		t.Fatalf("ShiftLine() = %q, %v; want ErrNoOverlap", got, err)
	}
	if _, err := coords.Shift(window, 95, 110); err != nil {
		t.Fatalf("Annotation policy should clamp the same interval: %v", err)
	}
}

func TestShiftLine_Dropped(t *testing.T) {
	testCases := []struct {
		name string
		line string
	}{
		{"before window", record("r", "0", "chr1", "10", "60", "5M", "*", "0", "0", "ACGTA", "IIIII")},
		{"after window", record("r", "0", "chr1", "201", "60", "5M", "*", "0", "0", "ACGTA", "IIIII")},
		{"unmapped position", record("r", "4", "chr1", "*", "0", "*", "*", "0", "0", "ACGTA", "IIIII")},
		{"unparseable template length", record("r", "0", "chr1", "150", "60", "5M", "*", "0", "?", "ACGTA", "IIIII")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got, err := ShiftLine(tc.line, window); !errors.Is(err, coords.ErrNoOverlap) {
				t.Fatalf("ShiftLine() = %q, %v; want ErrNoOverlap", got, err)
			}
		})
	}
}

func TestShiftLine_Errors(t *testing.T) {
	_, err := ShiftLine(record("r", "0", "chr2", "150", "60", "5M", "*", "0", "0", "ACGTA", "IIIII"), window)
	var mismatch *coords.ReferenceMismatchError
	if !errors.As(err, &mismatch) {
		t.Errorf("ShiftLine() returned %v, want *coords.ReferenceMismatchError", err)
	}

	_, err = ShiftLine(record("r", "0", "chr1", "150"), window)
	var syntax *SyntaxError
	if !errors.As(err, &syntax) {
		t.Errorf("ShiftLine() returned %v, want *SyntaxError", err)
	}
}

func TestCrop(t *testing.T) {
	input := strings.Join([]string{
		record("left", "0", "chr1", "95", "60", "20M", "*", "0", "0", "A", "I"),
		record("in", "0", "chr1", "150", "60", "1M", "*", "0", "0", "A", "I"),
		record("un", "4", "chr1", "*", "0", "*", "*", "0", "0", "A", "I"),
		"",
		record("edge", "0", "chr1", "200", "60", "1M", "*", "0", "0", "A", "I"),
	}, "\n") + "\n"
	want := strings.Join([]string{
		record("in", "0", "chr1:100-200", "51", "60", "1M", "*", "0", "0", "A", "I"),
		record("edge", "0", "chr1:100-200", "101", "60", "1M", "*", "0", "0", "A", "I"),
	}, "\n") + "\n"

	var out bytes.Buffer
	stats, err := Crop(strings.NewReader(input), &out, window)
	if err != nil {
		t.Fatalf("Crop() returned error: %v", err)
	}
	if got := out.String(); got != want {
		t.Errorf("Wrong output:\n got %q\nwant %q", got, want)
	}
	if stats.Written != 2 || stats.Dropped != 2 || stats.Skipped != 1 {
		t.Errorf("Wrong stats: %v", stats)
	}
}
