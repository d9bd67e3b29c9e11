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

// Package coords maps positions from the original sequence onto a window
// extracted from it.
package coords

import (
	"errors"
	"fmt"

	"github.com/cznic/mathutil"

	"github.com/googlegenomics/subset/genomics"
)

// ErrNoOverlap is returned when an interval shares no base pair with the
// window.  Records carrying such an interval are dropped.
var ErrNoOverlap = errors.New("interval does not overlap window")

// ReferenceMismatchError reports a record that names a sequence other than
// the one being extracted.  It means the caller passed the wrong input and
// must abort the extraction rather than drop the record.
type ReferenceMismatchError struct {
	Got, Want string
}

func (err *ReferenceMismatchError) Error() string {
	return fmt.Sprintf("record references %q, not target sequence %q", err.Got, err.Want)
}

// Interval is a 1-based inclusive pair of positions local to a window.
type Interval struct {
	Start, End int
}

// Shift converts the global interval [start, end] to coordinates local to w.
// Intervals that only partially overlap w are truncated to the overlapping
// part.
func Shift(w genomics.Window, start, end int) (Interval, error) {
	local, length, err := translate(w, start, end)
	if err != nil {
		return Interval{}, err
	}
	return clamp(local, length), nil
}

// ShiftStrict is like Shift but refuses to move the start of an interval:
// when the interval begins before the window it is reported as ErrNoOverlap.
// Aligned reads cannot be truncated at the start without rewriting their
// sequence and CIGAR.
func ShiftStrict(w genomics.Window, start, end int) (Interval, error) {
	local, length, err := translate(w, start, end)
	if err != nil {
		return Interval{}, err
	}
	if local.Start < 1 {
		return Interval{}, fmt.Errorf("start %d before window: %w", local.Start, ErrNoOverlap)
	}
	return clamp(local, length), nil
}

func translate(w genomics.Window, start, end int) (Interval, int, error) {
	if end < start {
		return Interval{}, 0, fmt.Errorf("invalid interval %d-%d: end before start", start, end)
	}
	offset, length := w.Offset(), w.Length()
	local := Interval{start - offset, end - offset}
	if local.End <= 0 || local.Start > length {
		return Interval{}, 0, fmt.Errorf("%d-%d outside 1-%d: %w", local.Start, local.End, length, ErrNoOverlap)
	}
	return local, length, nil
}

func clamp(local Interval, length int) Interval {
	local.Start = mathutil.Max(1, local.Start)
	local.End = mathutil.Min(length, local.End)
	if local.Start < 1 || local.End < 1 {
		panic(fmt.Sprintf("coords: invalid local interval %d-%d", local.Start, local.End))
	}
	return local
}
