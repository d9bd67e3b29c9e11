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

package genomics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxEnd is used as the end of a Window that was requested without one.  It
// is the largest position a BAM file can address; samtools truncates
// extraction at the actual sequence end.
const MaxEnd = 1<<31 - 1

var (
	errMissingName  = errors.New("no sequence name specified")
	errInvalidStart = errors.New("start must be at least 1")
	errInvalidEnd   = errors.New("end must not be less than start")
)

// Window is the global region being extracted.  Start and End count from 1
// and both are included, matching samtools, SAM and GFF coordinates.
type Window struct {
	Name       string
	Start, End int
}

// NewWindow returns a validated Window.
func NewWindow(name string, start, end int) (Window, error) {
	w := Window{Name: name, Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate reports whether w describes a usable region.
func (w Window) Validate() error {
	if w.Name == "" {
		return errMissingName
	}
	if w.Start < 1 {
		return fmt.Errorf("%s: %v", w, errInvalidStart)
	}
	if w.End < w.Start {
		return fmt.Errorf("%s: %v", w, errInvalidEnd)
	}
	return nil
}

// Offset is the amount subtracted from global positions to make them local.
func (w Window) Offset() int {
	return w.Start - 1
}

// Length is the number of base pairs covered by w.
func (w Window) Length() int {
	return w.End - w.Offset()
}

// Label returns the composite reference name written into every cropped
// record.  Consumers should treat it as an opaque sequence identifier.
func (w Window) Label() string {
	return fmt.Sprintf("%s:%d-%d", w.Name, w.Start, w.End)
}

// Region returns the query string understood by samtools faidx and view.
func (w Window) Region() string {
	return w.Label()
}

func (w Window) String() string {
	return fmt.Sprintf("[window:%s, start:%d, end:%d]", w.Name, w.Start, w.End)
}

// ParseWindow parses a region of the form "name", "name:start" or
// "name:start-end".  The name is everything before the last colon, so
// sequence names that themselves contain colons are accepted as long as a
// range is given.  Commas inside numbers are ignored.
func ParseWindow(input string) (Window, error) {
	input = strings.TrimSpace(input)
	i := strings.LastIndexByte(input, ':')
	if i < 0 {
		return NewWindow(input, 1, MaxEnd)
	}

	name, span := input[:i], strings.Replace(input[i+1:], ",", "", -1)
	from, to := span, ""
	if j := strings.IndexByte(span, '-'); j >= 0 {
		from, to = span[:j], span[j+1:]
	}

	start, err := strconv.Atoi(from)
	if err != nil {
		return Window{}, fmt.Errorf("parsing start of %q: %v", input, err)
	}
	end := MaxEnd
	if to != "" {
		if end, err = strconv.Atoi(to); err != nil {
			return Window{}, fmt.Errorf("parsing end of %q: %v", input, err)
		}
	}
	return NewWindow(name, start, end)
}
