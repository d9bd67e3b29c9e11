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

// Package faidx reads samtools FASTA index files.
package faidx

import (
	"errors"
	"fmt"
	"os"

	"github.com/biogo/hts/fai"
)

// ErrNotIndexed is returned when an index has no record for a sequence.
var ErrNotIndexed = errors.New("sequence not in index")

// Lookup returns the indexed length of the named sequence in the .fai file at
// path.
func Lookup(path, name string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	index, err := fai.ReadFrom(f)
	if err != nil {
		return 0, fmt.Errorf("reading index %s: %w", path, err)
	}
	record, ok := index[name]
	if !ok {
		return 0, fmt.Errorf("%s: %q: %w", path, name, ErrNotIndexed)
	}
	return record.Length, nil
}
