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

// Package naming derives the names of cropped files from their inputs.
package naming

import (
	"errors"
	"fmt"
	"strings"

	"github.com/googlegenomics/subset/genomics"
)

// ErrUnknownSuffix is returned for an annotation file whose format cannot be
// told from its name.
var ErrUnknownSuffix = errors.New("unknown annotation suffix")

// Suffixes are ordered longest first so that ".gff3" is never read as ".gff"
// followed by a stray "3".
var (
	sequenceSuffixes   = []string{".fasta", ".fa"}
	alignmentSuffixes  = []string{".bam"}
	annotationSuffixes = []string{".gff3", ".gff", ".gtf"}
)

// Sequence returns the name of the cropped copy of a FASTA file.  Inputs
// without a recognised suffix produce a ".fa" file.
func Sequence(input string, w genomics.Window) string {
	base, suffix := split(input, sequenceSuffixes)
	if suffix == "" {
		suffix = ".fa"
	}
	return name(base, suffix, w)
}

// Alignment returns the name of the cropped copy of a BAM file.
func Alignment(input string, w genomics.Window) string {
	base, suffix := split(input, alignmentSuffixes)
	if suffix == "" {
		suffix = ".bam"
	}
	return name(base, suffix, w)
}

// Annotation returns the name of the cropped copy of a GFF or GTF file.
// Cropped annotations are written uncompressed, so a trailing ".gz" is
// dropped.
func Annotation(input string, w genomics.Window) (string, error) {
	base, suffix := split(strings.TrimSuffix(input, ".gz"), annotationSuffixes)
	if suffix == "" {
		return "", fmt.Errorf("%s: %w (want one of %s)", input, ErrUnknownSuffix, strings.Join(annotationSuffixes, ", "))
	}
	return name(base, suffix, w), nil
}

func split(input string, suffixes []string) (string, string) {
	for _, suffix := range suffixes {
		if strings.HasSuffix(input, suffix) {
			return strings.TrimSuffix(input, suffix), suffix
		}
	}
	return input, ""
}

func name(base, suffix string, w genomics.Window) string {
	return fmt.Sprintf("%s__%s_%d-%d%s", base, w.Name, w.Start, w.End, suffix)
}
