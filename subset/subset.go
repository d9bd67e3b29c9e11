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

// Package subset crops sequence, alignment and annotation files to a single
// window, rewriting coordinates so that they are local to the window.
package subset

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/brentp/xopen"
	"github.com/google/uuid"
	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/gff"
	"github.com/googlegenomics/subset/internal/bam"
	"github.com/googlegenomics/subset/internal/lines"
	"github.com/googlegenomics/subset/internal/naming"
	"github.com/googlegenomics/subset/internal/samtools"
	"github.com/googlegenomics/subset/sam"
)

// ErrAlignmentWithoutSequence is returned when alignments are requested
// without a sequence file.  The cropped BAM header is rebuilt from the index
// of the cropped sequence, so there is nothing to build it from.
var ErrAlignmentWithoutSequence = errors.New("cannot reconstruct bam header without a sequence file, please specify --fasta")

// Request describes a single extraction.
type Request struct {
	Window      genomics.Window
	Sequence    string
	Alignments  []string
	Annotations []string

	// AllowUntested skips the samtools version check.
	AllowUntested bool
}

// Result lists the files produced by an extraction.
type Result struct {
	// Outputs holds every file written, including index files.
	Outputs []string
	// Warnings holds problems that did not stop the extraction.
	Warnings []string
	// Stats holds the line counts for each transformed input.
	Stats map[string]lines.Stats
}

// Extractor crops files using an external samtools.
type Extractor struct {
	Tool samtools.Tool

	// Logger receives progress and warnings.  Nothing is logged if nil.
	Logger *log.Logger

	// OutputDir, if set, receives the outputs instead of the directories of
	// the inputs.
	OutputDir string

	// Verify reads back the produced indexes and headers.
	Verify bool
}

type extraction struct {
	*Extractor
	logger *log.Logger
	window genomics.Window
	result *Result
}

// Extract crops every file of req to req.Window.  Outputs are named by the
// naming package.  A failure stops the extraction, leaving any outputs
// already produced in place.
func (e *Extractor) Extract(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, fmt.Errorf("invalid window: %w", err)
	}
	if len(req.Alignments) > 0 && req.Sequence == "" {
		return nil, ErrAlignmentWithoutSequence
	}

	x := &extraction{
		Extractor: e,
		window:    req.Window,
		logger:    e.Logger,
		result:    &Result{Stats: make(map[string]lines.Stats)},
	}
	if x.logger == nil {
		x.logger = log.New(ioutil.Discard, "", 0)
	}

	if err := samtools.CheckVersion(ctx, e.Tool, req.AllowUntested, x.logger); err != nil {
		return nil, err
	}

	if req.Sequence != "" {
		fai, ok := x.sequence(ctx, req.Sequence)
		if !ok && len(req.Alignments) > 0 {
			x.warnf("skipping %d alignment file(s): the cropped sequence index is needed to rebuild their headers", len(req.Alignments))
			req.Alignments = nil
		}
		for _, path := range req.Alignments {
			if err := x.alignment(ctx, path, fai); err != nil {
				return nil, err
			}
		}
	}

	for _, path := range req.Annotations {
		if err := x.annotation(path); err != nil {
			return nil, err
		}
	}
	return x.result, nil
}

func (x *extraction) output(name string) string {
	if x.OutputDir == "" {
		return name
	}
	return filepath.Join(x.OutputDir, filepath.Base(name))
}

// sequence crops and indexes the FASTA file at path.  Samtools failures are
// reported as warnings, and the index of the cropped file is returned only
// if it was produced.
func (x *extraction) sequence(ctx context.Context, path string) (string, bool) {
	out := x.output(naming.Sequence(path, x.window))
	x.logger.Printf("cropping %s and writing to %s", path, out)

	if _, err := os.Stat(path + ".fai"); os.IsNotExist(err) {
		if err := x.Tool.IndexFasta(ctx, path); err != nil {
			x.warnf("indexing %s failed, try indexing it with samtools faidx: %v", path, err)
		}
	}
	if err := x.Tool.ExtractFasta(ctx, path, x.window.Region(), out); err != nil {
		x.warnf("cropping %s failed, check that the window names a sequence of %s: %v", path, path, err)
		return "", false
	}
	if err := x.Tool.IndexFasta(ctx, out); err != nil {
		x.warnf("indexing %s failed, try indexing it with samtools faidx: %v", out, err)
		x.expect(out, "check that the window names a sequence of "+path)
		return "", false
	}

	fai := out + ".fai"
	x.expect(out, "check that the window names a sequence of "+path)
	if !x.expect(fai, "try indexing it with samtools faidx") {
		return "", false
	}
	if x.Verify {
		x.verifySequence(fai)
	}
	return fai, true
}

func (x *extraction) alignment(ctx context.Context, path, fai string) error {
	out := x.output(naming.Alignment(path, x.window))
	x.logger.Printf("cropping %s and writing to %s", path, out)

	if err := x.checkReference(path); err != nil {
		return err
	}

	stats, err := x.crop(ctx, path, out, fai)
	if err != nil {
		return fmt.Errorf("cropping %s: %w", path, err)
	}
	x.result.Stats[path] = stats
	x.logger.Printf("%s: %v", path, stats)

	x.expect(out, "check that "+fai+" names the window")
	if err := x.Tool.IndexBam(ctx, out); err != nil {
		x.warnf("indexing %s failed, try indexing it with samtools index: %v", out, err)
		return nil
	}
	if x.expect(out+".bai", "try indexing it with samtools index") && x.Verify {
		x.verifyAlignment(out)
	}
	return nil
}

// crop writes the shifted alignments of path to a temporary SAM file and
// converts it to out.  The temporary file is removed on return.
func (x *extraction) crop(ctx context.Context, path, out, fai string) (lines.Stats, error) {
	tmp := filepath.Join(filepath.Dir(out), uuid.New().String()+".sam")
	f, err := os.Create(tmp)
	if err != nil {
		return lines.Stats{}, fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp)
	defer f.Close()

	reads, err := x.Tool.View(ctx, path, x.window.Region())
	if err != nil {
		return lines.Stats{}, err
	}
	stats, err := sam.Crop(reads, f, x.window)
	if closeErr := reads.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return stats, err
	}
	if err := f.Close(); err != nil {
		return stats, fmt.Errorf("writing temporary file: %w", err)
	}

	if err := x.Tool.Import(ctx, tmp, fai, out); err != nil {
		return stats, err
	}
	return stats, nil
}

// checkReference fails if the header of the BAM file at path does not name
// the window's sequence.
func (x *extraction) checkReference(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := bam.GetReferenceID(f, x.window.Name); err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}
	return nil
}

func (x *extraction) annotation(path string) (err error) {
	name, err := naming.Annotation(path, x.window)
	if err != nil {
		return err
	}
	out := x.output(name)
	x.logger.Printf("cropping %s and writing to %s", path, out)

	in, err := xopen.Ropen(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer in.Close()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("writing %s: %w", out, closeErr)
		}
		if err != nil {
			os.Remove(out)
		}
	}()

	stats, err := gff.Crop(in, f, x.window)
	if err != nil {
		return fmt.Errorf("cropping %s: %w", path, err)
	}
	x.result.Stats[path] = stats
	x.result.Outputs = append(x.result.Outputs, out)
	x.logger.Printf("%s: %v", path, stats)
	return nil
}

// expect records path as an output if it exists and warns otherwise.
func (x *extraction) expect(path, hint string) bool {
	if _, err := os.Stat(path); err != nil {
		x.warnf("expected output %s not found, %s", path, hint)
		return false
	}
	x.result.Outputs = append(x.result.Outputs, path)
	return true
}

func (x *extraction) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	x.result.Warnings = append(x.result.Warnings, msg)
	x.logger.Printf("WARN: %s", msg)
}
