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

// This binary crops a FASTA file and its BAM and GFF companions to a single
// region, shifting every coordinate so that the region starts at 1.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/remote"
	"github.com/googlegenomics/subset/internal/samtools"
	"github.com/googlegenomics/subset/subset"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

type options struct {
	fasta       string
	bams        []string
	gffs        []string
	seq         string
	region      string
	start       int
	end         int
	tryAnyways  bool
	samtools    string
	timeout     time.Duration
	outputDir   string
	verify      bool
	profileMode string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "subset-genome -s <seq> [-f start] [-t end] [--fasta ref.fa] [--bam a.bam,b.bam] [--gff genes.gff3]",
		Short: "Crop sequence, alignment and annotation files to one region",
		Long: `Crop sequence, alignment and annotation files to one region.

Ranges start at 1 and are inclusive so as to match samtools and GFF
coordinates.  All samtools sorting and indexing of BAM files must already be
done.  Inputs may be local paths or gs://bucket/object URIs.

Examples:
  subset-genome --fasta ref.fa --bam reads.bam --gff genes.gff3 -s chr1 -f 100 -t 200
  subset-genome --fasta ref.fa --region chr1:100-200`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.profileMode != "" {
				mode, err := profileMode(opts.profileMode)
				if err != nil {
					return err
				}
				defer profile.Start(mode, profile.ProfilePath("."), profile.Quiet).Stop()
			}
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.fasta, "fasta", "", "fasta file to subset")
	flags.StringSliceVar(&opts.bams, "bam", nil, "bam file to subset (comma separate for multiple), requires --fasta")
	flags.StringSliceVar(&opts.gffs, "gff", nil, "gff file to subset (comma separate for multiple)")
	flags.StringVarP(&opts.seq, "seq", "s", "", "target sequence")
	flags.StringVar(&opts.region, "region", "", "target region as seq:start-end, instead of -s, -f and -t")
	flags.IntVarP(&opts.start, "start", "f", 1, "starting from this bp (count from 1)")
	flags.IntVarP(&opts.end, "end", "t", genomics.MaxEnd, "continue to this bp")
	flags.BoolVar(&opts.tryAnyways, "try_anyways", false, "ignores any errors/warnings on samtools versions")
	flags.StringVar(&opts.samtools, "samtools", "samtools", "samtools binary")
	flags.DurationVar(&opts.timeout, "timeout", 0, "limit on each samtools invocation (0 for none)")
	flags.StringVar(&opts.outputDir, "output_dir", "", "directory for the outputs (default: next to each input)")
	flags.BoolVar(&opts.verify, "verify", true, "read back the produced indexes and headers")
	flags.StringVar(&opts.profileMode, "profile", "", "write a cpu or mem profile to the current directory")
	cmd.MarkFlagsMutuallyExclusive("region", "seq")
	cmd.MarkFlagsMutuallyExclusive("region", "start")
	cmd.MarkFlagsMutuallyExclusive("region", "end")
	return cmd
}

func profileMode(name string) (func(*profile.Profile), error) {
	switch name {
	case "cpu":
		return profile.CPUProfile, nil
	case "mem":
		return profile.MemProfile, nil
	}
	return nil, fmt.Errorf("unknown profile %q (want cpu or mem)", name)
}

func (opts *options) window() (genomics.Window, error) {
	if opts.region != "" {
		return genomics.ParseWindow(opts.region)
	}
	if opts.seq == "" {
		return genomics.Window{}, errors.New("a target sequence is required: use -s or --region")
	}
	return genomics.NewWindow(opts.seq, opts.start, opts.end)
}

func (opts *options) request() (*subset.Request, error) {
	w, err := opts.window()
	if err != nil {
		return nil, err
	}
	// Checked here so that remote inputs are not staged for a doomed run.
	if len(opts.bams) > 0 && opts.fasta == "" {
		return nil, subset.ErrAlignmentWithoutSequence
	}
	return &subset.Request{
		Window:        w,
		Sequence:      opts.fasta,
		Alignments:    opts.bams,
		Annotations:   opts.gffs,
		AllowUntested: opts.tryAnyways,
	}, nil
}

func run(ctx context.Context, opts *options) error {
	req, err := opts.request()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", 0)
	extractor := &subset.Extractor{
		Tool:      &samtools.Samtools{Path: opts.samtools, Timeout: opts.timeout},
		Logger:    logger,
		OutputDir: opts.outputDir,
		Verify:    opts.verify,
	}

	if hasRemote(req) {
		staging, err := ioutil.TempDir("", "subset-genome-")
		if err != nil {
			return fmt.Errorf("creating staging directory: %w", err)
		}
		defer os.RemoveAll(staging)

		// Staged copies are removed on exit, so their outputs must go elsewhere.
		if extractor.OutputDir == "" {
			extractor.OutputDir = "."
		}
		if err := stage(ctx, req, &remote.Stager{Client: remote.NewDefaultClient(), Dir: staging}); err != nil {
			return err
		}
	}

	result, err := extractor.Extract(ctx, req)
	if err != nil {
		return err
	}
	for _, output := range result.Outputs {
		fmt.Println(output)
	}
	return nil
}

func hasRemote(req *subset.Request) bool {
	if remote.IsRemote(req.Sequence) {
		return true
	}
	for _, paths := range [][]string{req.Alignments, req.Annotations} {
		for _, path := range paths {
			if remote.IsRemote(path) {
				return true
			}
		}
	}
	return false
}

// stage replaces every remote input of req with a local copy.
func stage(ctx context.Context, req *subset.Request, stager *remote.Stager) error {
	get := func(path string, kind remote.Kind) (string, error) {
		if !remote.IsRemote(path) {
			return path, nil
		}
		return stager.Stage(ctx, path, kind)
	}

	var err error
	if req.Sequence, err = get(req.Sequence, remote.Sequence); err != nil {
		return err
	}
	for i := range req.Alignments {
		if req.Alignments[i], err = get(req.Alignments[i], remote.Alignment); err != nil {
			return err
		}
	}
	for i := range req.Annotations {
		if req.Annotations[i], err = get(req.Annotations[i], remote.Annotation); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
