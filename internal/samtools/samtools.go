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

// Package samtools wraps the samtools operations needed to crop sequence and
// alignment files.
package samtools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Tool is the set of samtools operations used to crop files.  Regions use the
// samtools "name:start-end" syntax.
type Tool interface {
	// Version returns the output of "samtools --version".
	Version(ctx context.Context) (string, error)
	// IndexFasta builds fasta.fai.
	IndexFasta(ctx context.Context, fasta string) error
	// ExtractFasta writes region of fasta to out.
	ExtractFasta(ctx context.Context, fasta, region, out string) error
	// View streams the alignments of bam that overlap region as SAM text,
	// without a header.  The caller must close the returned reader; Close
	// reports any failure of the underlying process.
	View(ctx context.Context, bam, region string) (io.ReadCloser, error)
	// Import converts headerless SAM text into BAM, building the header from
	// the reference lengths in fai.
	Import(ctx context.Context, sam, fai, out string) error
	// IndexBam builds bam.bai.
	IndexBam(ctx context.Context, bam string) error
}

// Samtools runs the samtools binary.
type Samtools struct {
	// Path is the binary to execute; "samtools" if empty.
	Path string
	// Timeout bounds each invocation when positive.
	Timeout time.Duration
}

// Name returns the binary that will be run.
func (s *Samtools) Name() string {
	if s.Path == "" {
		return "samtools"
	}
	return s.Path
}

// Version implements Tool.
func (s *Samtools) Version(ctx context.Context) (string, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.Name(), "--version").Output()
	if err != nil {
		return "", fmt.Errorf("running %s --version: %w", s.Name(), err)
	}
	return string(out), nil
}

// IndexFasta implements Tool.
func (s *Samtools) IndexFasta(ctx context.Context, fasta string) error {
	return s.run(ctx, "faidx", fasta)
}

// ExtractFasta implements Tool.
func (s *Samtools) ExtractFasta(ctx context.Context, fasta, region, out string) error {
	return s.run(ctx, "faidx", fasta, region, "-o", out)
}

// Import implements Tool.
func (s *Samtools) Import(ctx context.Context, sam, fai, out string) error {
	return s.run(ctx, "view", "-ht", fai, "-b", sam, "-o", out)
}

// IndexBam implements Tool.
func (s *Samtools) IndexBam(ctx context.Context, bam string) error {
	return s.run(ctx, "index", bam)
}

// View implements Tool.
func (s *Samtools) View(ctx context.Context, bam, region string) (io.ReadCloser, error) {
	ctx, cancel := s.context(ctx)

	cmd := exec.CommandContext(ctx, s.Name(), "view", bam, region)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s view: %w", s.Name(), err)
	}
	return &process{ReadCloser: stdout, cmd: cmd, stderr: stderr, cancel: cancel}, nil
}

func (s *Samtools) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Samtools) run(ctx context.Context, args ...string) error {
	ctx, cancel := s.context(ctx)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Name(), args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(s.Name(), args, err, &stderr)
	}
	return nil
}

func commandError(name string, args []string, err error, stderr *bytes.Buffer) error {
	command := name + " " + strings.Join(args, " ")
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%s: %w: %s", command, err, msg)
	}
	return fmt.Errorf("%s: %w", command, err)
}

// process is the stdout of a running samtools command.  Closing it waits for
// the command to exit; closing before the output is exhausted kills it.
type process struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	cancel context.CancelFunc
	eof    bool
}

func (p *process) Read(b []byte) (int, error) {
	n, err := p.ReadCloser.Read(b)
	if err == io.EOF {
		p.eof = true
	}
	return n, err
}

func (p *process) Close() error {
	defer p.cancel()

	if !p.eof {
		p.cancel()
		p.cmd.Wait()
		return nil
	}
	if err := p.cmd.Wait(); err != nil {
		return commandError(p.cmd.Path, p.cmd.Args[1:], err, p.stderr)
	}
	return nil
}
