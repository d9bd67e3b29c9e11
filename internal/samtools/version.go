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

package samtools

import (
	"context"
	"fmt"
	"log"
	"regexp"

	version "github.com/hashicorp/go-version"
)

// Tested is the range of samtools releases the cropping commands were
// verified against.  Command line behaviour changes between releases, so
// anything older is refused and anything newer produces a warning.
var Tested = Range{Min: "1.9", Max: "1.9"}

var versionRe = regexp.MustCompile(`samtools\s+(\d+(?:\.\d+)*)`)

// Range is an inclusive range of versions.
type Range struct {
	Min, Max string
}

func (r Range) String() string {
	return r.Min + "-" + r.Max
}

// Kind classifies a DependencyError.
type Kind int

const (
	// Missing means the tool could not be executed.
	Missing Kind = iota
	// Unparseable means the tool ran but did not report a version.
	Unparseable
	// TooOld means the tool is older than the tested range.
	TooOld
)

// DependencyError reports a samtools installation that cannot be used.
type DependencyError struct {
	Kind    Kind
	Tool    string
	Tested  Range
	Version string // the version found, for TooOld
	Output  string // the version output, for Unparseable
	Err     error  // the execution failure, for Missing
}

func (err *DependencyError) Error() string {
	switch err.Kind {
	case Missing:
		return fmt.Sprintf("command %[1]s not recognized, %[1]s (%[2]s) must be installed and in $PATH: %[3]v", err.Tool, err.Tested, err.Err)
	case Unparseable:
		return fmt.Sprintf("%s present but unparseable: no version found in %q; tested only with %s %s, rerun allowing untested versions (--try_anyways) to continue",
			err.Tool, err.Output, err.Tool, err.Tested)
	default:
		return fmt.Sprintf("%s present but the identified version (%s) is less than %s where this was tested; rerun allowing untested versions (--try_anyways) to continue",
			err.Tool, err.Version, err.Tested.Min)
	}
}

func (err *DependencyError) Unwrap() error {
	return err.Err
}

// CheckVersion verifies that tool reports a version that is not older than
// Tested.  Newer versions are accepted with a warning written to logger.  If
// allowUntested is set no check is made.
func CheckVersion(ctx context.Context, tool Tool, allowUntested bool, logger *log.Logger) error {
	if allowUntested {
		return nil
	}

	name := "samtools"
	if s, ok := tool.(*Samtools); ok {
		name = s.Name()
	}

	output, err := tool.Version(ctx)
	if err != nil {
		return &DependencyError{Kind: Missing, Tool: name, Tested: Tested, Err: err}
	}

	found, err := ParseVersion(output)
	if err != nil {
		return &DependencyError{Kind: Unparseable, Tool: name, Tested: Tested, Output: output}
	}

	min, max := version.Must(version.NewVersion(Tested.Min)), version.Must(version.NewVersion(Tested.Max))
	switch {
	case found.LessThan(min):
		return &DependencyError{Kind: TooOld, Tool: name, Tested: Tested, Version: found.Original()}
	case found.GreaterThan(max):
		if logger != nil {
			logger.Printf("WARN: %s newer (%s) than %s where this was tested, should hopefully work, but be warned", name, found.Original(), Tested.Max)
		}
	}
	return nil
}

// ParseVersion extracts the samtools release from the output of
// "samtools --version".
func ParseVersion(output string) (*version.Version, error) {
	match := versionRe.FindStringSubmatch(output)
	if match == nil {
		return nil, fmt.Errorf("no samtools version in %q", output)
	}
	return version.NewVersion(match[1])
}
