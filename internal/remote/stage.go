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

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind selects the index files that are staged along with an object.
type Kind int

const (
	// Annotation objects are staged alone.
	Annotation Kind = iota
	// Sequence objects are staged with their ".fai" index when present.
	Sequence
	// Alignment objects require a BAI index.
	Alignment
)

// Stager copies objects into a local directory.
type Stager struct {
	Client Client
	Dir    string
}

// Stage copies the object named by uri, and any index it needs, into s.Dir.
// It returns the local path of the object, which keeps the object's base
// name so that outputs are named as they would be for a local file.
func (s *Stager) Stage(ctx context.Context, uri string, kind Kind) (string, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return "", err
	}

	local := filepath.Join(s.Dir, path.Base(object))
	if _, err := os.Stat(local); err == nil {
		return "", fmt.Errorf("staging %s: %s already exists", uri, local)
	}
	if err := s.fetch(ctx, bucket, object, local); err != nil {
		return "", err
	}

	switch kind {
	case Sequence:
		if err := s.fetch(ctx, bucket, object+".fai", local+".fai"); err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
	case Alignment:
		if err := s.fetchIndex(ctx, bucket, object, local); err != nil {
			return "", err
		}
	}
	return local, nil
}

// fetchIndex stages the BAI index of a BAM object, which may be named
// either "x.bam.bai" or "x.bai".
func (s *Stager) fetchIndex(ctx context.Context, bucket, object, local string) error {
	candidates := []string{
		object + ".bai",
		strings.TrimSuffix(object, ".bam") + ".bai",
	}
	for _, candidate := range candidates {
		err := s.fetch(ctx, bucket, candidate, local+".bai")
		if err == nil || !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return fmt.Errorf("no index for gs://%s/%s: %w", bucket, object, ErrNotFound)
}

func (s *Stager) fetch(ctx context.Context, bucket, object, local string) error {
	r, err := s.Client.NewObjectHandle(bucket, object).NewRangeReader(ctx, 0, -1)
	if err != nil {
		return newStorageError(fmt.Sprintf("opening gs://%s/%s", bucket, object), err)
	}
	defer r.Close()

	f, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("creating %s: %w", local, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(local)
		return newStorageError(fmt.Sprintf("reading gs://%s/%s", bucket, object), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(local)
		return fmt.Errorf("writing %s: %w", local, err)
	}
	return nil
}
