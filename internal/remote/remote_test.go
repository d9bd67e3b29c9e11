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
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func TestParseURI(t *testing.T) {
	testCases := []struct {
		uri, bucket, object string
	}{
		{"gs://bucket/ref.fa", "bucket", "ref.fa"},
		{"gs://bucket/data/genomes/ref.fa", "bucket", "data/genomes/ref.fa"},
	}
	for _, tc := range testCases {
		t.Run(tc.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tc.uri)
			if err != nil {
				t.Fatalf("ParseURI() returned error: %v", err)
			}
			if bucket != tc.bucket || object != tc.object {
				t.Errorf("ParseURI() = (%q, %q), want (%q, %q)", bucket, object, tc.bucket, tc.object)
			}
		})
	}

	for _, uri := range []string{"", "ref.fa", "/data/ref.fa", "gs://", "gs://bucket", "gs://bucket/", "gs:///object", "gs://bucket/dir/", "s3://bucket/ref.fa"} {
		if _, _, err := ParseURI(uri); err == nil {
			t.Errorf("ParseURI(%q): expected error, not success", uri)
		}
	}
}

func TestStage(t *testing.T) {
	objects := map[string]string{
		"/bucket/data/ref.fa":        ">chr1\nACGT\n",
		"/bucket/data/ref.fa.fai":    "chr1\t4\t6\t4\t5\n",
		"/bucket/data/bare.fa":       ">chr1\nACGT\n",
		"/bucket/data/reads.bam":     "bam",
		"/bucket/data/reads.bam.bai": "bai",
		"/bucket/data/short.bam":     "bam",
		"/bucket/data/short.bai":     "short bai",
		"/bucket/data/noindex.bam":   "bam",
		"/bucket/data/genes.gff3.gz": "gff",
	}
	testCases := []struct {
		uri   string
		kind  Kind
		files map[string]string
	}{
		{"gs://bucket/data/ref.fa", Sequence, map[string]string{"ref.fa": ">chr1\nACGT\n", "ref.fa.fai": "chr1\t4\t6\t4\t5\n"}},
		{"gs://bucket/data/bare.fa", Sequence, map[string]string{"bare.fa": ">chr1\nACGT\n"}},
		{"gs://bucket/data/reads.bam", Alignment, map[string]string{"reads.bam": "bam", "reads.bam.bai": "bai"}},
		{"gs://bucket/data/short.bam", Alignment, map[string]string{"short.bam": "bam", "short.bam.bai": "short bai"}},
		{"gs://bucket/data/genes.gff3.gz", Annotation, map[string]string{"genes.gff3.gz": "gff"}},
	}
	for _, tc := range testCases {
		t.Run(tc.uri, func(t *testing.T) {
			dir := t.TempDir()
			stager := &Stager{Client: testClient(t, fakeGCS(objects)), Dir: dir}

			local, err := stager.Stage(context.Background(), tc.uri, tc.kind)
			if err != nil {
				t.Fatalf("Stage() returned error: %v", err)
			}
			if got, want := local, filepath.Join(dir, filepath.Base(tc.uri)); got != want {
				t.Errorf("Wrong local path: got %q, want %q", got, want)
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("Failed to list staged files: %v", err)
			}
			if got, want := len(entries), len(tc.files); got != want {
				t.Errorf("Wrong number of staged files: got %d, want %d", got, want)
			}
			for name, want := range tc.files {
				got, err := ioutil.ReadFile(filepath.Join(dir, name))
				if err != nil {
					t.Errorf("Failed to read %s: %v", name, err)
					continue
				}
				if string(got) != want {
					t.Errorf("Wrong content for %s: got %q, want %q", name, got, want)
				}
			}
		})
	}

	t.Run("missing alignment index", func(t *testing.T) {
		stager := &Stager{Client: testClient(t, fakeGCS(objects)), Dir: t.TempDir()}
		if _, err := stager.Stage(context.Background(), "gs://bucket/data/noindex.bam", Alignment); !errors.Is(err, ErrNotFound) {
			t.Errorf("Stage() returned %v, want ErrNotFound", err)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		stager := &Stager{Client: testClient(t, fakeGCS(objects)), Dir: t.TempDir()}
		if _, err := stager.Stage(context.Background(), "gs://bucket/data/other.fa", Sequence); !errors.Is(err, ErrNotFound) {
			t.Errorf("Stage() returned %v, want ErrNotFound", err)
		}
	})

	t.Run("name collision", func(t *testing.T) {
		stager := &Stager{Client: testClient(t, fakeGCS(objects)), Dir: t.TempDir()}
		if _, err := stager.Stage(context.Background(), "gs://bucket/data/genes.gff3.gz", Annotation); err != nil {
			t.Fatalf("Stage() returned error: %v", err)
		}
		if _, err := stager.Stage(context.Background(), "gs://bucket/data/genes.gff3.gz", Annotation); err == nil {
			t.Error("Stage() of an existing file: expected error, not success")
		}
	})
}

func TestStage_StorageErrors(t *testing.T) {
	testCases := []struct {
		name string
		code int
		want error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidAuthentication},
		{"forbidden", http.StatusForbidden, ErrPermissionDenied},
		{"not found", http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stager := &Stager{Client: testClient(t, fixedStatus(tc.code)), Dir: t.TempDir()}
			if _, err := stager.Stage(context.Background(), "gs://bucket/ref.fa", Sequence); !errors.Is(err, tc.want) {
				t.Errorf("Stage() returned %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewClientFromBearerToken(t *testing.T) {
	for _, authorization := range []string{"", "Bearer", "Basic dXNlcjpwYXNz", "Bearer a b"} {
		if _, err := NewClientFromBearerToken(context.Background(), authorization); !errors.Is(err, ErrMissingOrInvalidToken) {
			t.Errorf("NewClientFromBearerToken(%q) returned %v, want ErrMissingOrInvalidToken", authorization, err)
		}
	}

	client, err := NewClientFromBearerToken(context.Background(), "Bearer ya29.token")
	if err != nil {
		t.Fatalf("NewClientFromBearerToken() returned error: %v", err)
	}
	if client == nil {
		t.Fatal("NewClientFromBearerToken() returned a nil client")
	}
}

func testClient(t *testing.T, transport http.RoundTripper) Client {
	gcs, err := storage.NewClient(context.Background(), option.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		t.Fatalf("Failed to create storage client: %v", err)
	}
	return GCSClient{gcs}
}

type fixedStatus int

func (code fixedStatus) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		Status:     http.StatusText(int(code)),
		StatusCode: int(code),
		Header:     make(http.Header),
		Body:       http.NoBody,
	}, nil
}

// fakeGCS serves objects keyed by "/bucket/object" through either the XML
// or the JSON download endpoint.
type fakeGCS map[string]string

func (fake fakeGCS) RoundTrip(req *http.Request) (*http.Response, error) {
	name := req.URL.Path
	if strings.HasPrefix(name, "/download/") {
		name = strings.TrimPrefix(name, "/download")
	}
	if strings.HasPrefix(name, "/storage/v1/b/") {
		parts := strings.SplitN(strings.TrimPrefix(name, "/storage/v1/b/"), "/o/", 2)
		if len(parts) == 2 {
			object, _ := url.PathUnescape(parts[1])
			name = "/" + parts[0] + "/" + object
		}
	}

	w := httptest.NewRecorder()
	content, ok := fake[name]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return w.Result(), nil
	}
	http.ServeContent(w, req, name, time.Now(), bytes.NewReader([]byte(content)))
	return w.Result(), nil
}
