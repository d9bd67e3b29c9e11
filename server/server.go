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

// Package server exposes region extraction over HTTP.
package server

import (
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/analytics"
	"github.com/googlegenomics/subset/internal/remote"
	"github.com/googlegenomics/subset/subset"
)

const (
	extractPath = "/extract"
	filesPath   = "/files"
)

var errOutsideDirectory = errors.New("path is outside the served directory")

// NewStorageClientFunc returns the storage client used to stage the remote
// inputs of req.
type NewStorageClientFunc func(req *http.Request) (remote.Client, error)

// Server crops files found under a directory or in Cloud Storage and writes
// the results to the directory.
type Server struct {
	extractor        subset.Extractor
	directory        string
	newStorageClient NewStorageClientFunc
	whitelist        map[string]bool
}

// NewServer returns a server that runs extractor on files under directory.
// Outputs are always written to directory.
func NewServer(extractor subset.Extractor, directory string, newStorageClient NewStorageClientFunc) *Server {
	extractor.OutputDir = directory
	return &Server{extractor, directory, newStorageClient, make(map[string]bool)}
}

// Whitelist restricts remote inputs to the named buckets.
func (server *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		if bucket != "" {
			server.whitelist[bucket] = true
		}
	}
}

// Export registers the server's handlers with router.
func (server *Server) Export(router gin.IRoutes) {
	router.POST(extractPath, server.serveExtract)
	router.GET(filesPath+"/*path", server.serveFile)
}

type extractRequest struct {
	ReferenceName string   `json:"referenceName" binding:"required"`
	Start         int      `json:"start"`
	End           int      `json:"end"`
	Fasta         string   `json:"fasta"`
	Bams          []string `json:"bams"`
	Gffs          []string `json:"gffs"`
	TryAnyways    bool     `json:"tryAnyways"`
}

func (r *extractRequest) window() genomics.Window {
	w := genomics.Window{Name: r.ReferenceName, Start: r.Start, End: r.End}
	if w.Start == 0 {
		w.Start = 1
	}
	if w.End == 0 {
		w.End = genomics.MaxEnd
	}
	return w
}

func (server *Server) serveExtract(c *gin.Context) {
	track := analytics.TrackerFromContext(c.Request.Context())
	track(analytics.Event("Extract", "Extract Request Received", "", nil))

	var body extractRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, newInvalidInputError("parsing request", err))
		return
	}
	window := body.window()
	if err := window.Validate(); err != nil {
		writeError(c, newInvalidInputError("parsing window", err))
		return
	}
	if len(body.Bams) > 0 && body.Fasta == "" {
		writeError(c, newInvalidInputError("parsing request", subset.ErrAlignmentWithoutSequence))
		return
	}

	staging, err := ioutil.TempDir(server.directory, ".staging-")
	if err != nil {
		writeError(c, fmt.Errorf("creating staging directory: %v", err))
		return
	}
	defer os.RemoveAll(staging)

	in := &inputs{server: server, req: c.Request, stager: remote.Stager{Dir: staging}}
	req := &subset.Request{Window: window, AllowUntested: body.TryAnyways}
	if body.Fasta != "" {
		if req.Sequence, err = in.resolve(body.Fasta, remote.Sequence); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.Alignments, err = in.resolveAll(body.Bams, remote.Alignment); err != nil {
		writeError(c, err)
		return
	}
	if req.Annotations, err = in.resolveAll(body.Gffs, remote.Annotation); err != nil {
		writeError(c, err)
		return
	}

	result, err := server.extractor.Extract(c.Request.Context(), req)
	if err != nil {
		track(analytics.Event("Extract", "Extract Error", "", nil))
		writeError(c, newExtractionError(err))
		return
	}

	outputs := make([]string, 0, len(result.Outputs))
	for _, output := range result.Outputs {
		rel, err := filepath.Rel(server.directory, output)
		if err != nil {
			writeError(c, fmt.Errorf("locating output: %v", err))
			return
		}
		outputs = append(outputs, filepath.ToSlash(rel))
	}
	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"outputs":  outputs,
		"warnings": warnings,
	})

	count := int64(len(outputs))
	track(analytics.Event("Extract", "Extract Response Output Count", "", &count))
	track(analytics.Event("Extract", "Extract Response Sent", "", nil))
}

func (server *Server) serveFile(c *gin.Context) {
	path, err := server.local(c.Param("path"))
	if err != nil {
		writeError(c, newPermissionDeniedError("resolving path", err))
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(c, newNotFoundError("opening file", fmt.Errorf("%s does not exist", c.Param("path"))))
		return
	}
	c.File(path)
}

// local returns the path of name inside the served directory.
func (server *Server) local(name string) (string, error) {
	path := filepath.Join(server.directory, filepath.FromSlash(name))
	rel, err := filepath.Rel(server.directory, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideDirectory
	}
	return path, nil
}

func (server *Server) checkWhitelist(bucket string) error {
	if len(server.whitelist) == 0 || server.whitelist[bucket] {
		return nil
	}
	return fmt.Errorf("access to bucket %s is not allowed", bucket)
}

// inputs resolves the files named by a single request.  The storage client
// is only created if a remote input is named.
type inputs struct {
	server *Server
	req    *http.Request
	stager remote.Stager
}

func (in *inputs) resolveAll(names []string, kind remote.Kind) ([]string, error) {
	var paths []string
	for _, name := range names {
		path, err := in.resolve(name, kind)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (in *inputs) resolve(name string, kind remote.Kind) (string, error) {
	if !remote.IsRemote(name) {
		path, err := in.server.local(name)
		if err != nil {
			return "", newPermissionDeniedError("resolving "+name, err)
		}
		if _, err := os.Stat(path); err != nil {
			return "", newNotFoundError("opening "+name, err)
		}
		return path, nil
	}

	bucket, _, err := remote.ParseURI(name)
	if err != nil {
		return "", newInvalidInputError("parsing input", err)
	}
	if err := in.server.checkWhitelist(bucket); err != nil {
		return "", newPermissionDeniedError("checking whitelist", err)
	}
	if in.stager.Client == nil {
		client, err := in.server.newStorageClient(in.req)
		if err != nil {
			return "", newStorageError("creating client", err)
		}
		in.stager.Client = client
	}

	path, err := in.stager.Stage(in.req.Context(), name, kind)
	if err != nil {
		log.Printf("Failed to stage %s: %v", name, err)
		return "", newStorageError("staging "+name, err)
	}
	return path, nil
}
