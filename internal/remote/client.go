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

// Package remote stages Google Cloud Storage objects on the local filesystem
// so that they can be cropped like local files.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	// ErrNotFound is returned for objects that do not exist.
	ErrNotFound = errors.New("object does not exist")
	// ErrPermissionDenied is returned when the caller may not read an object.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidAuthentication is returned when credentials are rejected.
	ErrInvalidAuthentication = errors.New("invalid authentication")
	// ErrMissingOrInvalidToken is returned by NewClientFromBearerToken.
	ErrMissingOrInvalidToken = errors.New("missing or invalid token")
)

// Client provides access to objects in a storage engine.
type Client interface {
	// NewObjectHandle returns a handle to a specified object in
	// the storage engine.
	NewObjectHandle(bucket, object string) ObjectHandle
}

// ObjectHandle is a readable object.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified
	// range. Length of -1 means to capture everything until the
	// end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// GCSClient implements Client using Google Cloud Storage.
type GCSClient struct {
	*storage.Client
}

// NewObjectHandle implements Client.
func (c GCSClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return gcsObjectHandle{c.Bucket(bucket).Object(object)}
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

var (
	defaultStorageClient           *storage.Client
	initializeDefaultStorageClient sync.Once
)

func newClientWithOptions(opts ...option.ClientOption) Client {
	initializeDefaultStorageClient.Do(func() {
		gcs, err := storage.NewClient(context.Background(), opts...)
		if err != nil {
			log.Fatalf("Creating default storage client: %v", err)
		}
		defaultStorageClient = gcs
	})
	return GCSClient{defaultStorageClient}
}

// NewDefaultClient returns a shared client that uses the application default
// credentials.
func NewDefaultClient() Client {
	return newClientWithOptions()
}

// NewPublicClient returns a shared client that sends no credentials, for
// public buckets.
func NewPublicClient() Client {
	return newClientWithOptions(option.WithHTTPClient(http.DefaultClient))
}

// NewClientFromBearerToken returns a client that forwards the bearer token
// from an HTTP Authorization header.
func NewClientFromBearerToken(ctx context.Context, authorization string) (Client, error) {
	fields := strings.Split(authorization, " ")
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, ErrMissingOrInvalidToken
	}

	token := oauth2.Token{
		TokenType:   fields[0],
		AccessToken: fields[1],
	}
	client, err := storage.NewClient(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&token)))
	if err != nil {
		return nil, fmt.Errorf("creating client with token source: %w", err)
	}
	return GCSClient{client}, nil
}

// IsRemote reports whether path names a Cloud Storage object.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, scheme)
}

const scheme = "gs://"

// ParseURI splits a gs://bucket/object URI.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsRemote(uri) {
		return "", "", fmt.Errorf("%q is not a %s URI", uri, scheme)
	}
	if parts := strings.SplitN(uri[len(scheme):], "/", 2); len(parts) == 2 {
		if parts[0] != "" && parts[1] != "" && !strings.HasSuffix(parts[1], "/") {
			return parts[0], parts[1], nil
		}
	}
	return "", "", fmt.Errorf("%q does not name a bucket and object", uri)
}

func newStorageError(context string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", context, ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %v", context, ErrInvalidAuthentication, err)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", context, ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", context, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", context, err)
}
