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

// Package analytics reports anonymous usage of the extraction server to
// Google Analytics using the Measurement Protocol.
package analytics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// PropertyID identifies the extraction server's usage reports.
	PropertyID = "UA-103022118-1"

	defaultEndpoint  = "https://www.google-analytics.com/"
	defaultBatchSize = 20 // The maximum number supported by batch endpoint.
)

// Hit is a single Measurement Protocol hit.
type Hit map[string]string

// Event returns an event hit.  The label is omitted when empty and the value
// when nil.
func Event(category, action, label string, value *int64) Hit {
	hit := Hit{
		"t":  "event",
		"ec": category,
		"ea": action,
	}
	if label != "" {
		hit["el"] = label
	}
	if value != nil {
		hit["ev"] = strconv.FormatInt(*value, 10)
	}
	return hit
}

// Client sends hits on behalf of a single anonymous client.
type Client struct {
	propertyID string
	clientID   string
	endpoint   string
	batchSize  int
	httpClient *http.Client
}

// NewClient returns a client that reports to propertyID.  A random client ID
// is chosen if clientID is empty.
func NewClient(propertyID, clientID string) *Client {
	if clientID == "" {
		clientID = uuid.New().String()
	}
	return &Client{propertyID, clientID, defaultEndpoint, defaultBatchSize, http.DefaultClient}
}

// Send uploads hits in batches.
func (c *Client) Send(ctx context.Context, hits []Hit) error {
	if len(hits) > 0 {
		if err := c.upload(ctx, hits); err != nil {
			return fmt.Errorf("uploading hits: %w", err)
		}
	}
	return nil
}

func (c *Client) upload(ctx context.Context, hits []Hit) error {
	for start := 0; start < len(hits); start += c.batchSize {
		end := start + c.batchSize
		if end > len(hits) {
			end = len(hits)
		}

		var body bytes.Buffer
		for _, hit := range hits[start:end] {
			payload := url.Values{
				"v":   []string{"1"},
				"tid": []string{c.propertyID},
				"cid": []string{c.clientID},
			}
			for key, value := range hit {
				payload.Add(key, value)
			}
			body.WriteString(payload.Encode())
			body.WriteByte('\n')
		}

		request, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/batch", &body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		response, err := c.httpClient.Do(request)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		io.Copy(ioutil.Discard, response.Body)
		response.Body.Close()
		if response.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected response status: %v", response.Status)
		}
	}
	return nil
}

type contextKey int

var hitsKey = contextKey(1)

// Middleware collects the hits recorded while handling a request and passes
// them to track once the request has been served.
func Middleware(track func([]Hit)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var hits []Hit
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), hitsKey, &hits))
		c.Next()
		track(hits)
	}
}

// TrackerFromContext returns a function that records hits for the request
// associated with ctx.  It never returns nil; hits are discarded when ctx is
// not tracked.
func TrackerFromContext(ctx context.Context) func(Hit) {
	if hits, ok := ctx.Value(hitsKey).(*[]Hit); ok {
		return func(hit Hit) { *hits = append(*hits, hit) }
	}
	return func(Hit) {}
}
