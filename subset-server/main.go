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

// This binary serves region extraction over HTTP, cropping files from a local
// directory or from GCS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/subset/internal/analytics"
	"github.com/googlegenomics/subset/internal/remote"
	"github.com/googlegenomics/subset/internal/samtools"
	"github.com/googlegenomics/subset/server"
	"github.com/googlegenomics/subset/subset"
)

var (
	port = flag.Int("port", 8080, "HTTP service port")

	secure    = flag.Bool("secure", false, "serve in HTTPS-only mode and forward client bearer tokens")
	httpsCert = flag.String("https_cert", "", "HTTPS certificate file")
	httpsKey  = flag.String("https_key", "", "HTTPS key file")

	directory = flag.String("directory", "", "directory that holds the inputs and receives the outputs")
	buckets   = flag.String("buckets", "", "if set, restricts remote inputs to a comma-separated list of buckets")

	samtoolsPath = flag.String("samtools", "samtools", "samtools binary")
	timeout      = flag.Duration("timeout", 10*time.Minute, "limit on each samtools invocation (0 for none)")
	verify       = flag.Bool("verify", true, "read back the produced indexes and headers")

	// Enable or disable anonymous usage tracking.
	//
	// If enabled, anonymous information about requests handled by the server is
	// logged to Google via Google Analytics.
	//
	// This information helps Google determine how well the software is
	// performing and where improvements should be made.  No user identifying
	// information is ever sent to Google.
	trackUsage = flag.Bool("track_usage", false, "anonymous usage tracking")
)

func main() {
	flag.Parse()

	if *directory == "" {
		log.Fatalf("You must specify -directory.")
	}
	if info, err := os.Stat(*directory); err != nil || !info.IsDir() {
		log.Fatalf("Cannot serve %q: not a directory", *directory)
	}
	if *secure && (*httpsCert == "" || *httpsKey == "") {
		log.Fatalf("You must specify both -https_cert and -https_key in secure mode.")
	}

	newStorageClient := func(*http.Request) (remote.Client, error) {
		return remote.NewPublicClient(), nil
	}
	if *secure {
		newStorageClient = func(req *http.Request) (remote.Client, error) {
			return remote.NewClientFromBearerToken(req.Context(), req.Header.Get("Authorization"))
		}
	}

	extractor := subset.Extractor{
		Tool:   &samtools.Samtools{Path: *samtoolsPath, Timeout: *timeout},
		Logger: log.New(os.Stderr, "", log.LstdFlags),
		Verify: *verify,
	}
	srv := server.NewServer(extractor, *directory, newStorageClient)
	if *buckets != "" {
		srv.Whitelist(strings.Split(*buckets, ","))
	}

	router := gin.Default()
	if *trackUsage {
		log.Printf("Enabling anonymous usage tracking")

		client := analytics.NewClient(analytics.PropertyID, "")
		router.Use(analytics.Middleware(func(hits []analytics.Hit) {
			if err := client.Send(context.Background(), hits); err != nil {
				log.Printf("Failed to send %d hits to analytics: %v", len(hits), err)
			}
		}))
	}
	srv.Export(router)

	address := fmt.Sprintf(":%d", *port)
	if *secure {
		if err := router.RunTLS(address, *httpsCert, *httpsKey); err != nil {
			log.Fatalf("HTTPS server returned an error: %v", err)
		}
	} else {
		if err := router.Run(address); err != nil {
			log.Fatalf("HTTP server returned an error: %v", err)
		}
	}
}
