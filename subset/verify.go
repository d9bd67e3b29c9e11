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

package subset

import (
	"os"

	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/bam"
	"github.com/googlegenomics/subset/internal/bgzf"
	"github.com/googlegenomics/subset/internal/faidx"
)

func (x *extraction) verifySequence(fai string) {
	length, err := faidx.Lookup(fai, x.window.Label())
	if err != nil {
		x.warnf("cannot verify %s: %v", fai, err)
		return
	}
	if length != x.window.Length() {
		x.warnf("%s holds %d bases, window %s runs past the end of the sequence; annotations are still clamped to %d",
			fai, length, x.window, x.window.Length())
	}
}

func (x *extraction) verifyAlignment(path string) {
	f, err := os.Open(path)
	if err != nil {
		x.warnf("cannot verify %s: %v", path, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		x.warnf("cannot verify %s: %v", path, err)
		return
	}
	if ok, err := bgzf.HasEOF(f, info.Size()); err != nil || !ok {
		x.warnf("%s has no BGZF end-of-file marker and may be truncated", path)
	}

	id, err := bam.GetReferenceID(f, x.window.Label())
	if err != nil {
		x.warnf("header of %s does not name %s: %v", path, x.window.Label(), err)
		return
	}

	bai, err := os.Open(path + ".bai")
	if err != nil {
		x.warnf("cannot verify %s.bai: %v", path, err)
		return
	}
	defer bai.Close()

	index, err := bam.ReadIndex(bai)
	if err != nil {
		x.warnf("unreadable index %s.bai, try reindexing it with samtools index: %v", path, err)
		return
	}
	own, all := len(index.Chunks(genomics.Region{ReferenceID: id})), len(index.Chunks(genomics.AllMappedReads))
	if all != own {
		x.warnf("%s.bai indexes %d chunks outside %s", path, all-own, x.window.Label())
	}
	x.logger.Printf("%s: %d indexed chunks", path, own)
}
