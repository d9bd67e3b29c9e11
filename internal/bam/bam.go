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

// Package bam reads the parts of BAM and BAI files needed to check cropped
// alignments: the reference dictionary and the index.
package bam

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/bgzf"
	"github.com/googlegenomics/subset/internal/binary"
)

const (
	baiMagic = "BAI\x01"
	bamMagic = "BAM\x01"

	// This ID is used as a virtual bin ID for (unused) chunk metadata.
	metadataID = 37450

	// This is just to prevent arbitrarily long allocations due to malformed
	// data.  No reference name should be longer than this in practice.
	maximumNameLength = 1024

	// The maximum read length as constrained by the size of the level zero bin
	// in the SAM specification, section 5.1.1.
	maximumReadLength = 1 << 29

	// The size of each tiling window from the linear index, as specified in the
	// SAM specification section 5.1.3.
	linearWindowSize = 1 << 14
)

// ErrReferenceNotFound is returned by GetReferenceID for a name that is not
// in the header.
var ErrReferenceNotFound = errors.New("reference not found")

// Reference is an entry of the BAM reference dictionary.
type Reference struct {
	Name   string
	Length int32
}

// ReadReferences returns the reference dictionary from the header of bam.
func ReadReferences(bam io.Reader) ([]Reference, error) {
	bam, err := gzip.NewReader(bam)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %v", err)
	}

	if err := binary.ExpectBytes(bam, []byte(bamMagic)); err != nil {
		return nil, fmt.Errorf("reading magic: %v", err)
	}
	var length int32
	if err := binary.Read(bam, &length); err != nil {
		return nil, fmt.Errorf("reading SAM header length: %v", err)
	}
	if length < 0 {
		return nil, fmt.Errorf("invalid SAM header length (%d bytes)", length)
	}
	if _, err := io.CopyN(ioutil.Discard, bam, int64(length)); err != nil {
		return nil, fmt.Errorf("reading past SAM header: %v", err)
	}
	var count int32
	if err := binary.Read(bam, &count); err != nil {
		return nil, fmt.Errorf("reading references count: %v", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("invalid reference count (%d)", count)
	}

	var references []Reference
	for i := int32(0); i < count; i++ {
		if err := binary.Read(bam, &length); err != nil {
			return nil, fmt.Errorf("reading name length: %v", err)
		}
		name, err := binary.ReadCString(bam, length, maximumNameLength)
		if err != nil {
			return nil, fmt.Errorf("reading name: %v", err)
		}
		var size int32
		if err := binary.Read(bam, &size); err != nil {
			return nil, fmt.Errorf("reading reference length: %v", err)
		}
		references = append(references, Reference{name, size})
	}
	return references, nil
}

// GetReferenceID attempts to determine the ID for the named genomic reference
// by reading BAM header data from bam.
func GetReferenceID(bam io.Reader, reference string) (int32, error) {
	references, err := ReadReferences(bam)
	if err != nil {
		return 0, err
	}
	for i, ref := range references {
		if ref.Name == reference {
			return int32(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", reference, ErrReferenceNotFound)
}

// Index holds the binning and linear index of every reference in a BAI file.
type Index struct {
	References []ReferenceIndex
}

// ReferenceIndex is the index of a single reference.
type ReferenceIndex struct {
	Bins    map[uint32][]bgzf.Chunk
	Offsets []bgzf.Address
}

// ReadIndex parses BAI data from bai.
func ReadIndex(bai io.Reader) (*Index, error) {
	if err := binary.ExpectBytes(bai, []byte(baiMagic)); err != nil {
		return nil, fmt.Errorf("reading magic: %v", err)
	}

	var references int32
	if err := binary.Read(bai, &references); err != nil {
		return nil, fmt.Errorf("reading reference count: %v", err)
	}
	if references < 0 {
		return nil, fmt.Errorf("invalid reference count (%d)", references)
	}

	index := &Index{References: make([]ReferenceIndex, references)}
	for i := range index.References {
		var binCount int32
		if err := binary.Read(bai, &binCount); err != nil {
			return nil, fmt.Errorf("reading bin count: %v", err)
		}
		ref := ReferenceIndex{Bins: make(map[uint32][]bgzf.Chunk)}
		for j := int32(0); j < binCount; j++ {
			var bin struct {
				ID     uint32
				Chunks int32
			}
			if err := binary.Read(bai, &bin); err != nil {
				return nil, fmt.Errorf("reading bin header: %v", err)
			}
			if bin.Chunks < 0 {
				return nil, fmt.Errorf("invalid chunk count (%d chunks)", bin.Chunks)
			}
			chunks := make([]bgzf.Chunk, bin.Chunks)
			if err := binary.Read(bai, &chunks); err != nil {
				return nil, fmt.Errorf("reading chunks: %v", err)
			}
			if bin.ID != metadataID {
				ref.Bins[bin.ID] = chunks
			}
		}

		var intervals int32
		if err := binary.Read(bai, &intervals); err != nil {
			return nil, fmt.Errorf("reading interval count: %v", err)
		}
		if intervals < 0 {
			return nil, fmt.Errorf("invalid interval count (%d intervals)", intervals)
		}
		ref.Offsets = make([]bgzf.Address, intervals)
		if err := binary.Read(bai, &ref.Offsets); err != nil {
			return nil, fmt.Errorf("reading offsets: %v", err)
		}
		index.References[i] = ref
	}
	return index, nil
}

// Chunks returns the chunks that may contain reads inside region.
func (index *Index) Chunks(region genomics.Region) []bgzf.Chunk {
	bins := binsForRange(region.Start, region.End)

	var chunks []bgzf.Chunk
	for i, ref := range index.References {
		if region.ReferenceID >= 0 && int32(i) != region.ReferenceID {
			continue
		}

		var firstReadOffset bgzf.Address
		if index := int(region.Start / linearWindowSize); index < len(ref.Offsets) {
			firstReadOffset = ref.Offsets[index]
		}

		for id, candidates := range ref.Bins {
			if !containsBin(region, id, bins) {
				continue
			}
			for _, chunk := range candidates {
				if chunk.End < firstReadOffset {
					continue
				}
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks
}

func containsBin(region genomics.Region, binID uint32, bins []uint16) bool {
	if region.Start == 0 && region.End == 0 {
		return true
	}
	for _, id := range bins {
		if uint32(id) == binID {
			return true
		}
	}
	return false
}

// This function is derived from the C examples in the BAM index specification.
func binsForRange(start, end uint32) []uint16 {
	if end == 0 || end > maximumReadLength {
		end = maximumReadLength
	}
	if end <= start {
		return nil
	}
	if start > maximumReadLength {
		return nil
	}

	end--

	bins := []uint16{0}
	for k := uint16(1 + (start >> 26)); k <= uint16(1+(end>>26)); k++ {
		bins = append(bins, k)
	}
	for k := uint16(9 + (start >> 23)); k <= uint16(9+(end>>23)); k++ {
		bins = append(bins, k)
	}
	for k := uint16(73 + (start >> 20)); k <= uint16(73+(end>>20)); k++ {
		bins = append(bins, k)
	}
	for k := uint16(585 + (start >> 17)); k <= uint16(585+(end>>17)); k++ {
		bins = append(bins, k)
	}
	for k := uint16(4681 + (start >> 14)); k <= uint16(4681+(end>>14)); k++ {
		bins = append(bins, k)
	}
	return bins
}
