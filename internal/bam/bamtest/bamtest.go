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

// Package bamtest builds small BAM and BAI files for tests.
package bamtest

import (
	"bytes"
	"encoding/binary"

	"github.com/googlegenomics/subset/internal/bam"
	"github.com/googlegenomics/subset/internal/bgzf"
)

// Header returns a BGZF compressed BAM file containing only a header that
// lists refs, followed by the end-of-file marker.
func Header(text string, refs ...bam.Reference) []byte {
	var raw bytes.Buffer
	raw.WriteString("BAM\x01")
	write(&raw, int32(len(text)))
	raw.WriteString(text)
	write(&raw, int32(len(refs)))
	for _, ref := range refs {
		write(&raw, int32(len(ref.Name)+1))
		raw.WriteString(ref.Name)
		raw.WriteByte(0)
		write(&raw, ref.Length)
	}
	return Compress(raw.Bytes())
}

// Compress wraps data in a single BGZF block and appends the end-of-file
// marker.
func Compress(data []byte) []byte {
	block, err := bgzf.EncodeBlock(data)
	if err != nil {
		panic(err)
	}
	eof, err := bgzf.EncodeBlock(nil)
	if err != nil {
		panic(err)
	}
	return append(block, eof...)
}

// Bin is a single bin of a reference in a BAI file.
type Bin struct {
	ID     uint32
	Chunks []bgzf.Chunk
}

// ReferenceIndex is the index of a single reference in a BAI file.
type ReferenceIndex struct {
	Bins    []Bin
	Offsets []bgzf.Address
}

// Index returns an uncompressed BAI file describing refs.
func Index(refs ...ReferenceIndex) []byte {
	var raw bytes.Buffer
	raw.WriteString("BAI\x01")
	write(&raw, int32(len(refs)))
	for _, ref := range refs {
		write(&raw, int32(len(ref.Bins)))
		for _, bin := range ref.Bins {
			write(&raw, bin.ID)
			write(&raw, int32(len(bin.Chunks)))
			write(&raw, bin.Chunks)
		}
		write(&raw, int32(len(ref.Offsets)))
		write(&raw, ref.Offsets)
	}
	return raw.Bytes()
}

func write(buf *bytes.Buffer, v interface{}) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}
