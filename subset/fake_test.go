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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/googlegenomics/subset/genomics"
	"github.com/googlegenomics/subset/internal/bam"
	"github.com/googlegenomics/subset/internal/bam/bamtest"
)

// fakeTool imitates samtools on small single-sequence files.
type fakeTool struct {
	version string
	reads   string
	fail    map[string]error
	skip    map[string]bool
	index   []byte

	calls    []string
	imported string
}

func newFakeTool() *fakeTool {
	return &fakeTool{
		version: "samtools 1.9\nUsing htslib 1.9\n",
		fail:    make(map[string]error),
		skip:    make(map[string]bool),
	}
}

func (f *fakeTool) call(op string, args ...string) error {
	f.calls = append(f.calls, strings.Join(append([]string{op}, args...), " "))
	return f.fail[op]
}

func (f *fakeTool) Version(context.Context) (string, error) {
	if err := f.call("version"); err != nil {
		return "", err
	}
	return f.version, nil
}

func (f *fakeTool) IndexFasta(_ context.Context, fasta string) error {
	if err := f.call("faidx", fasta); err != nil || f.skip["faidx"] {
		return err
	}
	name, length, err := readFasta(fasta)
	if err != nil {
		return err
	}
	index := fmt.Sprintf("%s\t%d\t%d\t%d\t%d\n", name, length, len(name)+2, length, length+1)
	return ioutil.WriteFile(fasta+".fai", []byte(index), 0644)
}

func (f *fakeTool) ExtractFasta(_ context.Context, fasta, region, out string) error {
	if err := f.call("extract", fasta, region); err != nil {
		return err
	}
	_, length, err := readFasta(fasta)
	if err != nil {
		return err
	}
	w, err := genomics.ParseWindow(region)
	if err != nil {
		return err
	}
	if w.End > length {
		w.End = length
	}
	return ioutil.WriteFile(out, []byte(">"+region+"\n"+strings.Repeat("A", w.End-w.Start+1)+"\n"), 0644)
}

func (f *fakeTool) View(_ context.Context, bam, region string) (io.ReadCloser, error) {
	if err := f.call("view", bam, region); err != nil {
		return nil, err
	}
	return ioutil.NopCloser(strings.NewReader(f.reads)), nil
}

func (f *fakeTool) Import(_ context.Context, sam, fai, out string) error {
	data, err := ioutil.ReadFile(sam)
	if err != nil {
		return err
	}
	f.imported = string(data)
	if err := f.call("import", fai); err != nil {
		return err
	}

	index, err := os.Open(fai)
	if err != nil {
		return err
	}
	defer index.Close()
	var refs []bam.Reference
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		length, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		refs = append(refs, bam.Reference{Name: fields[0], Length: int32(length)})
	}
	return ioutil.WriteFile(out, bamtest.Header("@HD\tVN:1.6\n", refs...), 0644)
}

func (f *fakeTool) IndexBam(_ context.Context, path string) error {
	if err := f.call("index"); err != nil || f.skip["index"] {
		return err
	}
	index := f.index
	if index == nil {
		index = bamtest.Index(bamtest.ReferenceIndex{})
	}
	return ioutil.WriteFile(path+".bai", index, 0644)
}

func readFasta(path string) (string, int, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], ">") {
		return "", 0, errors.New("not a FASTA file")
	}
	var length int
	for _, line := range lines[1:] {
		length += len(line)
	}
	return strings.Fields(lines[0][1:])[0], length, nil
}
