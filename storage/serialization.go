// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/pke/core"
)

// RecordFormatVersion prefixes every encoded record. Bump it whenever the
// field layout below changes.
const RecordFormatVersion uint64 = 1

// MarshalRecord serializes a Record to bytes using MUS encoding.
// Timestamps are stored as UTC Unix microseconds.
func MarshalRecord(record *core.Record) []byte {
	buf := make([]byte, recordSize(record))
	e := encoder{bs: buf}
	e.uint64(RecordFormatVersion)
	e.string(record.IdentityKey)
	e.string(record.ContentHash)

	n := &record.Note
	e.string(n.SourceID)
	e.string(n.ExternalID)
	e.string(n.Title)
	e.string(n.Body)
	e.strings(n.Tags)
	e.time(n.CreatedAt)
	e.time(n.UpdatedAt)
	e.string(n.SourcePath)
	e.string(n.Notebook)
	e.strings(n.Resources)
	e.metadata(n.Metadata)

	e.vector(record.Vector)
	return buf[:e.n]
}

// UnmarshalRecord deserializes a Record from bytes.
func UnmarshalRecord(data []byte) (*core.Record, error) {
	d := decoder{bs: data}
	version := d.uint64()
	if d.err == nil && version != RecordFormatVersion {
		return nil, fmt.Errorf("%w: unknown record format %d", ErrSerializationFailed, version)
	}

	r := &core.Record{}
	r.IdentityKey = d.string()
	r.ContentHash = d.string()

	n := &r.Note
	n.SourceID = d.string()
	n.ExternalID = d.string()
	n.Title = d.string()
	n.Body = d.string()
	n.Tags = d.strings()
	n.CreatedAt = d.time()
	n.UpdatedAt = d.time()
	n.SourcePath = d.string()
	n.Notebook = d.string()
	n.Resources = d.strings()
	n.Metadata = d.metadata()

	r.Vector = d.vector()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return r, nil
}

func recordSize(record *core.Record) int {
	n := &record.Note
	size := varint.Uint64.Size(RecordFormatVersion) +
		ord.String.Size(record.IdentityKey) +
		ord.String.Size(record.ContentHash) +
		ord.String.Size(n.SourceID) +
		ord.String.Size(n.ExternalID) +
		ord.String.Size(n.Title) +
		ord.String.Size(n.Body) +
		stringsSize(n.Tags) +
		timeSize(n.CreatedAt) +
		timeSize(n.UpdatedAt) +
		ord.String.Size(n.SourcePath) +
		ord.String.Size(n.Notebook) +
		stringsSize(n.Resources) +
		varint.PositiveInt.Size(len(n.Metadata))
	for k, v := range n.Metadata {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	size += varint.PositiveInt.Size(len(record.Vector))
	for _, f := range record.Vector {
		size += varint.Float32.Size(f)
	}
	return size
}

func stringsSize(ss []string) int {
	size := varint.PositiveInt.Size(len(ss))
	for _, s := range ss {
		size += ord.String.Size(s)
	}
	return size
}

func timeSize(t *time.Time) int {
	if t == nil {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + varint.Int64.Size(t.UnixMicro())
}

type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) uint64(v uint64) { e.n += varint.Uint64.Marshal(v, e.bs[e.n:]) }
func (e *encoder) string(v string) { e.n += ord.String.Marshal(v, e.bs[e.n:]) }
func (e *encoder) length(v int)    { e.n += varint.PositiveInt.Marshal(v, e.bs[e.n:]) }

func (e *encoder) strings(ss []string) {
	e.length(len(ss))
	for _, s := range ss {
		e.string(s)
	}
}

func (e *encoder) time(t *time.Time) {
	e.n += ord.Bool.Marshal(t != nil, e.bs[e.n:])
	if t != nil {
		e.n += varint.Int64.Marshal(t.UnixMicro(), e.bs[e.n:])
	}
}

func (e *encoder) metadata(md map[string]string) {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.length(len(keys))
	for _, k := range keys {
		e.string(k)
		e.string(md[k])
	}
}

func (e *encoder) vector(v []float32) {
	e.length(len(v))
	for _, f := range v {
		e.n += varint.Float32.Marshal(f, e.bs[e.n:])
	}
}

// decoder reads fields sequentially and latches the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) advance(n int, err error) bool {
	d.n += n
	d.err = err
	return err == nil
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.advance(n, err)
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.advance(n, err)
	return v
}

func (d *decoder) length() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.PositiveInt.Unmarshal(d.bs[d.n:])
	if !d.advance(n, err) {
		return 0
	}
	if v < 0 || v > len(d.bs)-d.n {
		d.err = ErrTruncatedData
		return 0
	}
	return v
}

func (d *decoder) strings() []string {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]string, l)
	for i := range out {
		out[i] = d.string()
	}
	return out
}

func (d *decoder) time() *time.Time {
	if d.err != nil {
		return nil
	}
	present, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	if !d.advance(n, err) || !present {
		return nil
	}
	micros, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	if !d.advance(n, err) {
		return nil
	}
	t := time.UnixMicro(micros).UTC()
	return &t
}

func (d *decoder) metadata() map[string]string {
	l := d.length()
	if l == 0 {
		return nil
	}
	md := make(map[string]string, l)
	for i := 0; i < l; i++ {
		k := d.string()
		md[k] = d.string()
	}
	return md
}

func (d *decoder) vector() []float32 {
	l := d.length()
	if l == 0 {
		return nil
	}
	v := make([]float32, l)
	for i := range v {
		if d.err != nil {
			return nil
		}
		f, n, err := varint.Float32.Unmarshal(d.bs[d.n:])
		d.advance(n, err)
		v[i] = f
	}
	return v
}
