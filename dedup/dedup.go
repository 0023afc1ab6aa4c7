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

// Package dedup derives stable identity keys and content hashes for notes
// and classifies them against what storage already holds.
package dedup

import (
	"encoding/hex"
	"hash"
	"sort"
	"strings"

	"github.com/go-crypt/x/blake2b"

	"github.com/poiesic/pke/core"
)

// HashScheme names the digest used for identity keys and content hashes.
// It is recorded in artifact manifests.
const HashScheme = "blake2b-256"

// ExternalPrefix marks identity keys taken from an explicit external id.
const ExternalPrefix = "ext:"

const (
	fieldSep = "\x00"
	tagSep   = "\x1f"
)

// Action is the upsert decision for a note.
type Action int

const (
	ActionInsert Action = iota
	ActionUpdate
	ActionSkipUnchanged
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionSkipUnchanged:
		return "skip-unchanged"
	default:
		return "unknown"
	}
}

func newHash() hash.Hash {
	// 32 bytes is always a valid blake2b size with no key
	h, _ := blake2b.New(32, nil)
	return h
}

// Resolve returns the identity key for a note. An explicit ExternalID wins;
// otherwise the key is derived from the source path and source id so that
// the same note resolves identically on every run.
func Resolve(note *core.Note) string {
	if ext := strings.TrimSpace(note.ExternalID); ext != "" {
		return ExternalPrefix + ext
	}
	h := newHash()
	h.Write([]byte(note.SourcePath))
	h.Write([]byte(fieldSep))
	h.Write([]byte(note.SourceID))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash digests the semantically relevant content of a note: title,
// body and tag set. Tag order does not affect the result.
func ContentHash(note *core.Note) string {
	tags := make([]string, 0, len(note.Tags))
	for _, t := range note.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	tags = compact(tags)

	h := newHash()
	h.Write([]byte(strings.TrimSpace(note.Title)))
	h.Write([]byte(fieldSep))
	h.Write([]byte(note.Body))
	h.Write([]byte(fieldSep))
	h.Write([]byte(strings.Join(tags, tagSep)))
	return hex.EncodeToString(h.Sum(nil))
}

// Classify decides the upsert action given the stored hash (if found) and
// the hash of the incoming note.
func Classify(existing string, found bool, incoming string) Action {
	switch {
	case !found:
		return ActionInsert
	case existing != incoming:
		return ActionUpdate
	default:
		return ActionSkipUnchanged
	}
}

func compact(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
