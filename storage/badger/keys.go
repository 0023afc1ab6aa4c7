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


package badger

// Key prefixes for different data types
const (
	noteRecordPrefix = "note:"
	noteHashPrefix   = "notehash:"
	schemaKey        = "meta:schema"
)

// makeNoteKey generates the key holding the full record for an identity.
func makeNoteKey(identityKey string) []byte {
	return []byte(noteRecordPrefix + identityKey)
}

// makeNoteHashKey generates the content hash index key for an identity.
// The index lets dedup checks avoid decoding whole records.
func makeNoteHashKey(identityKey string) []byte {
	return []byte(noteHashPrefix + identityKey)
}
