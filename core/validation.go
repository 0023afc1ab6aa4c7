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

package core

import "fmt"

// ValidateNote validates a Note according to domain rules.
//
// Validation rules:
//   - SourceID must not be empty
//   - SourcePath must not be empty
//
// NOT validated:
//   - Title and Body (empty notes are ingested with a zero vector)
//   - Timestamps (optional)
func ValidateNote(note *Note) error {
	if note == nil {
		return fmt.Errorf("%w: note is nil", ErrInvalidNote)
	}

	if note.SourceID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNote, ErrEmptySourceID)
	}

	if note.SourcePath == "" {
		return fmt.Errorf("%w: %s: %w", ErrInvalidNote, note.SourceID, ErrEmptySourcePath)
	}

	return nil
}

// ValidateNotes validates each note and checks SourceID uniqueness.
func ValidateNotes(notes []Note) error {
	seen := make(map[string]string, len(notes))
	for i := range notes {
		if err := ValidateNote(&notes[i]); err != nil {
			return err
		}
		if prev, dup := seen[notes[i].SourceID]; dup {
			return fmt.Errorf("%w %q: %s and %s", ErrDuplicateSourceID, notes[i].SourceID, prev, notes[i].SourcePath)
		}
		seen[notes[i].SourceID] = notes[i].SourcePath
	}
	return nil
}
