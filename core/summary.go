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

import (
	"fmt"
	"strings"
)

// Summary aggregates the outcomes of one ingest run.
// Outcomes are kept in artifact order.
type Summary struct {
	DryRun    bool
	Processed int
	Writes    int
	Outcomes  []Outcome
}

// NewSummary builds a summary from outcomes collected by a run.
func NewSummary(dryRun bool, outcomes []Outcome, writes int) *Summary {
	return &Summary{
		DryRun:    dryRun,
		Processed: len(outcomes),
		Writes:    writes,
		Outcomes:  outcomes,
	}
}

// Count returns how many outcomes have the given status.
func (s *Summary) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Counts returns the number of outcomes per status, omitting zero counts.
func (s *Summary) Counts() map[OutcomeStatus]int {
	counts := make(map[OutcomeStatus]int)
	for _, o := range s.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Failed returns the failed outcomes.
func (s *Summary) Failed() []Outcome {
	var failed []Outcome
	for _, o := range s.Outcomes {
		if o.Status == OutcomeFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// HasFailures reports whether any note failed.
func (s *Summary) HasFailures() bool {
	return s.Count(OutcomeFailed) > 0
}

// String renders a human-readable report.
func (s *Summary) String() string {
	var b strings.Builder
	mode := "live"
	if s.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(&b, "Ingest summary (%s)\n", mode)
	fmt.Fprintf(&b, "  processed:         %d\n", s.Processed)
	for _, status := range OutcomeStatuses {
		fmt.Fprintf(&b, "  %-18s %d\n", string(status)+":", s.Count(status))
	}
	fmt.Fprintf(&b, "  storage writes:    %d\n", s.Writes)
	for _, o := range s.Failed() {
		retry := ""
		if o.Retryable {
			retry = " (retryable)"
		}
		fmt.Fprintf(&b, "  ! %s: %s%s\n", o.SourceID, o.Reason, retry)
	}
	return b.String()
}
