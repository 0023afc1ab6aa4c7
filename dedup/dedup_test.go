package dedup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/pke/core"
)

func TestResolve_Stable(t *testing.T) {
	note := &core.Note{SourceID: "abc123", SourcePath: "Work/plan.md"}

	k1 := Resolve(note)
	k2 := Resolve(&core.Note{SourceID: "abc123", SourcePath: "Work/plan.md", Body: "changed"})

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestResolve_DistinguishesFields(t *testing.T) {
	a := Resolve(&core.Note{SourceID: "ab", SourcePath: "c"})
	b := Resolve(&core.Note{SourceID: "b", SourcePath: "ac"})
	assert.NotEqual(t, a, b)
}

func TestResolve_ExternalID(t *testing.T) {
	note := &core.Note{SourceID: "abc", SourcePath: "a.md", ExternalID: " crm-42 "}
	assert.Equal(t, "ext:crm-42", Resolve(note))

	moved := &core.Note{SourceID: "xyz", SourcePath: "b.md", ExternalID: "crm-42"}
	assert.Equal(t, Resolve(note), Resolve(moved))
}

func TestContentHash(t *testing.T) {
	base := &core.Note{Title: "Plan", Body: "body", Tags: []string{"b", "a"}}

	t.Run("tag order does not matter", func(t *testing.T) {
		other := &core.Note{Title: "Plan", Body: "body", Tags: []string{"a", "b", "a"}}
		assert.Equal(t, ContentHash(base), ContentHash(other))
	})

	t.Run("body change is detected", func(t *testing.T) {
		other := &core.Note{Title: "Plan", Body: "body!", Tags: []string{"a", "b"}}
		assert.NotEqual(t, ContentHash(base), ContentHash(other))
	})

	t.Run("title change is detected", func(t *testing.T) {
		other := &core.Note{Title: "Plan 2", Body: "body", Tags: []string{"a", "b"}}
		assert.NotEqual(t, ContentHash(base), ContentHash(other))
	})

	t.Run("tag change is detected", func(t *testing.T) {
		other := &core.Note{Title: "Plan", Body: "body", Tags: []string{"a"}}
		assert.NotEqual(t, ContentHash(base), ContentHash(other))
	})

	t.Run("metadata is ignored", func(t *testing.T) {
		other := *base
		other.Metadata = map[string]string{"author": "x"}
		other.SourcePath = "moved.md"
		assert.Equal(t, ContentHash(base), ContentHash(&other))
	})

	t.Run("hex encoded", func(t *testing.T) {
		h := ContentHash(base)
		assert.Len(t, h, 64)
		assert.Equal(t, strings.ToLower(h), h)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		found    bool
		incoming string
		want     Action
	}{
		{"absent", "", false, "h1", ActionInsert},
		{"differs", "h0", true, "h1", ActionUpdate},
		{"equal", "h1", true, "h1", ActionSkipUnchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.existing, tt.found, tt.incoming))
		})
	}
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "insert", ActionInsert.String())
	assert.Equal(t, "update", ActionUpdate.String())
	assert.Equal(t, "skip-unchanged", ActionSkipUnchanged.String())
}
