package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestMerge_IdentitySameInput(t *testing.T) {
	x := "A\nB\nC\n"
	out, err := Merge(ptr(x), x, x)
	require.NoError(t, err)
	assert.Equal(t, x, out)
}

func TestMerge_OursEqualsBaseTakesTheirs(t *testing.T) {
	base := "A\nB\nC\n"
	theirs := "A\nB2\nC\n"
	out, err := Merge(ptr(base), theirs, base)
	require.NoError(t, err)
	assert.Equal(t, theirs, out)
}

func TestMerge_TheirsEqualsBaseTakesOurs(t *testing.T) {
	base := "A\nB\nC\n"
	ours := "A\nB\nC2\n"
	out, err := Merge(ptr(base), base, ours)
	require.NoError(t, err)
	assert.Equal(t, ours, out)
}

// S2 — disjoint line hunks merge cleanly.
func TestMerge_DisjointHunksCleanMerge(t *testing.T) {
	base := "A\nB\nC\n"
	theirs := "A\nB2\nC\n"
	ours := "A\nB\nC2\n"
	out, err := Merge(ptr(base), theirs, ours)
	require.NoError(t, err)
	assert.Equal(t, "A\nB2\nC2\n", out)
	assert.Empty(t, Conflicts(ptr(base), theirs, ours))
}

// S3 — overlapping hunks conflict.
func TestMerge_OverlappingHunksConflict(t *testing.T) {
	base := "A\n"
	theirs := "B\n"
	ours := "C\n"
	_, err := Merge(ptr(base), theirs, ours)
	require.Error(t, err)
	desc := Conflicts(ptr(base), theirs, ours)
	assert.Contains(t, desc, "ours")
	assert.Contains(t, desc, "theirs")
}

// S4 — base missing, theirs == local is a clean no-op.
func TestMerge_BaseMissingSameContent(t *testing.T) {
	out, err := Merge(nil, "same\n", "same\n")
	require.NoError(t, err)
	assert.Equal(t, "same\n", out)
	assert.Empty(t, Conflicts(nil, "same\n", "same\n"))
}

func TestMerge_BaseMissingDifferentContent(t *testing.T) {
	_, err := Merge(nil, "theirs\n", "ours\n")
	require.Error(t, err)
	assert.Contains(t, Conflicts(nil, "theirs\n", "ours\n"), "BASE_MISSING")
}

func TestDiff_NoChanges(t *testing.T) {
	assert.Equal(t, "no changes", Diff("same", "same"))
}

func TestDiff_ShowsAddedAndRemovedLines(t *testing.T) {
	out := Diff("A\nB\n", "A\nC\n")
	assert.Contains(t, out, "-B")
	assert.Contains(t, out, "+C")
	assert.Contains(t, out, " A")
}
