// Package merge is the Content Merger of §4.1: a pure function library
// over strings implementing a line-based three-way merge, conflict
// detection, and human-readable diffs. Line hunks are computed with
// github.com/sergi/go-diff's diffmatchpatch port of Myers' algorithm.
package merge

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/canonical/discourse-gatekeeper/go/skerr"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// edit is a single non-equal hunk relative to base: the base line range
// [Start, End) it replaces, and the replacement lines.
type edit struct {
	start, end int
	newLines   []string
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	// A trailing newline produces one empty trailing element; drop it
	// so line counts match the number of terminated lines.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// computeEdits returns the ordered, non-overlapping list of base-line
// hunks changed between base and other.
func computeEdits(base, other string) []edit {
	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(base, other)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var edits []edit
	baseLine := 0
	i := 0
	for i < len(diffs) {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			baseLine += len(splitLines(d.Text))
			i++
		case diffmatchpatch.DiffDelete:
			delLines := splitLines(d.Text)
			start := baseLine
			end := baseLine + len(delLines)
			var newLines []string
			j := i + 1
			// A delete immediately followed by an insert is a
			// replacement of the same hunk.
			if j < len(diffs) && diffs[j].Type == diffmatchpatch.DiffInsert {
				newLines = splitLines(diffs[j].Text)
				j++
			}
			edits = append(edits, edit{start: start, end: end, newLines: newLines})
			baseLine = end
			i = j
		case diffmatchpatch.DiffInsert:
			// A pure insertion not preceded by a delete: zero-width
			// hunk at the current base position.
			edits = append(edits, edit{start: baseLine, end: baseLine, newLines: splitLines(d.Text)})
			i++
		}
	}
	return edits
}

// Conflict describes one overlapping hunk detected between ours and
// theirs relative to base.
type Conflict struct {
	BaseStartLine int
	BaseEndLine   int
	OursLines     []string
	TheirsLines   []string
}

func overlaps(a, b edit) bool {
	if a.start == a.end || b.start == b.end {
		// Zero-width (pure insert) hunks only overlap an identical
		// insertion point with differing content; treat same-position
		// differing inserts as a conflict, same-position identical
		// inserts as a clean merge, and otherwise as non-overlapping.
		return a.start == b.start && a.end == b.end
	}
	return a.start < b.end && b.start < a.end
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// threeWay walks the base line-by-line alongside the ours and theirs
// edit lists, producing merged output lines and any conflicts found.
func threeWay(base string, oursEdits, theirsEdits []edit) ([]string, []Conflict) {
	baseLines := splitLines(base)
	var out []string
	var conflicts []Conflict

	oi, ti := 0, 0
	cur := 0
	for cur <= len(baseLines) {
		var oe, te *edit
		if oi < len(oursEdits) {
			oe = &oursEdits[oi]
		}
		if ti < len(theirsEdits) {
			te = &theirsEdits[ti]
		}

		// Find the next edit (from either side) starting at or after
		// cur; if none, copy the remaining base lines verbatim and
		// stop.
		nextOurs := oe != nil && oe.start <= cur
		nextTheirs := te != nil && te.start <= cur
		if !nextOurs && !nextTheirs {
			nextStart := len(baseLines)
			if oe != nil && oe.start < nextStart {
				nextStart = oe.start
			}
			if te != nil && te.start < nextStart {
				nextStart = te.start
			}
			out = append(out, baseLines[cur:nextStart]...)
			if nextStart == len(baseLines) {
				break
			}
			cur = nextStart
			continue
		}

		switch {
		case nextOurs && nextTheirs && overlaps(*oe, *te):
			if sameLines(oe.newLines, te.newLines) {
				out = append(out, oe.newLines...)
			} else {
				conflicts = append(conflicts, Conflict{
					BaseStartLine: min(oe.start, te.start),
					BaseEndLine:   max(oe.end, te.end),
					OursLines:     oe.newLines,
					TheirsLines:   te.newLines,
				})
				out = append(out, oe.newLines...)
			}
			cur = max(oe.end, te.end)
			oi++
			ti++
		case nextOurs:
			out = append(out, oe.newLines...)
			cur = oe.end
			oi++
		case nextTheirs:
			out = append(out, te.newLines...)
			cur = te.end
			ti++
		default:
			// Unreachable: one of nextOurs/nextTheirs must be true here.
			break
		}
		if cur > len(baseLines) {
			cur = len(baseLines)
		}
	}
	return out, conflicts
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Merge performs the standard line-based three-way merge of §4.1.
// Missing base (base == nil) is treated as equal to ours when
// theirs == ours; otherwise it surfaces as a BASE_MISSING ContentError.
func Merge(base *string, theirs, ours string) (string, error) {
	if base == nil {
		if theirs == ours {
			return ours, nil
		}
		return "", wrapErr(model.NewContentError("BASE_MISSING: cannot merge without a base-content tag and theirs != ours", nil))
	}
	if theirs == *base {
		return ours, nil
	}
	if ours == *base {
		return theirs, nil
	}
	if theirs == ours {
		return ours, nil
	}

	oursEdits := computeEdits(*base, ours)
	theirsEdits := computeEdits(*base, theirs)
	merged, conflicts := threeWay(*base, oursEdits, theirsEdits)
	if len(conflicts) > 0 {
		return "", wrapErr(model.NewContentError(describeConflicts(conflicts), nil))
	}
	out := strings.Join(merged, "\n")
	if strings.HasSuffix(*base, "\n") || strings.HasSuffix(ours, "\n") || strings.HasSuffix(theirs, "\n") {
		out += "\n"
	}
	return out, nil
}

func describeConflicts(conflicts []Conflict) string {
	var b strings.Builder
	for i, c := range conflicts {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "conflict at base lines %d-%d: ours=%q theirs=%q",
			c.BaseStartLine+1, c.BaseEndLine, strings.Join(c.OursLines, "\\n"), strings.Join(c.TheirsLines, "\\n"))
	}
	return b.String()
}

// Conflicts reports the same overlapping-hunk analysis as Merge but
// never fails: it returns a human description, or "" when there is no
// conflict.
func Conflicts(base *string, theirs, ours string) string {
	if base == nil {
		if theirs == ours {
			return ""
		}
		return "BASE_MISSING: theirs and ours differ with no base-content tag"
	}
	if theirs == *base || ours == *base || theirs == ours {
		return ""
	}
	oursEdits := computeEdits(*base, ours)
	theirsEdits := computeEdits(*base, theirs)
	_, conflicts := threeWay(*base, oursEdits, theirsEdits)
	if len(conflicts) == 0 {
		return ""
	}
	return describeConflicts(conflicts)
}

// Diff renders a short human description of the difference between a
// and b, line-hunk oriented like `diff -u` but without the unified-diff
// header ceremony.
func Diff(a, b string) string {
	if a == b {
		return "no changes"
	}
	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b2 strings.Builder
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				fmt.Fprintf(&b2, "-%s\n", line)
			case diffmatchpatch.DiffInsert:
				fmt.Fprintf(&b2, "+%s\n", line)
			case diffmatchpatch.DiffEqual:
				fmt.Fprintf(&b2, " %s\n", line)
			}
		}
	}
	return strings.TrimRight(b2.String(), "\n")
}

// wrapErr is a tiny indirection so every exported error return in this
// package picks up call-site context, matching the corpus's skerr
// convention.
func wrapErr(err error) error {
	return skerr.Wrap(err)
}
