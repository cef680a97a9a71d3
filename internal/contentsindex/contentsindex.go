// Package contentsindex is the Contents-Index Parser of §4.4: it parses
// the optional "# contents" section of a local index.md into a typed
// list of model.IndexContentsListItem.
//
// The list grammar is a bespoke, strict dialect (exactly 2 spaces of
// indent per nesting level) rather than CommonMark's marker-width-
// relative indentation tolerance, so this is a line-oriented scanner
// rather than a general markdown-AST walk — the same approach the
// Navigation Table Codec takes for its own strict grammar.
package contentsindex

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/canonical/discourse-gatekeeper/internal/docstree"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// SectionHeading is the exact (case-insensitive) heading this parser
// looks for.
const SectionHeading = "contents"

var (
	anyHeadingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*\S)\s*$`)
	commentRe     = regexp.MustCompile(`^<!--\s*(.*?)\s*-->\s*(.*)$`)
	listItemRe    = regexp.MustCompile(`^( *)(?:[0-9]+\.|[a-zA-Z]\.|\*|-)\s+(.*)$`)
	linkRe        = regexp.MustCompile(`^\[([^\]]*)\]\(([^)]*)\)\s*$`)
	indentPerStep = 2
)

// Parse scans content for the last "# contents" heading (the section
// ends at the next heading of any level, or EOF) and parses its bullet
// list into IndexContentsListItems. knownTablePaths is the set of table
// paths produced by the docs-tree reader for this run, used to validate
// internal references; it may be nil when validation should be skipped
// (e.g. during migration, where there is no local tree yet).
func Parse(content string, knownTablePaths map[string]bool) ([]model.IndexContentsListItem, error) {
	lines := strings.Split(content, "\n")

	sectionStart := -1
	for i, line := range lines {
		if m := anyHeadingRe.FindStringSubmatch(line); m != nil && strings.EqualFold(m[2], SectionHeading) {
			sectionStart = i
		}
	}
	if sectionStart < 0 {
		return nil, nil
	}

	sectionEnd := len(lines)
	for i := sectionStart + 1; i < len(lines); i++ {
		if anyHeadingRe.MatchString(lines[i]) {
			sectionEnd = i
			break
		}
	}

	return parseList(lines[sectionStart+1:sectionEnd], knownTablePaths)
}

type rawItem struct {
	indent int
	hidden bool
	title  string
	target string
}

func parseList(lines []string, knownTablePaths map[string]bool) ([]model.IndexContentsListItem, error) {
	var raws []rawItem
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := listItemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent := len(m[1])
		if indent%indentPerStep != 0 {
			return nil, model.NewInputError(fmt.Sprintf("malformed contents indent (must be a multiple of %d spaces): %q", indentPerStep, line), nil)
		}
		rest := m[2]
		hidden := false
		if cm := commentRe.FindStringSubmatch(rest); cm != nil {
			hidden = true
			rest = cm[2]
		}
		lm := linkRe.FindStringSubmatch(strings.TrimSpace(rest))
		if lm == nil {
			return nil, model.NewInputError(fmt.Sprintf("expected [Title](target) contents item, got %q", rest), nil)
		}
		raws = append(raws, rawItem{indent: indent, hidden: hidden, title: lm[1], target: lm[2]})
	}

	var items []model.IndexContentsListItem
	seen := map[string]bool{}
	prevHierarchy := 0
	for rank, r := range raws {
		hierarchy := r.indent/indentPerStep + 1
		if hierarchy > prevHierarchy+1 {
			return nil, model.NewInputError(fmt.Sprintf("contents item %q jumps more than one nesting level deep", r.title), nil)
		}
		prevHierarchy = hierarchy

		isExternal, err := classify(r.target)
		if err != nil {
			return nil, err
		}

		tablePath := r.target
		if !isExternal {
			tablePath = docstree.TablePath(strings.TrimPrefix(strings.TrimSuffix(r.target, "/"), "./"))
			if knownTablePaths != nil && !knownTablePaths[tablePath] {
				return nil, model.NewInputError(fmt.Sprintf("contents item references unknown path: %q", r.target), nil)
			}
		} else {
			tablePath = r.target
		}

		dupKey := tablePath
		if seen[dupKey] {
			return nil, model.NewInputError(fmt.Sprintf("duplicate contents item path: %q", r.target), nil)
		}
		seen[dupKey] = true

		items = append(items, model.IndexContentsListItem{
			Hierarchy:      hierarchy,
			ReferenceTitle: r.title,
			ReferenceValue: r.target,
			Rank:           rank,
			Hidden:         r.hidden,
			TablePath:      tablePath,
			IsExternal:     isExternal,
		})
	}
	return items, nil
}

// classify decides whether target is an external absolute URL or a
// bare internal relative path, per §4.4. A protocol-relative target
// (leading "//") is rejected as a malformed external reference missing
// a scheme.
func classify(target string) (bool, error) {
	if strings.HasPrefix(target, "//") {
		return false, model.NewInputError(fmt.Sprintf("external reference missing a URL scheme: %q", target), nil)
	}
	u, err := url.Parse(target)
	if err == nil && u.IsAbs() {
		return true, nil
	}
	return false, nil
}
