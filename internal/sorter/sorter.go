// Package sorter is the Sorter of §4.5: it fuses the docs-tree reader's
// PathInfo stream with the contents-index parser's IndexContentsListItem
// stream into one ordered item stream for the planner to consume.
package sorter

import (
	"strings"

	"github.com/canonical/discourse-gatekeeper/internal/docstree"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Item is one fused, ordered entry of the sorted stream: either a local
// page/group (LocalPath set) or an external reference from the contents
// index (IsExternal set, LocalPath empty).
type Item struct {
	TablePath   string
	Level       int
	Title       string
	Hidden      bool
	IsExternal  bool
	ExternalURL string
	LocalPath   string
	IsGroup     bool
}

// Sort implements the three-step algorithm of §4.5:
//
//  1. Emit each contents-index item in order. Internal items are
//     matched to their PathInfo by table path and their navlink title
//     is overridden by the contents-index entry's title.
//  2. Any PathInfo not referenced by the contents index is appended
//     afterwards, in the docs-tree reader's own order (alphabetical by
//     table path, respecting hierarchy, since that is the order Read
//     already produces).
//  3. A final pass reorders the fused stream, stably, so that every
//     item's ancestor groups precede it — satisfying invariant 5 of §3
//     even when the contents index names a nested page without also
//     naming its containing group.
//
// An IndexContentsListItem referencing a path absent from the docs tree
// is already rejected by contentsindex.Parse (Open Question 3 of §9);
// Sort never sees that case.
func Sort(paths []model.PathInfo, contents []model.IndexContentsListItem) ([]Item, error) {
	pathByTable := map[string]model.PathInfo{}
	for _, p := range paths {
		pathByTable[p.TablePath] = p
	}

	referenced := map[string]bool{}
	var stream []Item

	for _, ci := range contents {
		if ci.IsExternal {
			stream = append(stream, Item{
				TablePath:   ci.TablePath,
				Level:       ci.Hierarchy,
				Title:       ci.ReferenceTitle,
				Hidden:      ci.Hidden,
				IsExternal:  true,
				ExternalURL: ci.ReferenceValue,
			})
			continue
		}
		pi := pathByTable[ci.TablePath]
		referenced[ci.TablePath] = true
		stream = append(stream, Item{
			TablePath: ci.TablePath,
			Level:     ci.Hierarchy,
			Title:     ci.ReferenceTitle,
			Hidden:    ci.Hidden || pi.NavlinkHidden,
			LocalPath: pi.LocalPath,
			IsGroup:   docstree.IsGroup(pi),
		})
	}

	for _, p := range paths {
		if referenced[p.TablePath] {
			continue
		}
		stream = append(stream, Item{
			TablePath: p.TablePath,
			Level:     p.Level,
			Title:     p.NavlinkTitle,
			Hidden:    p.NavlinkHidden,
			LocalPath: p.LocalPath,
			IsGroup:   docstree.IsGroup(p),
		})
	}

	return ensureAncestorsFirst(stream), nil
}

// ensureAncestorsFirst stably reorders items so that, for every item, an
// ancestor's entry (if one exists in the stream at all) appears earlier
// than its descendant's — a topological sort that otherwise preserves
// the incoming relative order. The ancestor of a table path is the
// longest other table path in the stream that prefixes it at a "-"
// boundary, rather than a split of the slug on "-", since a single path
// segment may itself legally contain a hyphen.
func ensureAncestorsFirst(items []Item) []Item {
	byPath := map[string]Item{}
	for _, it := range items {
		byPath[it.TablePath] = it
	}

	visited := map[string]bool{}
	output := make([]Item, 0, len(items))

	var emit func(path string)
	emit = func(path string) {
		if visited[path] {
			return
		}
		if parent := nearestKnownAncestor(path, byPath); parent != "" {
			emit(parent)
		}
		visited[path] = true
		output = append(output, byPath[path])
	}

	for _, it := range items {
		emit(it.TablePath)
	}
	return output
}

// nearestKnownAncestor returns whichever other table path present in
// known is the longest strict "-"-joined prefix of path, or "" if none
// qualifies.
func nearestKnownAncestor(path string, known map[string]Item) string {
	best := ""
	for candidate := range known {
		if candidate == path {
			continue
		}
		if strings.HasPrefix(path, candidate+"-") && len(candidate) > len(best) {
			best = candidate
		}
	}
	return best
}
