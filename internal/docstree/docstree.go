// Package docstree is the Docs-Tree Reader of §4.2: it walks the local
// docs directory into an ordered sequence of model.PathInfo, computing
// table paths, levels, and titles.
package docstree

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/canonical/discourse-gatekeeper/go/skerr"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

var nonPermittedChars = regexp.MustCompile(`[^a-z0-9-]+`)

// TablePath computes the stable slug join key described in §4.2: the
// relative-to-docs-root path with its ".md" suffix stripped, segments
// joined with "-", lower-cased, with any character outside [a-z0-9-]
// replaced by the same "-" delimiter.
func TablePath(relPath string) string {
	rel := filepath.ToSlash(relPath)
	rel = strings.TrimSuffix(rel, ".md")
	rel = strings.ToLower(rel)
	segments := strings.Split(rel, "/")
	joined := strings.Join(segments, "-")
	joined = nonPermittedChars.ReplaceAllString(joined, "-")
	joined = strings.Trim(joined, "-")
	return joined
}

// walker tracks level and parent-table-path structurally while
// recursing, since a single directory or file name may legally contain
// "-" and so the joined table path cannot be un-split reliably.
type walker struct {
	root    string
	entries []model.PathInfo
	// parents[i] is the table path of the parent directory of
	// entries[i], tracked structurally during the walk rather than
	// re-derived from the joined table path string, since a leaf
	// segment may itself legally contain "-".
	parents []string
}

// Read walks root (the docs directory) and returns one model.PathInfo
// per directory and *.md file found, in a deterministic (lexicographic)
// order. The root itself is not included; its direct children are
// level 1, per invariant 1 of §3.
func Read(root string) ([]model.PathInfo, error) {
	w := &walker{root: root}
	if err := w.walk(root, "", 0); err != nil {
		return nil, skerr.Wrap(err)
	}
	assignRanks(w.entries, w.parents)
	return w.entries, nil
}

func (w *walker) walk(dir, parentTablePath string, level int) error {
	infos, err := os.ReadDir(dir)
	if err != nil {
		return skerr.Wrapf(err, "reading docs directory %s", dir)
	}
	// Sort by table path so that a directory's children are processed in
	// a stable order regardless of the filesystem's own directory-entry
	// order.
	sort.Slice(infos, func(i, j int) bool { return TablePath(infos[i].Name()) < TablePath(infos[j].Name()) })

	for _, info := range infos {
		name := info.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		relPath, err := filepath.Rel(w.root, full)
		if err != nil {
			return skerr.Wrap(err)
		}
		tablePath := TablePath(relPath)

		if info.IsDir() {
			title, titleErr := titleFromName(name)
			if titleErr != nil {
				return skerr.Wrap(titleErr)
			}
			w.entries = append(w.entries, model.PathInfo{
				LocalPath:    full,
				Level:        level + 1,
				TablePath:    tablePath,
				NavlinkTitle: title,
			})
			w.parents = append(w.parents, parentTablePath)
			if err := w.walk(full, tablePath, level+1); err != nil {
				return err
			}
			continue
		}

		if !strings.HasSuffix(name, ".md") {
			continue
		}
		if name == "index.md" && level == 0 {
			// The top-level index is handled by the index reconciler,
			// not emitted as an ordinary PathInfo.
			continue
		}
		title, err := titleFromFile(full)
		if err != nil {
			return skerr.Wrap(err)
		}
		w.entries = append(w.entries, model.PathInfo{
			LocalPath:    full,
			Level:        level + 1,
			TablePath:    tablePath,
			NavlinkTitle: title,
		})
		w.parents = append(w.parents, parentTablePath)
	}
	return nil
}

var headingRe = regexp.MustCompile(`^#\s+(.*\S)\s*$`)

// titleFromFile implements the title priority of §4.2: first `# ...`
// heading, else first non-empty line, else a title derived from the
// filename.
func titleFromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", skerr.Wrap(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var firstNonEmpty string
	for scanner.Scan() {
		line := scanner.Text()
		if m := headingRe.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
		if firstNonEmpty == "" && strings.TrimSpace(line) != "" {
			firstNonEmpty = strings.TrimSpace(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", skerr.Wrap(err)
	}
	if firstNonEmpty != "" {
		return firstNonEmpty, nil
	}
	return titleFromName(filepath.Base(path))
}

// titleFromName implements the filename-derived title fallback:
// "-"/"_" replaced by spaces, then word-casing applied.
func titleFromName(name string) (string, error) {
	name = strings.TrimSuffix(name, ".md")
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " "), nil
}

// IsGroup reports whether a PathInfo describes a directory (a group,
// in navigation-table terms) rather than a markdown page: every page
// entry's LocalPath is suffixed ".md" by construction, every directory
// entry's is not.
func IsGroup(p model.PathInfo) bool {
	return !strings.HasSuffix(p.LocalPath, ".md")
}

// assignRanks computes the alphabetical_rank of each entry: the
// lexicographic rank of its table path among siblings at the same
// level. parents[i] is the structurally-tracked parent table path of
// entries[i] (see walker.parents); a string split of the table path
// itself cannot recover this reliably since a single segment may
// contain "-".
func assignRanks(entries []model.PathInfo, parents []string) {
	byParent := map[string][]int{}
	for i := range entries {
		byParent[parents[i]] = append(byParent[parents[i]], i)
	}
	for _, idxs := range byParent {
		sort.SliceStable(idxs, func(a, b int) bool {
			return entries[idxs[a]].TablePath < entries[idxs[b]].TablePath
		})
		for rank, idx := range idxs {
			entries[idx].AlphabeticalRank = rank
		}
	}
}
