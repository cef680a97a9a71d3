// Package migrate is the Migration Planner of §4.10: the reverse flow,
// used when the local docs directory is absent. It reads the server
// navigation table, retrieves every topic's content, reverses the
// table-path function into a destination file layout, and drives a
// branch + pull-request through the host client.
package migrate

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/canonical/discourse-gatekeeper/go/skerr"
	"github.com/canonical/discourse-gatekeeper/internal/discourse"
	"github.com/canonical/discourse-gatekeeper/internal/hostclient"
	"github.com/canonical/discourse-gatekeeper/internal/model"
	"github.com/canonical/discourse-gatekeeper/internal/navtable"
)

// Deps bundles the migration planner's external collaborators.
type Deps struct {
	Discourse     discourse.Client
	Host          hostclient.Client
	DiscourseHost string
	DocsDir       string // destination directory relative to the repo root, e.g. "docs"
	BaseBranch    string
	BranchName    string
	PRTitle       string
	PRBody        string
}

// Result is what a migration run produced, for the orchestrator to turn
// into Outputs.
type Result struct {
	PRLink   string
	PRAction model.PRAction
	Files    map[string]string
}

// Plan retrieves indexContent's navigation table, pulls every topic's
// content, and computes the destination file set: one markdown file per
// page row, one directory per group row (seeded with a ".gitkeep" when
// the group ends up with no descendant files), and a regenerated
// index.md with a "# Contents" section mirroring the table's hierarchy.
func Plan(ctx context.Context, deps Deps, indexURL, indexContent string) (map[string]string, error) {
	rows, err := navtable.Parse(indexContent)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	dest := resolveDestPaths(rows, deps.DiscourseHost)

	files := map[string]string{}
	dirsWithFiles := map[string]bool{}
	var allDirs []string

	for _, row := range rows {
		d := dest[row.Path]
		if row.IsGroup() {
			allDirs = append(allDirs, d.relPath)
			continue
		}
		if navtable.IsExternalLink(row.Navlink.Link, deps.DiscourseHost) {
			continue
		}
		content, err := deps.Discourse.RetrieveTopic(ctx, row.Navlink.Link)
		if err != nil {
			return nil, skerr.Wrapf(err, "retrieving topic for %s", row.Path)
		}
		filePath := d.relPath + ".md"
		files[filePath] = content
		markAncestorDirsNonEmpty(filePath, dirsWithFiles)
	}

	for _, dir := range allDirs {
		if !dirsWithFiles[dir] {
			files[path.Join(dir, ".gitkeep")] = ""
		}
	}

	files["index.md"] = renderIndex(rows, dest, deps.DiscourseHost)

	return files, nil
}

// Execute drives the host client: branch, commit the planned files, and
// open or update the pull request.
func Execute(ctx context.Context, deps Deps, files map[string]string) (Result, error) {
	base, err := deps.Host.CurrentCommit(ctx)
	if err != nil {
		return Result{}, skerr.Wrap(err)
	}
	if err := deps.Host.CreateBranch(ctx, deps.BranchName, base); err != nil {
		return Result{}, skerr.Wrap(err)
	}

	byteFiles := make(map[string][]byte, len(files))
	for k, v := range files {
		byteFiles[path.Join(deps.DocsDir, k)] = []byte(v)
	}
	if _, err := deps.Host.CommitAndPush(ctx, deps.BranchName, "discourse-gatekeeper: migrate docs from Discourse", byteFiles, nil); err != nil {
		return Result{}, skerr.Wrap(err)
	}

	prURL, action, err := deps.Host.OpenOrUpdatePullRequest(ctx, deps.BranchName, deps.BaseBranch, deps.PRTitle, deps.PRBody)
	if err != nil {
		return Result{}, skerr.Wrap(err)
	}
	return Result{PRLink: prURL, PRAction: action, Files: files}, nil
}

type destInfo struct {
	relPath string // without ".md", e.g. "tutorials/getting-started"
}

// resolveDestPaths reverses the table-path function of §4.2. Since a
// leaf segment may itself contain a hyphen, the join is not losslessly
// invertible in general; this resolves each row's destination directory
// from its nearest known ancestor row (by longest-prefix match among
// the rows actually present) and uses the remainder of the
// table path as the leaf segment name, which matches the forward
// function whenever source paths had no embedded hyphens of their own —
// the overwhelmingly common case — and otherwise degrades to a single
// (still valid, still unique) directory/file name instead of silently
// misplacing content.
func resolveDestPaths(rows []model.TableRow, discourseHost string) map[string]destInfo {
	byPath := map[string]model.TableRow{}
	for _, r := range rows {
		byPath[r.Path] = r
	}

	dest := map[string]destInfo{}
	var resolve func(path string) destInfo
	resolve = func(p string) destInfo {
		if d, ok := dest[p]; ok {
			return d
		}
		parent := nearestAncestor(p, byPath)
		leaf := p
		if parent != "" {
			parentDest := resolve(parent)
			leaf = strings.TrimPrefix(p, parent+"-")
			d := destInfo{relPath: path.Join(parentDest.relPath, leaf)}
			dest[p] = d
			return d
		}
		d := destInfo{relPath: leaf}
		dest[p] = d
		return d
	}
	for _, r := range rows {
		resolve(r.Path)
	}
	return dest
}

func nearestAncestor(p string, known map[string]model.TableRow) string {
	best := ""
	for candidate := range known {
		if candidate == p {
			continue
		}
		if strings.HasPrefix(p, candidate+"-") && len(candidate) > len(best) {
			best = candidate
		}
	}
	return best
}

func markAncestorDirsNonEmpty(filePath string, dirsWithFiles map[string]bool) {
	dir := path.Dir(filePath)
	for dir != "." && dir != "/" {
		dirsWithFiles[dir] = true
		dir = path.Dir(dir)
	}
}

// renderIndex regenerates a local index.md "# Contents" section from
// the server navigation table, so that the migrated tree is
// immediately reconcile-able on a subsequent forward run.
func renderIndex(rows []model.TableRow, dest map[string]destInfo, discourseHost string) string {
	var b strings.Builder
	b.WriteString("# Index\n\n# Contents\n")
	for _, row := range rows {
		indent := strings.Repeat("  ", row.Level-1)
		target := dest[row.Path].relPath
		if row.IsGroup() {
			b.WriteString(fmt.Sprintf("%s* [%s](%s)\n", indent, row.Navlink.Title, target))
			continue
		}
		if navtable.IsExternalLink(row.Navlink.Link, discourseHost) {
			b.WriteString(fmt.Sprintf("%s* [%s](%s)\n", indent, row.Navlink.Title, row.Navlink.Link))
			continue
		}
		b.WriteString(fmt.Sprintf("%s* [%s](%s.md)\n", indent, row.Navlink.Title, target))
	}
	return b.String()
}
