package planner

import (
	"regexp"
	"strings"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

var (
	navigationHeadingRe = regexp.MustCompile(`(?i)^#{1,6}\s+navigation\s*$`)
	contentsHeadingRe   = regexp.MustCompile(`(?i)^#{1,6}\s+contents\s*$`)
	anyHeadingLineRe    = regexp.MustCompile(`^#{1,6}\s+\S`)
)

// StripGeneratedSections removes the auto-generated "# Navigation"
// table section and the "# Contents" section from content, so the
// remaining prose can be compared across local/server without the
// parts either side regenerates on every run, per §4.6's index
// reconciler note.
func StripGeneratedSections(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	skipping := false
	for _, line := range lines {
		if navigationHeadingRe.MatchString(line) || contentsHeadingRe.MatchString(line) {
			skipping = true
			continue
		}
		if skipping && anyHeadingLineRe.MatchString(line) {
			skipping = false
		}
		if skipping {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

// PlanIndex is the Index Reconciler of §4.9: analogous to planPage, but
// two-way only (the index page has no base-content tag tracked
// against it). The Create/Noop/Update decision compares the stripped
// prose bodies of the local and server index content, since the
// "# Navigation" section is regenerated on every run and the local
// "# Contents" section is stripped before upload;
// but the upload payload carried in ContentChange.Local is always
// idx.Local.Content in full, rendered navigation table included, since
// that full content is what the executor ships to Discourse verbatim.
func PlanIndex(idx *model.Index) model.Action {
	var strippedLocal, strippedServer string
	var fullLocal string
	if idx.Local != nil {
		fullLocal = idx.Local.Content
		strippedLocal = StripGeneratedSections(idx.Local.Content)
	}
	if idx.Server != nil {
		strippedServer = StripGeneratedSections(idx.Server.Content)
	}

	title := "Index"
	if idx.Local != nil && idx.Local.Title != "" {
		title = idx.Local.Title
	}

	if idx.Server == nil {
		return model.Action{
			Kind:          model.ActionCreate,
			Target:        model.TargetIndex,
			Path:          idx.Name,
			Navlink:       model.Navlink{Title: title},
			ContentChange: &model.ContentChange{Local: &fullLocal},
		}
	}
	if strippedLocal == strippedServer {
		return model.Action{
			Kind:          model.ActionNoop,
			Target:        model.TargetIndex,
			Path:          idx.Name,
			Navlink:       model.Navlink{Title: title, Link: idx.Server.URL},
			ContentChange: &model.ContentChange{Local: &fullLocal, Server: &strippedServer},
		}
	}
	return model.Action{
		Kind:          model.ActionUpdate,
		Target:        model.TargetIndex,
		Path:          idx.Name,
		Navlink:       model.Navlink{Title: title, Link: idx.Server.URL},
		ContentChange: &model.ContentChange{Local: &fullLocal, Server: &strippedServer},
	}
}
