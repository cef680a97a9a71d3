// Package report renders an executed action stream into a
// human-readable Markdown summary. This is ambient glue outside the
// core: the spec names "static markdown rendering of results" as out
// of scope for the reconciliation engine itself, but a production CLI
// front-end still needs something to print for --dry-run previews and
// end-of-run summaries.
package report

import (
	"fmt"
	"strings"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Render turns a list of ActionReports into a Markdown table, grouped
// by result so failures are easy to spot first.
func Render(reports []model.ActionReport) string {
	var b strings.Builder
	b.WriteString("# Reconciliation Report\n\n")

	counts := map[model.ActionResult]int{}
	for _, r := range reports {
		counts[r.Result]++
	}
	fmt.Fprintf(&b, "%d succeeded, %d skipped, %d failed\n\n", counts[model.ResultSuccess], counts[model.ResultSkip], counts[model.ResultFail])

	b.WriteString("| result | kind | target | path | location | reason |\n")
	b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
	for _, r := range order(reports) {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			r.Result, r.Action.Kind, r.Action.Target, r.Action.Path, r.Location, r.Reason)
	}
	return b.String()
}

// order lists FAIL first, then SKIP, then SUCCESS, preserving relative
// order within each bucket, so a human skimming the report sees
// problems before routine no-ops.
func order(reports []model.ActionReport) []model.ActionReport {
	var fail, skip, success []model.ActionReport
	for _, r := range reports {
		switch r.Result {
		case model.ResultFail:
			fail = append(fail, r)
		case model.ResultSkip:
			skip = append(skip, r)
		default:
			success = append(success, r)
		}
	}
	out := make([]model.ActionReport, 0, len(reports))
	out = append(out, fail...)
	out = append(out, skip...)
	out = append(out, success...)
	return out
}

// RenderProblems turns checker Problems into a short Markdown list.
func RenderProblems(problems []model.Problem) string {
	if len(problems) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Problems\n\n")
	for _, p := range problems {
		fmt.Fprintf(&b, "- **%s**: %s\n", p.Path, p.Description)
	}
	return b.String()
}
