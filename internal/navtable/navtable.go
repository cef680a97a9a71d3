// Package navtable is the Navigation Table Codec of §4.3: it parses a
// Discourse index page into model.TableRow values and renders them back
// to the exact grammar of §6, bit-stable for round-trip.
package navtable

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Heading is the exact (case-insensitive) section title the codec looks
// for; anything else on the page is left untouched.
const Heading = "Navigation"

var (
	headingRe   = regexp.MustCompile(`(?i)^#{1,6}\s*navigation\s*$`)
	headerRowRe = regexp.MustCompile(`(?i)^\|\s*level\s*\|\s*path\s*\|\s*navlink\s*\|\s*$`)
	separatorRe = regexp.MustCompile(`^\|\s*-+\s*\|\s*-+\s*\|\s*-+\s*\|\s*$`)
	rowRe       = regexp.MustCompile(`^\|\s*(\d+)\s*\|\s*([a-z0-9-]+)\s*\|\s*(.*?)\s*\|\s*$`)
	linkRe      = regexp.MustCompile(`^\[([^\]]*)\]\(([^)]*)\)$`)
	detailsRe   = regexp.MustCompile(`(?is)^\[details=[^\]]*\]\s*(.*?)\s*\[/details\]$`)
)

// detailsTag is the exact wrapper this codec uses to mark a navlink
// hidden, since the Discourse "details" BBCode is the host's own
// collapsible-section syntax and round-trips through its renderer
// untouched.
const detailsTag = "Navigation"

// Parse locates the last "# Navigation" heading in content and parses
// the 3-column pipe table immediately following it into TableRows. It
// is not an error for the heading to be absent: Parse then returns a
// nil slice, since a never-yet-reconciled index page has no navigation
// table.
func Parse(content string) ([]model.TableRow, error) {
	lines := strings.Split(content, "\n")

	headingIdx := -1
	for i, line := range lines {
		if headingRe.MatchString(strings.TrimSpace(line)) {
			headingIdx = i
		}
	}
	if headingIdx < 0 {
		return nil, nil
	}

	i := headingIdx + 1
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || !headerRowRe.MatchString(strings.TrimSpace(lines[i])) {
		return nil, model.NewNavigationTableParseError("expected a 'level | path | navlink' header row after the Navigation heading", nil)
	}
	i++
	if i >= len(lines) || !separatorRe.MatchString(strings.TrimSpace(lines[i])) {
		return nil, model.NewNavigationTableParseError("expected a 3-column separator row after the navigation table header", nil)
	}
	i++

	var rows []model.TableRow
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			break
		}
		m := rowRe.FindStringSubmatch(line)
		if m == nil {
			return nil, model.NewNavigationTableParseError(fmt.Sprintf("malformed navigation row: %q", line), nil)
		}
		level, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, model.NewNavigationTableParseError(fmt.Sprintf("non-integer level in row: %q", line), err)
		}
		navlink, err := parseNavlinkCell(m[3])
		if err != nil {
			return nil, model.NewNavigationTableParseError(fmt.Sprintf("malformed navlink cell in row: %q", line), err)
		}
		rows = append(rows, model.TableRow{
			Level:   level,
			Path:    m[2],
			Navlink: navlink,
		})
		i++
	}
	return rows, nil
}

func parseNavlinkCell(cell string) (model.Navlink, error) {
	hidden := false
	inner := cell
	if m := detailsRe.FindStringSubmatch(cell); m != nil {
		hidden = true
		inner = m[1]
	}
	m := linkRe.FindStringSubmatch(inner)
	if m == nil {
		return model.Navlink{}, model.NewNavigationTableParseError(fmt.Sprintf("expected [title](link) navlink cell, got %q", inner), nil)
	}
	return model.Navlink{Title: m[1], Link: m[2], Hidden: hidden}, nil
}

// Render is the exact inverse of Parse: given rows, it produces the
// "# Navigation" heading plus the 3-column table, normalized whitespace
// and a single trailing newline.
func Render(rows []model.TableRow) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(Heading)
	b.WriteString("\n")
	b.WriteString("| level | path | navlink |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, row := range rows {
		b.WriteString(renderRow(row))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRow(row model.TableRow) string {
	cell := fmt.Sprintf("[%s](%s)", row.Navlink.Title, row.Navlink.Link)
	if row.Navlink.Hidden {
		cell = fmt.Sprintf("[details=%s]%s[/details]", detailsTag, cell)
	}
	return fmt.Sprintf("| %d | %s | %s |", row.Level, row.Path, cell)
}

// IsExternalLink reports whether link is an external reference rather
// than an internal Discourse topic link, per §4.3: it does not begin
// with the Discourse host prefix.
func IsExternalLink(link, discourseHost string) bool {
	if link == "" {
		return false
	}
	host := strings.TrimSuffix(discourseHost, "/")
	return !strings.HasPrefix(link, "https://"+host) && !strings.HasPrefix(link, "http://"+host)
}
