package navtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

func TestParse_SimpleTable(t *testing.T) {
	content := "Some intro text.\n\n# Navigation\n" +
		"| level | path | navlink |\n" +
		"| --- | --- | --- |\n" +
		"| 1 | tutorials | [Tutorials]() |\n" +
		"| 2 | tutorials-getting-started | [Getting Started](https://discourse.example.com/t/123) |\n"

	rows, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Level)
	assert.Equal(t, "tutorials", rows[0].Path)
	assert.True(t, rows[0].IsGroup())
	assert.Equal(t, 2, rows[1].Level)
	assert.False(t, rows[1].IsGroup())
	assert.Equal(t, "Getting Started", rows[1].Navlink.Title)
}

func TestParse_NoHeadingReturnsNil(t *testing.T) {
	rows, err := Parse("Just a page with no navigation section.\n")
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestParse_UsesLastHeadingOccurrence(t *testing.T) {
	content := "# Navigation\nstray text, not a table\n\n" +
		"# Navigation\n" +
		"| level | path | navlink |\n" +
		"| --- | --- | --- |\n" +
		"| 1 | a | [A](https://x/t/1) |\n"
	rows, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].Path)
}

func TestParse_HiddenMarker(t *testing.T) {
	content := "# Navigation\n" +
		"| level | path | navlink |\n" +
		"| --- | --- | --- |\n" +
		"| 1 | secret | [details=Navigation][Secret](https://x/t/2)[/details] |\n"
	rows, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Navlink.Hidden)
	assert.Equal(t, "Secret", rows[0].Navlink.Title)
}

func TestRoundTrip(t *testing.T) {
	rows := []model.TableRow{
		{Level: 1, Path: "tutorials", Navlink: model.Navlink{Title: "Tutorials"}},
		{Level: 2, Path: "tutorials-getting-started", Navlink: model.Navlink{Title: "Getting Started", Link: "https://discourse.example.com/t/123"}},
		{Level: 1, Path: "hidden-page", Navlink: model.Navlink{Title: "Hidden", Link: "https://discourse.example.com/t/456", Hidden: true}},
	}
	rendered := Render(rows)
	parsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.Equal(t, rows, parsed)

	rendered2 := Render(parsed)
	assert.Equal(t, rendered, rendered2)
}

func TestIsExternalLink(t *testing.T) {
	assert.False(t, IsExternalLink("https://discourse.example.com/t/1", "discourse.example.com"))
	assert.True(t, IsExternalLink("https://example.org/spec", "discourse.example.com"))
	assert.False(t, IsExternalLink("", "discourse.example.com"))
}
