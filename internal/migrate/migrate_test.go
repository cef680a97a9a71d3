package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

type fakeDiscourse struct {
	topics map[string]string
}

func (d *fakeDiscourse) CreateTopic(ctx context.Context, title, content string) (string, error) {
	return "", nil
}
func (d *fakeDiscourse) UpdateTopic(ctx context.Context, url, content string) error { return nil }
func (d *fakeDiscourse) RetrieveTopic(ctx context.Context, url string) (string, error) {
	return d.topics[url], nil
}
func (d *fakeDiscourse) DeleteTopic(ctx context.Context, url string) error { return nil }
func (d *fakeDiscourse) CheckTopicPermission(ctx context.Context, url string) (bool, bool, error) {
	return true, true, nil
}
func (d *fakeDiscourse) CheckURLIsReachable(ctx context.Context, url string) (int, error) {
	return 200, nil
}

func TestPlan_BuildsFilesAndGitkeep(t *testing.T) {
	indexContent := "# Navigation\n" +
		"| level | path | navlink |\n" +
		"| --- | --- | --- |\n" +
		"| 1 | tutorials | [Tutorials]() |\n" +
		"| 2 | tutorials-getting-started | [Getting Started](https://discourse.example.com/t/1) |\n" +
		"| 1 | empty-group | [Empty Group]() |\n"

	disc := &fakeDiscourse{topics: map[string]string{
		"https://discourse.example.com/t/1": "# Getting Started\nHello.\n",
	}}

	files, err := Plan(context.Background(), Deps{Discourse: disc, DiscourseHost: "discourse.example.com"}, "", indexContent)
	require.NoError(t, err)

	assert.Contains(t, files, "tutorials/getting-started.md")
	assert.Equal(t, "# Getting Started\nHello.\n", files["tutorials/getting-started.md"])
	assert.Contains(t, files, "empty-group/.gitkeep")
	assert.Contains(t, files, "index.md")
}

func TestPlan_SkipsExternalReferenceFiles(t *testing.T) {
	indexContent := "# Navigation\n" +
		"| level | path | navlink |\n" +
		"| --- | --- | --- |\n" +
		"| 1 | spec | [Spec](https://example.com/spec) |\n"
	disc := &fakeDiscourse{topics: map[string]string{}}

	files, err := Plan(context.Background(), Deps{Discourse: disc, DiscourseHost: "discourse.example.com"}, "", indexContent)
	require.NoError(t, err)
	assert.NotContains(t, files, "spec.md")
	for name := range files {
		assert.NotContains(t, name, "example.com")
	}
}

func TestResolveDestPaths_NestedHierarchy(t *testing.T) {
	rows := []model.TableRow{
		{Level: 1, Path: "tutorials", Navlink: model.Navlink{Title: "Tutorials"}},
		{Level: 2, Path: "tutorials-getting-started", Navlink: model.Navlink{Title: "Getting Started", Link: "https://discourse.example.com/t/1"}},
	}
	dest := resolveDestPaths(rows, "discourse.example.com")
	assert.Equal(t, "tutorials", dest["tutorials"].relPath)
	assert.Equal(t, "tutorials/getting-started", dest["tutorials-getting-started"].relPath)
}
