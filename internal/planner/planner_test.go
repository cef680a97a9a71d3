package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/discourse-gatekeeper/internal/model"
	"github.com/canonical/discourse-gatekeeper/internal/sorter"
)

type fakeHost struct {
	files map[string]string
}

func (f *fakeHost) CurrentCommit(ctx context.Context) (string, error) { return "deadbeef", nil }
func (f *fakeHost) CurrentBranch(ctx context.Context) (string, error) { return "main", nil }
func (f *fakeHost) FileAtTag(ctx context.Context, tag, path string) ([]byte, error) {
	c, ok := f.files[path]
	if !ok {
		return nil, model.NewRepositoryFileNotFoundError(path)
	}
	return []byte(c), nil
}
func (f *fakeHost) TagCommit(ctx context.Context, tag, commit string) error      { return nil }
func (f *fakeHost) TagExists(ctx context.Context, tag string) (bool, error)      { return len(f.files) > 0, nil }
func (f *fakeHost) CreateBranch(ctx context.Context, name, fromCommit string) error { return nil }
func (f *fakeHost) CommitAndPush(ctx context.Context, branch, message string, files map[string][]byte, deleted []string) (string, error) {
	return "", nil
}
func (f *fakeHost) OpenOrUpdatePullRequest(ctx context.Context, branch, base, title, body string) (string, model.PRAction, error) {
	return "", model.PRActionNone, nil
}
func (f *fakeHost) DiffSummary(ctx context.Context, from, to string) (model.DiffSummary, error) {
	return model.DiffSummary{}, nil
}

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

func writeLocalPage(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "page.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPlan_CleanAdd(t *testing.T) {
	local := writeLocalPage(t, "Getting started.\n")
	items := []sorter.Item{
		{TablePath: "tutorials", Level: 1, Title: "Tutorials", IsGroup: true},
		{TablePath: "tutorials-getting-started", Level: 2, Title: "Getting Started", LocalPath: local},
	}
	host := &fakeHost{files: map[string]string{}}
	disc := &fakeDiscourse{topics: map[string]string{}}

	actions, err := Plan(context.Background(), Deps{Host: host, Discourse: disc, BaseTag: "base", DiscourseHost: "discourse.example.com"}, items, nil)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, model.ActionCreate, actions[0].Kind)
	assert.Equal(t, model.TargetGroup, actions[0].Target)
	assert.Equal(t, model.ActionCreate, actions[1].Kind)
	assert.Equal(t, model.TargetPage, actions[1].Target)
}

func TestPlan_CleanMerge(t *testing.T) {
	local := writeLocalPage(t, "A\nB\nC2\n")
	items := []sorter.Item{
		{TablePath: "page", Level: 1, Title: "Page", LocalPath: local},
	}
	serverRows := []model.TableRow{
		{Level: 1, Path: "page", Navlink: model.Navlink{Title: "Page", Link: "https://discourse.example.com/t/1"}},
	}
	host := &fakeHost{files: map[string]string{local: "A\nB\nC\n"}}
	disc := &fakeDiscourse{topics: map[string]string{"https://discourse.example.com/t/1": "A\nB2\nC\n"}}

	actions, err := Plan(context.Background(), Deps{Host: host, Discourse: disc, BaseTag: "base", DiscourseHost: "discourse.example.com"}, items, serverRows)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionUpdate, actions[0].Kind)
	assert.Equal(t, model.UpdateCaseContentChange, actions[0].UpdateCase)
	require.NotNil(t, actions[0].ContentChange.Local)
	assert.Equal(t, "A\nB2\nC2\n", *actions[0].ContentChange.Local)
}

func TestPlan_Conflict(t *testing.T) {
	local := writeLocalPage(t, "C\n")
	items := []sorter.Item{
		{TablePath: "page", Level: 1, Title: "Page", LocalPath: local},
	}
	serverRows := []model.TableRow{
		{Level: 1, Path: "page", Navlink: model.Navlink{Title: "Page", Link: "https://discourse.example.com/t/1"}},
	}
	host := &fakeHost{files: map[string]string{local: "A\n"}}
	disc := &fakeDiscourse{topics: map[string]string{"https://discourse.example.com/t/1": "B\n"}}

	actions, err := Plan(context.Background(), Deps{Host: host, Discourse: disc, BaseTag: "base", DiscourseHost: "discourse.example.com"}, items, serverRows)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionUpdate, actions[0].Kind)
	assert.Equal(t, model.UpdateCaseConflict, actions[0].UpdateCase)
}

func TestPlan_MissingBaseNoop(t *testing.T) {
	local := writeLocalPage(t, "same\n")
	items := []sorter.Item{
		{TablePath: "page", Level: 1, Title: "Page", LocalPath: local},
	}
	serverRows := []model.TableRow{
		{Level: 1, Path: "page", Navlink: model.Navlink{Title: "Page", Link: "https://discourse.example.com/t/1"}},
	}
	host := &fakeHost{files: map[string]string{}}
	disc := &fakeDiscourse{topics: map[string]string{"https://discourse.example.com/t/1": "same\n"}}

	actions, err := Plan(context.Background(), Deps{Host: host, Discourse: disc, BaseTag: "base", DiscourseHost: "discourse.example.com"}, items, serverRows)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionNoop, actions[0].Kind, "S4: missing base with server==local must plan as a Noop, not an Update")
	assert.Equal(t, model.UpdateCaseBaseMissing, actions[0].UpdateCase)
	assert.Equal(t, model.BaseMissingReason, actions[0].Reason)
}

func TestPlan_DeleteOrphanDeepestFirst(t *testing.T) {
	serverRows := []model.TableRow{
		{Level: 1, Path: "orphan-group", Navlink: model.Navlink{Title: "Orphan Group"}},
		{Level: 2, Path: "orphan-group-child", Navlink: model.Navlink{Title: "Child", Link: "https://discourse.example.com/t/9"}},
	}
	host := &fakeHost{files: map[string]string{}}
	disc := &fakeDiscourse{topics: map[string]string{}}

	actions, err := Plan(context.Background(), Deps{Host: host, Discourse: disc, BaseTag: "base", DiscourseHost: "discourse.example.com"}, nil, serverRows)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, model.ActionDelete, actions[0].Kind)
	assert.Equal(t, "orphan-group-child", actions[0].Path)
	assert.Equal(t, model.ActionDelete, actions[1].Kind)
	assert.Equal(t, "orphan-group", actions[1].Path)
}

func TestPlan_RenameDetectedByContentEquality(t *testing.T) {
	local := writeLocalPage(t, "same content\n")
	items := []sorter.Item{
		{TablePath: "new-path", Level: 1, Title: "New Title", LocalPath: local},
	}
	serverRows := []model.TableRow{
		{Level: 1, Path: "old-path", Navlink: model.Navlink{Title: "Old Title", Link: "https://discourse.example.com/t/5"}},
	}
	host := &fakeHost{files: map[string]string{local: "same content\n"}}
	disc := &fakeDiscourse{topics: map[string]string{"https://discourse.example.com/t/5": "same content\n"}}

	actions, err := Plan(context.Background(), Deps{Host: host, Discourse: disc, BaseTag: "base", DiscourseHost: "discourse.example.com"}, items, serverRows)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionUpdate, actions[0].Kind)
	require.NotNil(t, actions[0].NavlinkRename)
	assert.Equal(t, "Old Title", actions[0].NavlinkRename.OldNavlink.Title)
	assert.Equal(t, "New Title", actions[0].NavlinkRename.NewNavlink.Title)
}
