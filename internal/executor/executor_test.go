package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

type fakeDiscourse struct {
	createURL string
	createErr error
	updateErr error
	deleteErr error
	deleted   []string
}

func (d *fakeDiscourse) CreateTopic(ctx context.Context, title, content string) (string, error) {
	return d.createURL, d.createErr
}
func (d *fakeDiscourse) UpdateTopic(ctx context.Context, url, content string) error { return d.updateErr }
func (d *fakeDiscourse) RetrieveTopic(ctx context.Context, url string) (string, error) {
	return "", nil
}
func (d *fakeDiscourse) DeleteTopic(ctx context.Context, url string) error {
	d.deleted = append(d.deleted, url)
	return d.deleteErr
}
func (d *fakeDiscourse) CheckTopicPermission(ctx context.Context, url string) (bool, bool, error) {
	return true, true, nil
}
func (d *fakeDiscourse) CheckURLIsReachable(ctx context.Context, url string) (int, error) {
	return 200, nil
}

func strp(s string) *string { return &s }

func TestExecute_CreatePageSuccess(t *testing.T) {
	disc := &fakeDiscourse{createURL: "https://discourse.example.com/t/42"}
	actions := []model.Action{
		{Kind: model.ActionCreate, Target: model.TargetPage, Path: "page", Navlink: model.Navlink{Title: "Page"}, ContentChange: &model.ContentChange{Local: strp("hello\n")}},
	}
	reports := Execute(context.Background(), Deps{Discourse: disc, DeleteTopics: true}, nil, actions)
	require.Len(t, reports, 1)
	assert.Equal(t, model.ResultSuccess, reports[0].Result)
	assert.Equal(t, "https://discourse.example.com/t/42", reports[0].Location)
}

func TestExecute_DryRunSkipsMutations(t *testing.T) {
	disc := &fakeDiscourse{createURL: "https://discourse.example.com/t/1"}
	actions := []model.Action{
		{Kind: model.ActionCreate, Target: model.TargetPage, Path: "page", ContentChange: &model.ContentChange{Local: strp("x")}},
	}
	reports := Execute(context.Background(), Deps{Discourse: disc, DryRun: true}, nil, actions)
	require.Len(t, reports, 1)
	assert.Equal(t, model.ResultSkip, reports[0].Result)
	assert.Equal(t, model.DryRunReason, reports[0].Reason)
	assert.Equal(t, model.DryRunNavlinkLink, reports[0].Location)
}

func TestExecute_DeleteDisabled(t *testing.T) {
	disc := &fakeDiscourse{}
	actions := []model.Action{
		{Kind: model.ActionDelete, Target: model.TargetPage, Path: "orphan", Navlink: model.Navlink{Link: "https://discourse.example.com/t/9"}},
	}
	reports := Execute(context.Background(), Deps{Discourse: disc, DeleteTopics: false}, nil, actions)
	require.Len(t, reports, 1)
	assert.Equal(t, model.ResultSkip, reports[0].Result)
	assert.Equal(t, model.NotDeleteReason, reports[0].Reason)
}

func TestExecute_DeleteEnabledCallsDiscourse(t *testing.T) {
	disc := &fakeDiscourse{}
	actions := []model.Action{
		{Kind: model.ActionDelete, Target: model.TargetPage, Path: "orphan", Navlink: model.Navlink{Link: "https://discourse.example.com/t/9"}},
	}
	reports := Execute(context.Background(), Deps{Discourse: disc, DeleteTopics: true}, nil, actions)
	require.Len(t, reports, 1)
	assert.Equal(t, model.ResultSuccess, reports[0].Result)
	assert.Equal(t, []string{"https://discourse.example.com/t/9"}, disc.deleted)
}

func TestExecute_ConflictFails(t *testing.T) {
	disc := &fakeDiscourse{}
	actions := []model.Action{
		{Kind: model.ActionUpdate, Target: model.TargetPage, Path: "page", UpdateCase: model.UpdateCaseConflict},
	}
	reports := Execute(context.Background(), Deps{Discourse: disc}, nil, actions)
	require.Len(t, reports, 1)
	assert.Equal(t, model.ResultFail, reports[0].Result)
}

func TestExecute_FailureDoesNotAbortRemainingActions(t *testing.T) {
	disc := &fakeDiscourse{updateErr: errors.New("boom")}
	actions := []model.Action{
		{Kind: model.ActionUpdate, Target: model.TargetPage, Path: "a", UpdateCase: model.UpdateCaseDefault, ContentChange: &model.ContentChange{Local: strp("x")}},
		{Kind: model.ActionNoop, Target: model.TargetPage, Path: "b"},
	}
	reports := Execute(context.Background(), Deps{Discourse: disc}, nil, actions)
	require.Len(t, reports, 2)
	assert.Equal(t, model.ResultFail, reports[0].Result)
	assert.Equal(t, model.ResultSuccess, reports[1].Result)
}

func TestExecute_IndexCreateCachesURL(t *testing.T) {
	disc := &fakeDiscourse{createURL: "https://discourse.example.com/t/1"}
	idx := &model.Index{Name: "docs"}
	actions := []model.Action{
		{Kind: model.ActionCreate, Target: model.TargetIndex, Navlink: model.Navlink{Title: "Docs"}, ContentChange: &model.ContentChange{Local: strp("index content")}},
	}
	Execute(context.Background(), Deps{Discourse: disc}, idx, actions)
	require.NotNil(t, idx.Server)
	assert.Equal(t, "https://discourse.example.com/t/1", idx.Server.URL)
}
