package checker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

type fakeDiscourse struct {
	status int
	err    error
}

func (d *fakeDiscourse) CreateTopic(ctx context.Context, title, content string) (string, error) {
	return "", nil
}
func (d *fakeDiscourse) UpdateTopic(ctx context.Context, url, content string) error { return nil }
func (d *fakeDiscourse) RetrieveTopic(ctx context.Context, url string) (string, error) {
	return "", nil
}
func (d *fakeDiscourse) DeleteTopic(ctx context.Context, url string) error { return nil }
func (d *fakeDiscourse) CheckTopicPermission(ctx context.Context, url string) (bool, bool, error) {
	return true, true, nil
}
func (d *fakeDiscourse) CheckURLIsReachable(ctx context.Context, url string) (int, error) {
	return d.status, d.err
}

func strp(s string) *string { return &s }

func TestCheck_PageConflict(t *testing.T) {
	actions := []model.Action{
		{
			Kind: model.ActionUpdate, Target: model.TargetPage, Path: "page",
			UpdateCase:    model.UpdateCaseConflict,
			ContentChange: &model.ContentChange{Base: strp("A\n"), Server: strp("B\n"), Local: strp("C\n")},
		},
	}
	problems, err := Check(context.Background(), Deps{Discourse: &fakeDiscourse{status: 200}}, actions)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "page", problems[0].Path)
}

func TestCheck_ServerAheadWithOtherPendingAction(t *testing.T) {
	actions := []model.Action{
		{Kind: model.ActionUpdate, Target: model.TargetPage, Path: "ahead", UpdateCase: model.UpdateCaseServerAhead},
		{Kind: model.ActionCreate, Target: model.TargetPage, Path: "other"},
	}
	problems, err := Check(context.Background(), Deps{Discourse: &fakeDiscourse{status: 200}}, actions)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "ahead", problems[0].Path)
}

func TestCheck_ServerAheadAloneIsNotAProblem(t *testing.T) {
	actions := []model.Action{
		{Kind: model.ActionUpdate, Target: model.TargetPage, Path: "ahead", UpdateCase: model.UpdateCaseServerAhead},
	}
	problems, err := Check(context.Background(), Deps{Discourse: &fakeDiscourse{status: 200}}, actions)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestCheck_ServerAheadSuppressedByIgnoreFlag(t *testing.T) {
	actions := []model.Action{
		{Kind: model.ActionUpdate, Target: model.TargetPage, Path: "ahead", UpdateCase: model.UpdateCaseServerAhead},
		{Kind: model.ActionCreate, Target: model.TargetPage, Path: "other"},
	}
	problems, err := Check(context.Background(), Deps{Discourse: &fakeDiscourse{status: 200}, IgnoreServerAhead: true}, actions)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestCheck_UnreachableExternalRef(t *testing.T) {
	actions := []model.Action{
		{Kind: model.ActionCreate, Target: model.TargetExternalRef, Path: "spec", ExternalURL: "https://example.com/404"},
	}
	problems, err := Check(context.Background(), Deps{Discourse: &fakeDiscourse{status: 404}}, actions)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "spec", problems[0].Path)
}

func TestCheck_ReachableExternalRefNoProblem(t *testing.T) {
	actions := []model.Action{
		{Kind: model.ActionCreate, Target: model.TargetExternalRef, Path: "spec", ExternalURL: "https://example.com/ok"},
	}
	problems, err := Check(context.Background(), Deps{Discourse: &fakeDiscourse{status: 200}}, actions)
	require.NoError(t, err)
	assert.Empty(t, problems)
}
