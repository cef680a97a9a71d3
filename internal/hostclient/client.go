// Package hostclient declares the boundary the reconciliation core and
// migration planner call through to talk to the Git host (branches,
// commits, tags, pull requests), per §6. internal/hostclient/ghhost
// provides the one real implementation, wired in at cmd/gatekeeper/main.go.
package hostclient

import (
	"context"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Client is the host surface the orchestrator, planner, and migration
// planner consume.
type Client interface {
	CurrentCommit(ctx context.Context) (string, error)
	CurrentBranch(ctx context.Context) (string, error)
	FileAtTag(ctx context.Context, tag, path string) (content []byte, err error)
	TagCommit(ctx context.Context, tag, commit string) error
	TagExists(ctx context.Context, tag string) (bool, error)
	CreateBranch(ctx context.Context, name, fromCommit string) error
	CommitAndPush(ctx context.Context, branch, message string, files map[string][]byte, deletedFiles []string) (commit string, err error)
	OpenOrUpdatePullRequest(ctx context.Context, branch, base, title, body string) (prURL string, action model.PRAction, err error)
	DiffSummary(ctx context.Context, fromCommit, toCommit string) (model.DiffSummary, error)
}
