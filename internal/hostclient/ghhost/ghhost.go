// Package ghhost is the one real implementation of hostclient.Client
// (§6): a go-github-backed GitHub client for pull requests, paired with
// os/exec git shell-outs for the local working tree and remote
// operations (branch, commit, push, tag, diff).
package ghhost

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/go-github/v29/github"
	"golang.org/x/oauth2"

	"github.com/canonical/discourse-gatekeeper/go/skerr"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Client implements hostclient.Client against a real GitHub repository
// and a local scratch clone.
type Client struct {
	GitHub *github.Client
	Owner  string
	Repo   string
	// RepoDir is the local checkout's working directory, where git
	// shell-outs run.
	RepoDir string
}

// New builds a Client authenticated with token, operating against
// owner/repo checked out at repoDir.
func New(ctx context.Context, token, owner, repo, repoDir string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &Client{GitHub: github.NewClient(tc), Owner: owner, Repo: repo, RepoDir: repoDir}
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.RepoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", skerr.Wrap(model.NewRepositoryClientError(fmt.Sprintf("git %s: %s", strings.Join(args, " "), stderr.String()), err))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentCommit returns the checkout's current HEAD SHA.
func (c *Client) CurrentCommit(ctx context.Context) (string, error) {
	return c.git(ctx, "rev-parse", "HEAD")
}

// CurrentBranch returns the checkout's current branch name.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// FileAtTag reads path as it existed at tag.
func (c *Client) FileAtTag(ctx context.Context, tag, path string) ([]byte, error) {
	exists, err := c.TagExists(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.NewRepositoryTagNotFoundError(tag)
	}
	// Run git directly rather than through c.git, which trims the output:
	// the file's bytes, trailing newline included, are returned as stored.
	cmd := exec.CommandContext(ctx, "git", "show", fmt.Sprintf("%s:%s", tag, path))
	cmd.Dir = c.RepoDir
	out, err := cmd.Output()
	if err != nil {
		return nil, model.NewRepositoryFileNotFoundError(path)
	}
	return out, nil
}

// TagExists reports whether tag exists in the local checkout.
func (c *Client) TagExists(ctx context.Context, tag string) (bool, error) {
	_, err := c.git(ctx, "rev-parse", "--verify", "--quiet", tag)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// TagCommit moves (or creates) tag to point at commit, locally and on
// the remote.
func (c *Client) TagCommit(ctx context.Context, tag, commit string) error {
	if _, err := c.git(ctx, "tag", "-f", tag, commit); err != nil {
		return err
	}
	_, err := c.git(ctx, "push", "--force", "origin", tag)
	return err
}

// CreateBranch creates name rooted at fromCommit and switches the
// checkout to it, restoring the original branch is the caller's
// responsibility (scoped operation, per §9's design note).
func (c *Client) CreateBranch(ctx context.Context, name, fromCommit string) error {
	_, err := c.git(ctx, "checkout", "-B", name, fromCommit)
	return err
}

// CommitAndPush writes files, removes deletedFiles, commits, and pushes
// branch, returning the new commit SHA.
func (c *Client) CommitAndPush(ctx context.Context, branch, message string, files map[string][]byte, deletedFiles []string) (string, error) {
	for path, content := range files {
		full := filepath.Join(c.RepoDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", skerr.Wrap(err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return "", skerr.Wrap(err)
		}
		if _, err := c.git(ctx, "add", path); err != nil {
			return "", err
		}
	}
	for _, path := range deletedFiles {
		if _, err := c.git(ctx, "rm", "-f", path); err != nil {
			return "", err
		}
	}
	if _, err := c.git(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	if _, err := c.git(ctx, "push", "--force", "origin", branch); err != nil {
		return "", err
	}
	return c.git(ctx, "rev-parse", "HEAD")
}

// OpenOrUpdatePullRequest opens a PR for branch against base, or
// updates the existing one if already open.
func (c *Client) OpenOrUpdatePullRequest(ctx context.Context, branch, base, title, body string) (string, model.PRAction, error) {
	existing, _, err := c.GitHub.PullRequests.List(ctx, c.Owner, c.Repo, &github.PullRequestListOptions{
		Head:  c.Owner + ":" + branch,
		Base:  base,
		State: "open",
	})
	if err != nil {
		return "", model.PRActionNone, skerr.Wrap(model.NewRepositoryClientError("listing pull requests", err))
	}
	if len(existing) > 0 {
		pr := existing[0]
		pr.Title = &title
		pr.Body = &body
		updated, _, err := c.GitHub.PullRequests.Edit(ctx, c.Owner, c.Repo, pr.GetNumber(), pr)
		if err != nil {
			return "", model.PRActionNone, skerr.Wrap(model.NewRepositoryClientError("updating pull request", err))
		}
		return updated.GetHTMLURL(), model.PRActionUpdated, nil
	}

	pr, _, err := c.GitHub.PullRequests.Create(ctx, c.Owner, c.Repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &branch,
		Base:  &base,
	})
	if err != nil {
		return "", model.PRActionNone, skerr.Wrap(model.NewRepositoryClientError("creating pull request", err))
	}
	return pr.GetHTMLURL(), model.PRActionOpened, nil
}

// DiffSummary reports the file/line-change summary between two
// commits, used while opening a migration PR.
func (c *Client) DiffSummary(ctx context.Context, fromCommit, toCommit string) (model.DiffSummary, error) {
	out, err := c.git(ctx, "diff", "--shortstat", fromCommit, toCommit)
	if err != nil {
		return model.DiffSummary{}, err
	}
	return parseShortstat(out), nil
}

func parseShortstat(s string) model.DiffSummary {
	summary := model.DiffSummary{Summary: s}
	fields := strings.Split(s, ",")
	for _, f := range fields {
		f = strings.TrimSpace(f)
		parts := strings.Fields(f)
		if len(parts) < 2 {
			continue
		}
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(f, "file"):
			summary.FilesChanged = n
		case strings.Contains(f, "insertion"):
			summary.Insertions = n
		case strings.Contains(f, "deletion"):
			summary.Deletions = n
		}
	}
	return summary
}
