package ghhost

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// initRepo creates a throwaway git repository with one commit, returning
// its directory and the commit SHA.
func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")

	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return dir, strings.TrimSpace(string(out))
}

func gitTag(t *testing.T, dir, tag, commit string) {
	t.Helper()
	cmd := exec.Command("git", "tag", tag, commit)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestCurrentCommitAndBranch(t *testing.T) {
	dir, sha := initRepo(t)
	c := &Client{RepoDir: dir}

	gotSHA, err := c.CurrentCommit(context.Background())
	require.NoError(t, err)
	require.Equal(t, sha, gotSHA)

	branch, err := c.CurrentBranch(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, branch)
}

func TestFileAtTag(t *testing.T) {
	dir, sha := initRepo(t)
	c := &Client{RepoDir: dir}

	gitTag(t, dir, "v1", sha)

	content, err := c.FileAtTag(context.Background(), "v1", "README.md")
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(content))

	_, err = c.FileAtTag(context.Background(), "does-not-exist", "README.md")
	require.Error(t, err)
}

func TestCreateBranchSwitchesCheckout(t *testing.T) {
	dir, sha := initRepo(t)
	c := &Client{RepoDir: dir}

	require.NoError(t, c.CreateBranch(context.Background(), "feature", sha))

	branch, err := c.CurrentBranch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "feature", branch)
}

func TestDiffSummary(t *testing.T) {
	dir, sha := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\nworld\n"), 0o644))
	cmd := exec.Command("git", "commit", "-aqm", "second")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	c := &Client{RepoDir: dir}
	head, err := c.CurrentCommit(context.Background())
	require.NoError(t, err)

	summary, err := c.DiffSummary(context.Background(), sha, head)
	require.NoError(t, err)
	require.Equal(t, 1, summary.FilesChanged)
}
