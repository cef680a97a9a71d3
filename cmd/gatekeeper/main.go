// Command gatekeeper reconciles a charm's local docs/ tree against its
// Discourse documentation, or migrates an existing Discourse tree back
// to local files when no docs/ directory exists yet.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	cli "github.com/urfave/cli/v2"

	"github.com/canonical/discourse-gatekeeper/go/glog"
	"github.com/canonical/discourse-gatekeeper/internal/config"
	"github.com/canonical/discourse-gatekeeper/internal/discourseclient"
	"github.com/canonical/discourse-gatekeeper/internal/hostclient/ghhost"
	"github.com/canonical/discourse-gatekeeper/internal/model"
	"github.com/canonical/discourse-gatekeeper/internal/orchestrator"
	"github.com/canonical/discourse-gatekeeper/internal/report"
)

const (
	flagDiscourseHost       = "discourse-host"
	flagDiscourseUsername   = "discourse-api-username"
	flagDiscourseAPIKey     = "discourse-api-key"
	flagDiscourseCategoryID = "discourse-category-id"
	flagGithubToken         = "github-token"
	flagGithubOwner         = "github-owner"
	flagGithubRepo          = "github-repo"
	flagBaseBranch          = "base-branch"
	flagCommitSHA           = "commit-sha"
	flagCharmDir            = "charm-dir"
	flagDryRun              = "dry-run"
	flagDeleteTopics        = "delete-topics"
	flagIgnoreServerAhead   = "ignore-server-ahead"
)

func main() {
	app := &cli.App{
		Name:  "gatekeeper",
		Usage: "reconcile a charm's documentation between its repository and Discourse",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagDiscourseHost, EnvVars: []string{"DISCOURSE_HOST"}},
			&cli.StringFlag{Name: flagDiscourseUsername, EnvVars: []string{"DISCOURSE_API_USERNAME"}},
			&cli.StringFlag{Name: flagDiscourseAPIKey, EnvVars: []string{"DISCOURSE_API_KEY"}},
			&cli.StringFlag{Name: flagDiscourseCategoryID, EnvVars: []string{"DISCOURSE_CATEGORY_ID"}},
			&cli.StringFlag{Name: flagGithubToken, EnvVars: []string{"GITHUB_TOKEN"}},
			&cli.StringFlag{Name: flagGithubOwner, EnvVars: []string{"GITHUB_REPOSITORY_OWNER"}},
			&cli.StringFlag{Name: flagGithubRepo, EnvVars: []string{"GITHUB_REPOSITORY_NAME"}},
			&cli.StringFlag{Name: flagBaseBranch, EnvVars: []string{"INPUT_BASE_BRANCH"}},
			&cli.StringFlag{Name: flagCommitSHA, EnvVars: []string{"GITHUB_SHA"}},
			&cli.StringFlag{Name: flagCharmDir, EnvVars: []string{"INPUT_CHARM_DIR"}, Value: "."},
			&cli.StringFlag{Name: flagDryRun, EnvVars: []string{"INPUT_DRY_RUN"}},
			&cli.StringFlag{Name: flagDeleteTopics, EnvVars: []string{"INPUT_DELETE_TOPICS"}},
			&cli.StringFlag{Name: flagIgnoreServerAhead, EnvVars: []string{"INPUT_IGNORE_SERVER_AHEAD"}},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		glog.Errorf("gatekeeper: %s", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Parse(config.Raw{
		DiscourseHost:        c.String(flagDiscourseHost),
		DiscourseAPIUsername: c.String(flagDiscourseUsername),
		DiscourseAPIKey:      c.String(flagDiscourseAPIKey),
		DiscourseCategoryID:  c.String(flagDiscourseCategoryID),
		GithubToken:          c.String(flagGithubToken),
		BaseBranch:           c.String(flagBaseBranch),
		CommitSHA:            c.String(flagCommitSHA),
		CharmDir:             c.String(flagCharmDir),
		DryRun:               c.String(flagDryRun),
		DeleteTopics:         c.String(flagDeleteTopics),
		IgnoreServerAhead:    c.String(flagIgnoreServerAhead),
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	disc := discourseclient.New(cfg.DiscourseHost, cfg.DiscourseAPIUsername, cfg.DiscourseAPIKey, cfg.DiscourseCategoryID)
	host := ghhost.New(ctx, cfg.GithubToken, c.String(flagGithubOwner), c.String(flagGithubRepo), cfg.CharmDir)

	var aheadOkWarnOnce sync.Once
	outputs, runErr := orchestrator.Run(ctx, orchestrator.Deps{
		Discourse:       disc,
		Host:            host,
		Config:          cfg,
		AheadOkWarnOnce: &aheadOkWarnOnce,
	})

	if len(outputs.Reports) > 0 {
		fmt.Print(report.Render(outputs.Reports))
	}
	if summary := report.RenderProblems(outputs.Problems); summary != "" {
		fmt.Print(summary)
	}

	if writeErr := writeOutputs(outputs); writeErr != nil {
		glog.Errorf("gatekeeper: writing outputs: %s", writeErr)
	}

	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	return nil
}

func writeOutputs(outputs model.Outputs) error {
	b, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling outputs: %w", err)
	}
	fmt.Println(string(b))

	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening GITHUB_OUTPUT: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "index-url=%s\n", outputs.IndexURL); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "pr-link=%s\n", outputs.PRLink); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "pr-action=%s\n", outputs.PRAction); err != nil {
		return err
	}
	return nil
}
