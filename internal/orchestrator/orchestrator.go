// Package orchestrator is the Orchestrator of §2/§4.9: the top-level
// workflow that selects reconcile vs migrate mode, drives every other
// core component in data-flow order, performs the post-run tag
// movement, and assembles the §6 Outputs value. It is the only package
// that knows about every other core package at once; no other internal
// package imports orchestrator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/canonical/discourse-gatekeeper/go/glog"
	"github.com/canonical/discourse-gatekeeper/go/skerr"
	"github.com/canonical/discourse-gatekeeper/internal/checker"
	"github.com/canonical/discourse-gatekeeper/internal/config"
	"github.com/canonical/discourse-gatekeeper/internal/contentsindex"
	"github.com/canonical/discourse-gatekeeper/internal/discourse"
	"github.com/canonical/discourse-gatekeeper/internal/docstree"
	"github.com/canonical/discourse-gatekeeper/internal/executor"
	"github.com/canonical/discourse-gatekeeper/internal/hostclient"
	"github.com/canonical/discourse-gatekeeper/internal/migrate"
	"github.com/canonical/discourse-gatekeeper/internal/model"
	"github.com/canonical/discourse-gatekeeper/internal/navtable"
	"github.com/canonical/discourse-gatekeeper/internal/planner"
	"github.com/canonical/discourse-gatekeeper/internal/sorter"
)

const migrateBranchName = "discourse-gatekeeper/migrate"

// Deps bundles the orchestrator's external collaborators: the two
// adapters the core depends on only through their §6 interfaces, plus
// the validated run configuration.
type Deps struct {
	Discourse discourse.Client
	Host      hostclient.Client
	Config    config.Config
	// AheadOkWarnOnce, when set, caps the legacy ahead-ok tag's
	// deprecation warning at one emission for its lifetime; threaded
	// straight through to checker.Deps. Owned by the caller so the core
	// carries no package-level mutable state (§9).
	AheadOkWarnOnce *sync.Once
}

// Run selects reconcile vs migrate mode (§2: the presence of the local
// docs directory decides it) and drives the chosen workflow end to end.
func Run(ctx context.Context, deps Deps) (model.Outputs, error) {
	docsDir := filepath.Join(deps.Config.CharmDir, "docs")
	if _, err := os.Stat(docsDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return runMigrate(ctx, deps)
		}
		return model.Outputs{}, skerr.Wrap(err)
	}
	return runReconcile(ctx, deps, docsDir)
}

func runReconcile(ctx context.Context, deps Deps, docsDir string) (model.Outputs, error) {
	indexURL, err := readDocsURL(deps.Config.CharmDir)
	if err != nil {
		return model.Outputs{}, err
	}

	paths, err := docstree.Read(docsDir)
	if err != nil {
		return model.Outputs{}, skerr.Wrap(err)
	}

	localIndexContent, err := readOptionalFile(filepath.Join(docsDir, "index.md"))
	if err != nil {
		return model.Outputs{}, err
	}

	known := make(map[string]bool, len(paths))
	for _, p := range paths {
		known[p.TablePath] = true
	}

	contentsItems, err := contentsindex.Parse(localIndexContent, known)
	if err != nil {
		return model.Outputs{}, err
	}

	items, err := sorter.Sort(paths, contentsItems)
	if err != nil {
		return model.Outputs{}, err
	}

	idx := &model.Index{Name: "index"}
	if localIndexContent != "" {
		idx.Local = &model.IndexFile{Title: charmName(deps.Config.CharmDir), Content: localIndexContent}
	}

	var serverRows []model.TableRow
	if indexURL != "" {
		serverContent, err := deps.Discourse.RetrieveTopic(ctx, indexURL)
		if err != nil {
			return model.Outputs{}, err
		}
		idx.Server = &model.Page{URL: indexURL, Content: serverContent}
		serverRows, err = navtable.Parse(serverContent)
		if err != nil {
			return model.Outputs{}, err
		}
	}

	if err := preflightPermissions(ctx, deps, serverRows); err != nil {
		return model.Outputs{}, err
	}

	planned, err := planner.Plan(ctx, planner.Deps{
		Host:          deps.Host,
		Discourse:     deps.Discourse,
		BaseTag:       deps.Config.BaseContentTagName,
		DiscourseHost: deps.Config.DiscourseHost,
	}, items, serverRows)
	if err != nil {
		return model.Outputs{}, err
	}

	aheadOkPresent, err := legacyAheadOkPresent(ctx, deps)
	if err != nil {
		return model.Outputs{}, err
	}
	problems, err := checker.Check(ctx, checker.Deps{
		Discourse:               deps.Discourse,
		IgnoreServerAhead:       deps.Config.IgnoreServerAhead,
		LegacyAheadOkTagPresent: aheadOkPresent,
		AheadOkWarnOnce:         deps.AheadOkWarnOnce,
	}, planned)
	if err != nil {
		return model.Outputs{}, err
	}
	for _, p := range problems {
		glog.Warningf("problem: %s: %s", p.Path, p.Description)
	}

	reports := executor.Execute(ctx, executor.Deps{
		Discourse:    deps.Discourse,
		DryRun:       deps.Config.DryRun,
		DeleteTopics: deps.Config.DeleteTopics,
	}, idx, planned)

	failures, merr := collectFailures(reports)
	// A checker Problem (§4.7) fails the run even when the underlying
	// action itself reported SUCCESS — an unreachable external reference
	// or an unsuppressed server-ahead conflict is a logical failure, not
	// an execution one. Page conflicts are skipped here because the
	// executor already reports those actions FAIL (§4.8) and
	// collectFailures counted them above; counting them again here would
	// double the reported failure count for the same underlying cause.
	failedPaths := failedActionPaths(reports)
	for _, p := range problems {
		if failedPaths[p.Path] {
			continue
		}
		failures++
		merr = multierror.Append(merr, fmt.Errorf("%s: %s", p.Path, p.Description))
	}
	outputs := model.Outputs{
		IndexURL: indexURL,
		Topics:   pageTopics(reports),
		PRAction: model.PRActionNone.String(),
		Reports:  append([]model.ActionReport(nil), reports...),
		Problems: problems,
	}

	if !deps.Config.DryRun && failures == 0 {
		navBody := navtable.Render(realizedRows(planned, reports))
		previousNavBody := ""
		if idx.Server != nil {
			previousNavBody = navtable.Render(serverRows)
		}
		idx.Local = &model.IndexFile{
			Title:   charmName(deps.Config.CharmDir),
			Content: injectNavigation(idx.Local, navBody),
		}
		indexAction := planner.PlanIndex(idx)
		if indexAction.Kind == model.ActionNoop && navBody != previousNavBody {
			// The index reconciler's content comparison deliberately
			// excludes the navigation section (§4.6), so a page-level
			// change that only rewrites the table still has to force the
			// index topic's update.
			indexAction.Kind = model.ActionUpdate
		}
		indexReports := executor.Execute(ctx, executor.Deps{
			Discourse: deps.Discourse, DryRun: false, DeleteTopics: deps.Config.DeleteTopics,
		}, idx, []model.Action{indexAction})
		outputs.Reports = append(outputs.Reports, indexReports...)
		if n, indexErr := collectFailures(indexReports); n > 0 {
			failures += n
			merr = multierror.Append(merr, indexErr.Errors...)
		}
		if idx.Server != nil {
			outputs.IndexURL = idx.Server.URL
		}

		if failures == 0 {
			// S4 ("missing base, server and local already identical"): the
			// plan is all-Noop, so the reconciler saw no changes at all and
			// the base-content tag is left where it was rather than moved
			// forward onto a commit that introduced nothing new.
			if !allNoop(planned) || indexAction.Kind != model.ActionNoop {
				if err := moveContentTags(ctx, deps, planned, reports); err != nil {
					glog.Warningf("tag movement skipped: %v", err)
				}
			}
		}
	}

	if failures > 0 {
		return outputs, model.NewReconcilliationError(failures, merr.ErrorOrNil())
	}
	return outputs, nil
}

func runMigrate(ctx context.Context, deps Deps) (model.Outputs, error) {
	indexURL, err := readDocsURL(deps.Config.CharmDir)
	if err != nil {
		return model.Outputs{}, err
	}
	if indexURL == "" {
		return model.Outputs{}, model.NewInputError("cannot migrate: no docs URL found in charm metadata", nil)
	}

	indexContent, err := deps.Discourse.RetrieveTopic(ctx, indexURL)
	if err != nil {
		return model.Outputs{}, err
	}

	mdeps := migrate.Deps{
		Discourse:     deps.Discourse,
		Host:          deps.Host,
		DiscourseHost: deps.Config.DiscourseHost,
		DocsDir:       "docs",
		BaseBranch:    deps.Config.BaseBranch,
		BranchName:    migrateBranchName,
		PRTitle:       "Migrate documentation from Discourse",
		PRBody:        "Automated migration of documentation content from Discourse into the repository.",
	}

	files, err := migrate.Plan(ctx, mdeps, indexURL, indexContent)
	if err != nil {
		return model.Outputs{}, err
	}

	result, err := migrate.Execute(ctx, mdeps, files)
	if err != nil {
		return model.Outputs{}, model.NewMigrationError("migration failed", err)
	}

	return model.Outputs{
		IndexURL: indexURL,
		Topics:   map[string]string{},
		PRLink:   result.PRLink,
		PRAction: result.PRAction.String(),
	}, nil
}

// preflightPermissions implements the supplemented permission check of
// §9: probe write access on every existing server page row before
// planning begins, so a missing-permission failure surfaces before any
// mutating call is attempted.
func preflightPermissions(ctx context.Context, deps Deps, rows []model.TableRow) error {
	for _, row := range rows {
		if row.IsGroup() || navtable.IsExternalLink(row.Navlink.Link, deps.Config.DiscourseHost) {
			continue
		}
		_, write, err := deps.Discourse.CheckTopicPermission(ctx, row.Navlink.Link)
		if err != nil {
			return err
		}
		if !write {
			return model.NewPagePermissionError(row.Navlink.Link)
		}
	}
	return nil
}

func legacyAheadOkPresent(ctx context.Context, deps Deps) (bool, error) {
	if deps.Config.LegacyAheadOkTagName == "" {
		return false, nil
	}
	exists, err := deps.Host.TagExists(ctx, deps.Config.LegacyAheadOkTagName)
	if err != nil {
		return false, skerr.Wrap(err)
	}
	return exists, nil
}

// allNoop reports whether every planned action is a Noop, per S4: a
// plan with nothing but Noops means the reconciler found no changes to
// make this run.
func allNoop(actions []model.Action) bool {
	for _, a := range actions {
		if a.Kind != model.ActionNoop {
			return false
		}
	}
	return true
}

func collectFailures(reports []model.ActionReport) (int, *multierror.Error) {
	var merr *multierror.Error
	failures := 0
	for _, r := range reports {
		if r.Result == model.ResultFail {
			failures++
			merr = multierror.Append(merr, errors.New(r.Reason))
		}
	}
	return failures, merr
}

// failedActionPaths returns the set of action paths that the executor
// already reported FAIL, so runReconcile's problem loop doesn't double-count a
// page conflict both as an executor failure and as a checker Problem.
func failedActionPaths(reports []model.ActionReport) map[string]bool {
	paths := make(map[string]bool)
	for _, r := range reports {
		if r.Result == model.ResultFail {
			paths[r.Action.Path] = true
		}
	}
	return paths
}

func pageTopics(reports []model.ActionReport) map[string]string {
	topics := map[string]string{}
	for _, r := range reports {
		if r.Action.Target != model.TargetPage || r.Location == "" {
			continue
		}
		topics[r.Location] = r.Action.Kind.String()
	}
	return topics
}

// realizedRows builds the navigation table that should now describe
// Discourse's state from the planner's action stream and the
// executor's reports, per §4.9: deletes are dropped, FAILed actions are
// dropped (their previous server row, if any, is simply omitted — a
// subsequent run will re-plan them), and any action that produced a
// fresh topic URL (create, or an update whose report carries a
// Location) uses that URL as the row's link.
func realizedRows(actions []model.Action, reports []model.ActionReport) []model.TableRow {
	var rows []model.TableRow
	for i, a := range actions {
		if a.Kind == model.ActionDelete {
			continue
		}
		r := reports[i]
		if r.Result == model.ResultFail {
			continue
		}
		nav := a.Navlink
		if a.NavlinkRename != nil {
			nav = a.NavlinkRename.NewNavlink
		}
		if a.Target == model.TargetPage && r.Location != "" && r.Location != model.DryRunNavlinkLink {
			nav.Link = r.Location
		}
		rows = append(rows, model.TableRow{Level: a.Level, Path: a.Path, Navlink: nav})
	}
	return rows
}

// injectNavigation strips whatever "# Navigation" and "# Contents"
// sections the local index.md carried and appends the freshly rendered
// navigation section, so the index topic always reflects the
// just-realized action stream rather than a stale or locally-authored
// navigation table.
func injectNavigation(local *model.IndexFile, navBody string) string {
	body := ""
	if local != nil {
		body = planner.StripGeneratedSections(local.Content)
	}
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return navBody
	}
	return body + "\n\n" + navBody
}

// isSameContent implements §4.9's third tag-movement precondition: the
// planned content must equal what is now actually on the server for
// every page. A SUCCESS update whose UpdateCase was ServerAhead left
// the server's content untouched and divergent from the plan, so that
// alone blocks tag movement.
func isSameContent(actions []model.Action, reports []model.ActionReport) bool {
	for i, a := range actions {
		if a.Target != model.TargetPage || a.Kind != model.ActionUpdate {
			continue
		}
		if reports[i].Result != model.ResultSuccess {
			continue
		}
		if a.UpdateCase == model.UpdateCaseServerAhead {
			return false
		}
	}
	return true
}

// moveContentTags implements §4.9's tag movement: moves both the
// base-content tag (the merge base for the next run) and the
// compatibility "content" tag, but only when the current commit is on
// the configured base branch and the realized content is not ahead of
// what was planned.
func moveContentTags(ctx context.Context, deps Deps, actions []model.Action, reports []model.ActionReport) error {
	branch, err := deps.Host.CurrentBranch(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	if branch != deps.Config.BaseBranch {
		return model.NewTaggingNotAllowedError(deps.Config.CommitSHA, branch)
	}
	if !isSameContent(actions, reports) {
		return skerr.Wrap(errors.New("server content is still ahead of the plan; tag movement deferred"))
	}
	if err := deps.Host.TagCommit(ctx, deps.Config.BaseContentTagName, deps.Config.CommitSHA); err != nil {
		return err
	}
	if deps.Config.ContentTagName == "" || deps.Config.ContentTagName == deps.Config.BaseContentTagName {
		return nil
	}
	return deps.Host.TagCommit(ctx, deps.Config.ContentTagName, deps.Config.CommitSHA)
}

// charmMetadata is the subset of metadata.yaml/charmcraft.yaml this
// package reads, per §6's "on-disk layout observed".
type charmMetadata struct {
	Name string `yaml:"name"`
	Docs string `yaml:"docs"`
}

// readDocsURL reads the charm's current docs index URL out of
// metadata.yaml, falling back to charmcraft.yaml, per §6. Absence of
// both files is not an error: a first-ever reconcile run has no server
// index yet.
func readDocsURL(charmDir string) (string, error) {
	meta, err := readCharmMetadata(charmDir)
	if err != nil {
		return "", err
	}
	return meta.Docs, nil
}

func charmName(charmDir string) string {
	meta, err := readCharmMetadata(charmDir)
	if err != nil || meta.Name == "" {
		return "Documentation"
	}
	return meta.Name
}

func readCharmMetadata(charmDir string) (charmMetadata, error) {
	for _, name := range []string{"metadata.yaml", "charmcraft.yaml"} {
		raw, err := os.ReadFile(filepath.Join(charmDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return charmMetadata{}, skerr.Wrap(err)
		}
		var meta charmMetadata
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return charmMetadata{}, model.NewInputError("malformed "+name, err)
		}
		return meta, nil
	}
	return charmMetadata{}, nil
}

func readOptionalFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", skerr.Wrap(err)
	}
	return string(b), nil
}
