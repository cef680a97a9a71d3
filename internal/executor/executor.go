// Package executor is the Action Executor of §4.8: it consumes the
// planner's action stream in order, drives the Discourse client, and
// emits one ActionReport per action, enforcing dry-run and
// delete-topic policy without ever aborting the run on a single
// action's failure.
package executor

import (
	"context"

	"github.com/canonical/discourse-gatekeeper/go/glog"
	"github.com/canonical/discourse-gatekeeper/internal/discourse"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Deps bundles the executor's configuration and its one external
// collaborator.
type Deps struct {
	Discourse    discourse.Client
	DryRun       bool
	DeleteTopics bool
}

// Execute runs every action in the given order and returns one report
// per action. idx, if non-nil, has its Server field updated in place
// when the TargetIndex action succeeds, per §4.8's fresh-link caching
// rule; it is nil when the caller is not also reconciling the index in
// this call.
func Execute(ctx context.Context, deps Deps, idx *model.Index, actions []model.Action) []model.ActionReport {
	reports := make([]model.ActionReport, 0, len(actions))
	for _, a := range actions {
		reports = append(reports, execOne(ctx, deps, idx, a))
	}
	return reports
}

func execOne(ctx context.Context, deps Deps, idx *model.Index, a model.Action) model.ActionReport {
	if deps.DryRun && a.Kind != model.ActionNoop {
		loc := model.DryRunNavlinkLink
		return model.ActionReport{Action: a, Location: loc, Result: model.ResultSkip, Reason: model.DryRunReason}
	}

	switch a.Kind {
	case model.ActionNoop:
		return model.ActionReport{Action: a, Location: a.Navlink.Link, Result: model.ResultSuccess}
	case model.ActionDelete:
		return execDelete(ctx, deps, a)
	case model.ActionCreate:
		return execCreate(ctx, deps, idx, a)
	case model.ActionUpdate:
		return execUpdate(ctx, deps, idx, a)
	default:
		return model.ActionReport{Action: a, Result: model.ResultFail, Reason: "unknown action kind"}
	}
}

func execDelete(ctx context.Context, deps Deps, a model.Action) model.ActionReport {
	if a.Target == model.TargetPage {
		if !deps.DeleteTopics {
			return model.ActionReport{Action: a, Result: model.ResultSkip, Reason: model.NotDeleteReason}
		}
		if err := deps.Discourse.DeleteTopic(ctx, a.Navlink.Link); err != nil {
			return model.ActionReport{Action: a, Result: model.ResultFail, Reason: err.Error()}
		}
	}
	// Group and external-ref deletes only remove a navigation-table row;
	// there is no hosted topic to delete.
	return model.ActionReport{Action: a, Result: model.ResultSuccess}
}

func execCreate(ctx context.Context, deps Deps, idx *model.Index, a model.Action) model.ActionReport {
	switch a.Target {
	case model.TargetGroup:
		return model.ActionReport{Action: a, Result: model.ResultSuccess}
	case model.TargetExternalRef:
		return model.ActionReport{Action: a, Location: a.ExternalURL, Result: model.ResultSuccess}
	case model.TargetIndex:
		content := ""
		if a.ContentChange != nil && a.ContentChange.Local != nil {
			content = *a.ContentChange.Local
		}
		url, err := deps.Discourse.CreateTopic(ctx, a.Navlink.Title, content)
		if err != nil {
			return model.ActionReport{Action: a, Result: model.ResultFail, Reason: err.Error()}
		}
		if idx != nil {
			idx.Server = &model.Page{URL: url, Content: content}
		}
		return model.ActionReport{Action: a, Location: url, Result: model.ResultSuccess}
	default: // TargetPage
		content := ""
		if a.ContentChange != nil && a.ContentChange.Local != nil {
			content = *a.ContentChange.Local
		}
		url, err := deps.Discourse.CreateTopic(ctx, a.Navlink.Title, content)
		if err != nil {
			return model.ActionReport{Action: a, Result: model.ResultFail, Reason: err.Error()}
		}
		return model.ActionReport{Action: a, Location: url, Result: model.ResultSuccess}
	}
}

func execUpdate(ctx context.Context, deps Deps, idx *model.Index, a model.Action) model.ActionReport {
	switch a.Target {
	case model.TargetGroup, model.TargetExternalRef:
		return model.ActionReport{Action: a, Location: a.Navlink.Link, Result: model.ResultSuccess}
	case model.TargetIndex:
		content := ""
		if a.ContentChange != nil && a.ContentChange.Local != nil {
			content = *a.ContentChange.Local
		}
		url := ""
		if idx != nil && idx.Server != nil {
			url = idx.Server.URL
		}
		if err := deps.Discourse.UpdateTopic(ctx, url, content); err != nil {
			return model.ActionReport{Action: a, Result: model.ResultFail, Reason: err.Error()}
		}
		if idx != nil && idx.Server != nil {
			idx.Server.Content = content
		}
		return model.ActionReport{Action: a, Location: url, Result: model.ResultSuccess}
	default: // TargetPage
		return execUpdatePage(ctx, deps, a)
	}
}

// execUpdatePage implements Open Question 2's binding resolution: a
// NavlinkRename travels together with its ContentChange atomically.
// When the case requires a content PUT and that PUT fails, the whole
// action (rename included) is reported FAIL; when no content PUT is
// required, the rename (if any) is reported as applied by construction
// since navigation-table row fields come straight from the Action.
func execUpdatePage(ctx context.Context, deps Deps, a model.Action) model.ActionReport {
	switch a.UpdateCase {
	case model.UpdateCaseNoop, model.UpdateCaseBaseMissing, model.UpdateCaseServerAhead:
		reason := a.Reason
		return model.ActionReport{Action: a, Location: a.Navlink.Link, Result: model.ResultSuccess, Reason: reason}
	case model.UpdateCaseConflict:
		return model.ActionReport{Action: a, Result: model.ResultFail, Reason: "unresolved merge conflict"}
	default: // UpdateCaseDefault, UpdateCaseContentChange
		content := ""
		if a.ContentChange != nil && a.ContentChange.Local != nil {
			content = *a.ContentChange.Local
		}
		if err := deps.Discourse.UpdateTopic(ctx, a.Navlink.Link, content); err != nil {
			if a.NavlinkRename != nil {
				glog.Warningf("page %s: content update failed, rename blocked atomically: %v", a.Path, err)
			}
			return model.ActionReport{Action: a, Result: model.ResultFail, Reason: err.Error()}
		}
		return model.ActionReport{Action: a, Location: a.Navlink.Link, Result: model.ResultSuccess}
	}
}
