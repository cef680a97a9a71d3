// Package checker is the Checker of §4.7: given a realized action
// stream, it runs pre-execution validation and yields a Problem for
// each page conflict, logical server-ahead conflict, and unreachable
// external reference.
package checker

import (
	"context"
	"sync"

	"github.com/canonical/discourse-gatekeeper/go/glog"
	"github.com/canonical/discourse-gatekeeper/internal/discourse"
	"github.com/canonical/discourse-gatekeeper/internal/merge"
	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Deps bundles the checker's one external collaborator: the Discourse
// client, used for the external-reference liveness HEAD check.
type Deps struct {
	Discourse discourse.Client

	// IgnoreServerAhead backs Open Question 1 of §9: the legacy
	// "ahead-ok" tag is honored only when this is set.
	IgnoreServerAhead bool
	// LegacyAheadOkTagPresent reports whether the deprecated
	// upload-charm-docs/discourse-ahead-ok tag was found on the current
	// commit.
	LegacyAheadOkTagPresent bool
	// AheadOkWarnOnce caps the legacy-tag deprecation warning at one
	// emission per process. Per §9's "no global state in the core" note,
	// the core holds no package-level mutable state; the caller (the
	// orchestrator, ultimately the CLI front-end) owns and threads this
	// Once through instead. Nil is safe: the warning is then emitted
	// every time it applies.
	AheadOkWarnOnce *sync.Once
}

// Check runs every validation described in §4.7 and returns the
// combined list of Problems. It is pure over actions plus the one
// network side effect of the external-reference HEAD checks, executed
// strictly sequentially per §5.
func Check(ctx context.Context, deps Deps, actions []model.Action) ([]model.Problem, error) {
	var problems []model.Problem

	for _, a := range actions {
		if a.Target != model.TargetPage || a.Kind != model.ActionUpdate {
			continue
		}
		if a.UpdateCase == model.UpdateCaseConflict {
			desc := "merge conflict"
			if a.ContentChange != nil && a.ContentChange.Base != nil && a.ContentChange.Server != nil && a.ContentChange.Local != nil {
				desc = merge.Conflicts(a.ContentChange.Base, *a.ContentChange.Server, *a.ContentChange.Local)
				if desc == "" {
					desc = "merge conflict"
				}
			}
			problems = append(problems, model.Problem{Path: a.Path, Description: desc})
			continue
		}
		if a.UpdateCase == model.UpdateCaseServerAhead && otherNonNoopExists(actions, a.Path) {
			if deps.IgnoreServerAhead {
				continue
			}
			desc := "server content is ahead of base and other reconciliation actions are pending in this run"
			if deps.LegacyAheadOkTagPresent {
				desc += "; the legacy upload-charm-docs/discourse-ahead-ok tag no longer suppresses this on its own, set ignore_server_ahead instead"
				warn := func() { glog.Warningf("%s", model.DeprecatedAheadOkNotes) }
				if deps.AheadOkWarnOnce != nil {
					deps.AheadOkWarnOnce.Do(warn)
				} else {
					warn()
				}
			}
			problems = append(problems, model.Problem{Path: a.Path, Description: desc})
		}
	}

	for _, a := range actions {
		if a.Target != model.TargetExternalRef || a.Kind == model.ActionDelete || a.Kind == model.ActionNoop {
			continue
		}
		status, err := deps.Discourse.CheckURLIsReachable(ctx, a.ExternalURL)
		if err != nil || status < 200 || status >= 300 {
			problems = append(problems, model.Problem{
				Path:        a.Path,
				Description: "external reference is not reachable: " + a.ExternalURL,
			})
		}
	}

	return problems, nil
}

// otherNonNoopExists reports whether the action stream contains any
// non-noop page action other than the one at excludePath, per §4.7's
// "logical conflict" definition of server-ahead.
func otherNonNoopExists(actions []model.Action, excludePath string) bool {
	for _, a := range actions {
		if a.Target != model.TargetPage || a.Kind == model.ActionNoop {
			continue
		}
		if a.Path == excludePath {
			continue
		}
		return true
	}
	return false
}
