// Package planner is the Action Planner / Reconciler of §4.6: it pairs
// the sorter's ordered local item stream with the current server
// navigation rows and base-tag content to emit a typed Action stream.
// It also houses the Index Reconciler of §4.9 as a separate entry point,
// PlanIndex, which takes only the local and server index content.
package planner

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/canonical/discourse-gatekeeper/go/skerr"
	"github.com/canonical/discourse-gatekeeper/internal/discourse"
	"github.com/canonical/discourse-gatekeeper/internal/hostclient"
	"github.com/canonical/discourse-gatekeeper/internal/merge"
	"github.com/canonical/discourse-gatekeeper/internal/model"
	"github.com/canonical/discourse-gatekeeper/internal/navtable"
	"github.com/canonical/discourse-gatekeeper/internal/sorter"
)

// Deps bundles the planner's external collaborators, per §6: the host
// client for base-content retrieval, the Discourse client for server
// content retrieval, and the base-content tag name to fetch against.
type Deps struct {
	Host          hostclient.Client
	Discourse     discourse.Client
	BaseTag       string
	DiscourseHost string
}

type planner struct {
	ctx  context.Context
	deps Deps

	localByPath  map[string]sorter.Item
	serverByPath map[string]model.TableRow

	// renameOldToNew maps a server-only row's path to the local table
	// path it was paired with by content equality, per tie-break 2 of
	// §4.6. renamedNew records which local items were consumed this way
	// so the main pass treats them as an update, not a create.
	renameOldToNew map[string]string
	renamedNew     map[string]bool

	localContentCache  map[string]string
	serverContentCache map[string]string
}

// Plan implements §4.6: for every local item it finds the matching
// server row by table path (falling back to rename-by-content-equality
// matching for pages, per tie-break 2) and emits the corresponding
// Create/Noop/Update action; server rows left over after that become
// Delete actions, deferred to the end of the stream and ordered deepest
// level first, per tie-break 1 and invariant 3 of §3.
func Plan(ctx context.Context, deps Deps, items []sorter.Item, serverRows []model.TableRow) ([]model.Action, error) {
	p := &planner{
		ctx:                ctx,
		deps:               deps,
		localByPath:        map[string]sorter.Item{},
		serverByPath:        map[string]model.TableRow{},
		renameOldToNew:     map[string]string{},
		renamedNew:         map[string]bool{},
		localContentCache:  map[string]string{},
		serverContentCache: map[string]string{},
	}
	for _, it := range items {
		p.localByPath[it.TablePath] = it
	}
	for _, r := range serverRows {
		p.serverByPath[r.Path] = r
	}

	if err := p.detectRenames(items, serverRows); err != nil {
		return nil, err
	}

	var actions []model.Action
	for _, it := range items {
		acts, err := p.planItem(it)
		if err != nil {
			return nil, err
		}
		actions = append(actions, acts...)
	}

	var deletes []model.Action
	for _, r := range serverRows {
		if _, local := p.localByPath[r.Path]; local {
			continue
		}
		if _, renamed := p.renameOldToNew[r.Path]; renamed {
			continue
		}
		deletes = append(deletes, p.planDelete(r))
	}
	sort.SliceStable(deletes, func(i, j int) bool { return deletes[i].Level > deletes[j].Level })
	actions = append(actions, deletes...)

	return actions, nil
}

// detectRenames pairs server-only page rows with local-only page items
// whose content matches, per tie-break 2 of §4.6: "a row whose link
// cannot be matched to any local item ... is treated as a page rename"
// when the content is identical, rather than delete+create.
func (p *planner) detectRenames(items []sorter.Item, serverRows []model.TableRow) error {
	var unmatchedServerPages []model.TableRow
	for _, r := range serverRows {
		if r.IsGroup() {
			continue
		}
		if navtable.IsExternalLink(r.Navlink.Link, p.deps.DiscourseHost) {
			continue
		}
		if _, ok := p.localByPath[r.Path]; ok {
			continue
		}
		unmatchedServerPages = append(unmatchedServerPages, r)
	}
	if len(unmatchedServerPages) == 0 {
		return nil
	}

	for _, it := range items {
		if it.IsExternal || it.IsGroup {
			continue
		}
		if _, ok := p.serverByPath[it.TablePath]; ok {
			continue
		}
		localContent, err := p.readLocal(it)
		if err != nil {
			return err
		}
		for _, r := range unmatchedServerPages {
			if _, taken := p.renameOldToNew[r.Path]; taken {
				continue
			}
			serverContent, err := p.readServer(r)
			if err != nil {
				continue
			}
			if serverContent == localContent {
				p.renameOldToNew[r.Path] = it.TablePath
				p.renamedNew[it.TablePath] = true
				break
			}
		}
	}
	return nil
}

func (p *planner) readLocal(it sorter.Item) (string, error) {
	if c, ok := p.localContentCache[it.TablePath]; ok {
		return c, nil
	}
	b, err := os.ReadFile(it.LocalPath)
	if err != nil {
		return "", skerr.Wrapf(err, "reading local page %s", it.LocalPath)
	}
	p.localContentCache[it.TablePath] = string(b)
	return string(b), nil
}

func (p *planner) readServer(r model.TableRow) (string, error) {
	if c, ok := p.serverContentCache[r.Path]; ok {
		return c, nil
	}
	content, err := p.deps.Discourse.RetrieveTopic(p.ctx, r.Navlink.Link)
	if err != nil {
		return "", skerr.Wrap(err)
	}
	p.serverContentCache[r.Path] = content
	return content, nil
}

func (p *planner) readBase(it sorter.Item) (*string, error) {
	b, err := p.deps.Host.FileAtTag(p.ctx, p.deps.BaseTag, it.LocalPath)
	if err != nil {
		var tagErr *model.RepositoryTagNotFoundError
		var fileErr *model.RepositoryFileNotFoundError
		if errors.As(err, &tagErr) || errors.As(err, &fileErr) {
			return nil, nil
		}
		return nil, skerr.Wrap(err)
	}
	s := string(b)
	return &s, nil
}

func (p *planner) planItem(it sorter.Item) ([]model.Action, error) {
	switch {
	case it.IsExternal:
		return p.planExternalRef(it), nil
	case it.IsGroup:
		return p.planGroup(it), nil
	default:
		return p.planPage(it)
	}
}

func (p *planner) planGroup(it sorter.Item) []model.Action {
	newNavlink := model.Navlink{Title: it.Title, Hidden: it.Hidden}
	row, ok := p.serverByPath[it.TablePath]
	if !ok {
		return []model.Action{{Kind: model.ActionCreate, Target: model.TargetGroup, Level: it.Level, Path: it.TablePath, Navlink: newNavlink}}
	}
	if !row.IsGroup() {
		// Tie-break 3: server kind differs from local kind.
		return []model.Action{
			p.planDelete(row),
			{Kind: model.ActionCreate, Target: model.TargetGroup, Level: it.Level, Path: it.TablePath, Navlink: newNavlink},
		}
	}
	if row.Navlink.Title == newNavlink.Title && row.Navlink.Hidden == newNavlink.Hidden {
		return []model.Action{{Kind: model.ActionNoop, Target: model.TargetGroup, Level: it.Level, Path: it.TablePath, Navlink: row.Navlink}}
	}
	return []model.Action{{Kind: model.ActionUpdate, Target: model.TargetGroup, Level: it.Level, Path: it.TablePath, Navlink: newNavlink}}
}

func (p *planner) planExternalRef(it sorter.Item) []model.Action {
	newNavlink := model.Navlink{Title: it.Title, Link: it.ExternalURL, Hidden: it.Hidden}
	row, ok := p.serverByPath[it.TablePath]
	if !ok {
		return []model.Action{{Kind: model.ActionCreate, Target: model.TargetExternalRef, Level: it.Level, Path: it.TablePath, Navlink: newNavlink, ExternalURL: it.ExternalURL}}
	}
	if row.IsGroup() {
		return []model.Action{
			p.planDelete(row),
			{Kind: model.ActionCreate, Target: model.TargetExternalRef, Level: it.Level, Path: it.TablePath, Navlink: newNavlink, ExternalURL: it.ExternalURL},
		}
	}
	if row.Navlink == newNavlink {
		return []model.Action{{Kind: model.ActionNoop, Target: model.TargetExternalRef, Level: it.Level, Path: it.TablePath, Navlink: row.Navlink, ExternalURL: it.ExternalURL}}
	}
	return []model.Action{{Kind: model.ActionUpdate, Target: model.TargetExternalRef, Level: it.Level, Path: it.TablePath, Navlink: newNavlink, ExternalURL: it.ExternalURL}}
}

func (p *planner) planPage(it sorter.Item) ([]model.Action, error) {
	row, ok := p.serverByPath[it.TablePath]
	var oldRowPath string
	if !ok {
		for old, newPath := range p.renameOldToNew {
			if newPath == it.TablePath {
				row = p.serverByPath[old]
				oldRowPath = old
				ok = true
				break
			}
		}
	}

	newNavlink := model.Navlink{Title: it.Title, Hidden: it.Hidden}

	if !ok {
		local, err := p.readLocal(it)
		if err != nil {
			return nil, err
		}
		newNavlink.Link = model.DryRunNavlinkLink // placeholder until the executor captures the created URL
		return []model.Action{{
			Kind:          model.ActionCreate,
			Target:        model.TargetPage,
			Level:         it.Level,
			Path:          it.TablePath,
			Navlink:       newNavlink,
			ContentChange: &model.ContentChange{Local: &local},
		}}, nil
	}

	if !row.IsGroup() && navtable.IsExternalLink(row.Navlink.Link, p.deps.DiscourseHost) {
		// Tie-break 3: server row is an external ref, local is a page.
		local, err := p.readLocal(it)
		if err != nil {
			return nil, err
		}
		newNavlink.Link = model.DryRunNavlinkLink
		return []model.Action{
			p.planDelete(row),
			{Kind: model.ActionCreate, Target: model.TargetPage, Level: it.Level, Path: it.TablePath, Navlink: newNavlink, ContentChange: &model.ContentChange{Local: &local}},
		}, nil
	}
	if row.IsGroup() {
		local, err := p.readLocal(it)
		if err != nil {
			return nil, err
		}
		newNavlink.Link = model.DryRunNavlinkLink
		return []model.Action{
			p.planDelete(row),
			{Kind: model.ActionCreate, Target: model.TargetPage, Level: it.Level, Path: it.TablePath, Navlink: newNavlink, ContentChange: &model.ContentChange{Local: &local}},
		}, nil
	}

	local, err := p.readLocal(it)
	if err != nil {
		return nil, err
	}
	server, err := p.readServer(row)
	if err != nil {
		return nil, err
	}
	base, err := p.readBase(it)
	if err != nil {
		return nil, err
	}

	updateCase, content := classifyContentChange(base, server, local)
	newNavlink.Link = row.Navlink.Link

	var rename *model.NavlinkChange
	if oldRowPath != "" || row.Path != it.TablePath {
		rename = &model.NavlinkChange{OldNavlink: row.Navlink, NewNavlink: newNavlink}
	} else if row.Navlink.Title != newNavlink.Title || row.Navlink.Hidden != newNavlink.Hidden {
		rename = &model.NavlinkChange{OldNavlink: row.Navlink, NewNavlink: newNavlink}
	}

	action := model.Action{
		Target:        model.TargetPage,
		Level:         it.Level,
		Path:          it.TablePath,
		Navlink:       newNavlink,
		ContentChange: &model.ContentChange{Base: base, Server: &server, Local: &local},
		UpdateCase:    updateCase,
		NavlinkRename: rename,
	}
	if (updateCase == model.UpdateCaseNoop || updateCase == model.UpdateCaseBaseMissing) && rename == nil {
		// §4.6's three-way outcome table lists BASE_MISSING as its own
		// case, but S4 ("Missing base") expects it to behave as a plain
		// Noop when server and local already agree: no content upload and
		// no reason for the orchestrator to treat this page as changed,
		// which in turn keeps "no changes seen" true for the base-content
		// tag move precondition of §4.9.
		action.Kind = model.ActionNoop
	} else {
		action.Kind = model.ActionUpdate
		if updateCase == model.UpdateCaseContentChange {
			// The merged text is what will be uploaded; Local keeps the
			// actual on-disk content everywhere else, including conflict
			// reporting.
			action.ContentChange.Local = &content
		}
	}
	if updateCase == model.UpdateCaseBaseMissing {
		action.Reason = model.BaseMissingReason
	}
	if updateCase == model.UpdateCaseServerAhead {
		action.Reason = model.ServerAheadReason
	}
	return []model.Action{action}, nil
}

func (p *planner) planDelete(row model.TableRow) model.Action {
	target := model.TargetGroup
	if !row.IsGroup() {
		if navtable.IsExternalLink(row.Navlink.Link, p.deps.DiscourseHost) {
			target = model.TargetExternalRef
		} else {
			target = model.TargetPage
		}
	}
	return model.Action{Kind: model.ActionDelete, Target: target, Level: row.Level, Path: row.Path, Navlink: row.Navlink}
}

// classifyContentChange implements the three-way outcome table of §4.6.
// When base is missing and server disagrees with local, there is no
// base to merge against; this is classified as a Conflict requiring a
// human to establish a base, since merge.Merge itself only succeeds on
// a missing base when server and local already agree.
func classifyContentChange(base *string, server, local string) (model.UpdateCase, string) {
	if base == nil {
		if server == local {
			return model.UpdateCaseBaseMissing, local
		}
		return model.UpdateCaseConflict, ""
	}
	switch {
	case *base == server && server == local:
		return model.UpdateCaseNoop, local
	case *base == server:
		return model.UpdateCaseDefault, local
	case *base == local:
		return model.UpdateCaseServerAhead, server
	case server == local:
		return model.UpdateCaseNoop, local
	}
	if conflictDesc := merge.Conflicts(base, server, local); conflictDesc != "" {
		return model.UpdateCaseConflict, ""
	}
	merged, err := merge.Merge(base, server, local)
	if err != nil {
		return model.UpdateCaseConflict, ""
	}
	return model.UpdateCaseContentChange, merged
}
