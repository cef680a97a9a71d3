// Package model holds the value types shared by every reconciliation
// component: the data model of §3 of the specification. All types here
// are immutable value types (passed by value or treated as read-only)
// except where a doc comment says otherwise.
package model

// PathInfo describes one local docs-tree node, as produced by the
// docs-tree reader and consumed by the sorter and planner.
type PathInfo struct {
	LocalPath        string
	Level            int
	TablePath        string
	NavlinkTitle     string
	AlphabeticalRank int
	NavlinkHidden    bool
}

// Navlink is the title/link/hidden triple carried by a TableRow. Link
// is empty for groups and present for pages/external references.
type Navlink struct {
	Title  string
	Link   string
	Hidden bool
}

// IsGroup reports whether this navlink describes a group (no link).
func (n Navlink) IsGroup() bool {
	return n.Link == ""
}

// TableRow is one parsed row of the Discourse navigation table.
type TableRow struct {
	Level   int
	Path    string
	Navlink Navlink
}

// IsGroup reports whether this row describes a group.
func (r TableRow) IsGroup() bool {
	return r.Navlink.IsGroup()
}

// IndexContentsListItem is one entry parsed from the `# contents`
// section of the local index.md.
type IndexContentsListItem struct {
	Hierarchy      int
	ReferenceTitle string
	ReferenceValue string
	Rank           int
	Hidden         bool
	TablePath      string
	IsExternal     bool
}

// ContentChange drives the three-way merge. Any field may be the zero
// value of *string (nil) to mean "absent": Base is nil when no
// base-content tag exists yet; Server/Local are nil only in
// intermediate computations, never in a fully-populated UpdatePage.
type ContentChange struct {
	Base   *string
	Server *string
	Local  *string
}

// UpdateCase classifies how an UpdatePage's content change was derived,
// per §4.6.
type UpdateCase int

const (
	// UpdateCaseNoop means server == local, whether or not base agrees
	// with them.
	UpdateCaseNoop UpdateCase = iota
	// UpdateCaseDefault means base == server, local differs: a plain
	// upload of local content.
	UpdateCaseDefault
	// UpdateCaseServerAhead means base == local, server differs: no
	// upload needed, but the server has unreconciled changes.
	UpdateCaseServerAhead
	// UpdateCaseBaseMissing means there is no base-content tag yet.
	UpdateCaseBaseMissing
	// UpdateCaseContentChange means base differs from both server and
	// local, and the merge produced no conflict: upload the merged
	// content.
	UpdateCaseContentChange
	// UpdateCaseConflict means base differs from both, and the merge
	// conflicts. The planner still emits the action; the checker turns
	// it into a Problem.
	UpdateCaseConflict
)

// NavlinkChange describes an in-place rename detected by the planner
// (§4.6 tie-break 2): the server row's link could not be matched to a
// local item by path, but the local item's content matches, so this is
// treated as a rename rather than delete+create.
type NavlinkChange struct {
	OldNavlink Navlink
	NewNavlink Navlink
}

// ActionKind identifies which operation an Action performs.
type ActionKind int

const (
	ActionCreate ActionKind = iota
	ActionNoop
	ActionUpdate
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "create"
	case ActionNoop:
		return "noop"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ActionTarget identifies what kind of navigation entry an Action
// operates on.
type ActionTarget int

const (
	TargetPage ActionTarget = iota
	TargetGroup
	TargetExternalRef
	TargetIndex
)

func (t ActionTarget) String() string {
	switch t {
	case TargetPage:
		return "page"
	case TargetGroup:
		return "group"
	case TargetExternalRef:
		return "external-ref"
	case TargetIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Action is the tagged union described in §3 and §9's design note: one
// Kind x Target pair, carrying whichever payload is relevant. Consumers
// (executor, checker) should switch exhaustively on Kind and Target.
type Action struct {
	Kind   ActionKind
	Target ActionTarget

	Level int
	Path  string

	// Navlink is the navlink this action will realize (its Title/Link
	// fields describe the post-action state for Create/Update, and the
	// current state for Noop/Delete).
	Navlink Navlink

	// ContentChange is set for page Create/Update/Noop actions.
	ContentChange *ContentChange
	// UpdateCase classifies ContentChange for UpdatePage actions.
	UpdateCase UpdateCase
	// NavlinkRename is set when this UpdatePage also renames the page,
	// per tie-break 2 of §4.6.
	NavlinkRename *NavlinkChange

	// ExternalURL is set for ExternalRef actions.
	ExternalURL string

	// Reason annotates why a Noop/Delete-disabled action was chosen,
	// informational only (e.g. "BASE_MISSING").
	Reason string
}

// ActionResult is the outcome recorded by the executor's state machine.
type ActionResult int

const (
	ResultSuccess ActionResult = iota
	ResultSkip
	ResultFail
)

func (r ActionResult) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultSkip:
		return "SKIP"
	case ResultFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Well-known executor skip/fail reasons.
const (
	DryRunReason           = "DRY_RUN_REASON"
	NotDeleteReason        = "NOT_DELETE_REASON"
	DryRunNavlinkLink      = "<dry-run>"
	BaseMissingReason      = "BASE_MISSING"
	ServerAheadReason      = "SERVER_AHEAD"
	AtomicRenameBlocked    = "ATOMIC_RENAME_BLOCKED_BY_CONTENT_CONFLICT"
	DeprecatedAheadOkNotes = "the upload-charm-docs/discourse-ahead-ok tag is deprecated; set ignore_server_ahead instead"
)

// ActionReport is emitted per executed action.
type ActionReport struct {
	Action      Action
	TableRow    *TableRow
	Location    string
	Result      ActionResult
	Reason      string
}

// Page is a server-side Discourse topic: its canonical URL and raw
// markdown content.
type Page struct {
	URL     string
	Content string
}

// IndexFile is the local index.md: a title and raw markdown content
// (without the auto-generated navigation table).
type IndexFile struct {
	Title   string
	Content string
}

// Index bundles whatever server and local state is known about the
// top-level index page. Either Server or Local may be nil (e.g. Local
// is nil during a migration, Server is nil on the first ever run).
// Index is the one data-model type that is mutated in place: the
// executor updates Server.URL once a create succeeds so that later
// index rendering uses the fresh link, per §4.8.
type Index struct {
	Server *Page
	Local  *IndexFile
	Name   string
}

// Problem is produced by the checker for each pre-execution validation
// failure.
type Problem struct {
	Path        string
	Description string
}

// DiffSummary is the git summary used while opening a migration PR.
type DiffSummary struct {
	FilesChanged int
	Insertions   int
	Deletions    int
	Summary      string
}

// RunMode selects which top-level workflow the orchestrator executes.
type RunMode int

const (
	ModeReconcile RunMode = iota
	ModeMigrate
)

// PRAction is one of the values the orchestrator/migration planner can
// report for the pull request it drove.
type PRAction int

const (
	PRActionNone PRAction = iota
	PRActionOpened
	PRActionUpdated
	PRActionClosed
)

func (a PRAction) String() string {
	switch a {
	case PRActionOpened:
		return "OPENED"
	case PRActionUpdated:
		return "UPDATED"
	case PRActionClosed:
		return "CLOSED"
	default:
		return "NONE"
	}
}

// Outputs is the full set of values a run produces, serialized to the
// structured JSON sink by the (out-of-scope) CLI front-end.
type Outputs struct {
	IndexURL string            `json:"index_url"`
	Topics   map[string]string `json:"topics"`
	PRLink   string            `json:"pr_link"`
	PRAction string            `json:"pr_action"`

	// Reports and Problems carry the full per-action and per-problem
	// detail behind Topics, for the CLI front-end's Markdown summary
	// (internal/report). They are excluded from the JSON envelope: the
	// structured sink described in §6 only names the four fields above.
	Reports  []ActionReport `json:"-"`
	Problems []Problem      `json:"-"`
}
