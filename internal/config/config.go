// Package config parses and validates the §6 inputs table into a
// Config struct ready to hand to the orchestrator.
package config

import (
	"strconv"
	"strings"

	"github.com/canonical/discourse-gatekeeper/internal/model"
)

// Config is the fully-validated set of run inputs, per §6.
type Config struct {
	DiscourseHost         string
	DiscourseAPIUsername  string
	DiscourseAPIKey       string
	DiscourseCategoryID   int
	GithubToken           string
	BaseBranch            string
	CommitSHA             string
	CharmDir              string
	DryRun                bool
	DeleteTopics          bool
	IgnoreServerAhead     bool
	BaseContentTagName    string
	ContentTagName        string
	LegacyAheadOkTagName  string
}

const (
	defaultBaseBranch         = "main"
	defaultCharmDir           = "."
	defaultBaseContentTagName = "discourse-gatekeeper/base-content"
	defaultContentTagName     = "discourse-gatekeeper/content"
	defaultLegacyAheadOkTag   = "upload-charm-docs/discourse-ahead-ok"
)

// Raw is the unvalidated, string-typed view of the inputs table,
// matching the shape an env-var-driven CLI front-end naturally
// produces (every input arrives as a string).
type Raw struct {
	DiscourseHost        string
	DiscourseAPIUsername string
	DiscourseAPIKey      string
	DiscourseCategoryID  string
	GithubToken          string
	BaseBranch           string
	CommitSHA            string
	CharmDir             string
	DryRun               string
	DeleteTopics         string
	IgnoreServerAhead    string
}

// Parse validates Raw into a Config, applying the defaults named in
// §6 and rejecting a discourse_host that carries a URL scheme.
func Parse(raw Raw) (Config, error) {
	cfg := Config{
		DiscourseHost:        raw.DiscourseHost,
		DiscourseAPIUsername: raw.DiscourseAPIUsername,
		DiscourseAPIKey:      raw.DiscourseAPIKey,
		GithubToken:          raw.GithubToken,
		BaseBranch:           orDefault(raw.BaseBranch, defaultBaseBranch),
		CommitSHA:            raw.CommitSHA,
		CharmDir:             orDefault(raw.CharmDir, defaultCharmDir),
		DryRun:               parseBool(raw.DryRun),
		DeleteTopics:         parseBool(raw.DeleteTopics),
		IgnoreServerAhead:    parseBool(raw.IgnoreServerAhead),
		BaseContentTagName:   defaultBaseContentTagName,
		ContentTagName:       defaultContentTagName,
		LegacyAheadOkTagName: defaultLegacyAheadOkTag,
	}

	if cfg.DiscourseHost == "" {
		return Config{}, model.NewInputError("discourse_host is required", nil)
	}
	if strings.Contains(cfg.DiscourseHost, "://") {
		return Config{}, model.NewInputError("discourse_host must not include a URL scheme: "+cfg.DiscourseHost, nil)
	}

	if raw.DiscourseCategoryID != "" {
		id, err := strconv.Atoi(strings.TrimSpace(raw.DiscourseCategoryID))
		if err != nil {
			return Config{}, model.NewInputError("discourse_category_id must be an integer: "+raw.DiscourseCategoryID, err)
		}
		cfg.DiscourseCategoryID = id
	}

	if cfg.CommitSHA == "" {
		return Config{}, model.NewInputError("commit_sha is required", nil)
	}

	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

