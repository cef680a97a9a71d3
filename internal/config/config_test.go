package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(Raw{DiscourseHost: "discourse.example.com", CommitSHA: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.BaseBranch)
	assert.Equal(t, ".", cfg.CharmDir)
	assert.False(t, cfg.DryRun)
	assert.False(t, cfg.DeleteTopics)
}

func TestParse_RejectsScheme(t *testing.T) {
	_, err := Parse(Raw{DiscourseHost: "https://discourse.example.com", CommitSHA: "abc"})
	require.Error(t, err)
}

func TestParse_RequiresHostAndCommit(t *testing.T) {
	_, err := Parse(Raw{})
	require.Error(t, err)
}

func TestParse_BooleansAndCategoryID(t *testing.T) {
	cfg, err := Parse(Raw{
		DiscourseHost:       "discourse.example.com",
		CommitSHA:           "abc",
		DryRun:              "true",
		DeleteTopics:        "1",
		DiscourseCategoryID: "42",
	})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.DeleteTopics)
	assert.Equal(t, 42, cfg.DiscourseCategoryID)
}

func TestParse_InvalidCategoryID(t *testing.T) {
	_, err := Parse(Raw{DiscourseHost: "discourse.example.com", CommitSHA: "abc", DiscourseCategoryID: "not-a-number"})
	require.Error(t, err)
}
