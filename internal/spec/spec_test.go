package spec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryforge/internal/fault"
)

func TestNormalizeSearchQueries(t *testing.T) {
	got := NormalizeSearchQueries("alpha; beta,gamma", "beta", "；delta，alpha")
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, got)

	assert.Empty(t, NormalizeSearchQueries("  ;; , "))
	assert.Empty(t, NormalizeSearchQueries())
}

func validSpec() TaskSpec {
	return TaskSpec{
		QueryID:       "fin-001",
		Industry:      "finance",
		Profession:    "analyst",
		Level:         "l4",
		Scenario:      "quarterly risk review",
		SearchQueries: []string{"basel III liquidity standard; LCR 计算"},
	}
}

func TestValidateNormalizes(t *testing.T) {
	s := validSpec()
	require.NoError(t, s.Validate())
	assert.Equal(t, "L4", s.Level)
	assert.Equal(t, OrientationPositive, s.Orientation)
	assert.Equal(t, "zh", s.Language)
	assert.Equal(t, []string{"basel III liquidity standard", "LCR 计算"}, s.SearchQueries)
	assert.Equal(t, "basel III liquidity standard", s.PrimaryQuery())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TaskSpec)
	}{
		{"bad level", func(s *TaskSpec) { s.Level = "L9" }},
		{"bad orientation", func(s *TaskSpec) { s.Orientation = "sideways" }},
		{"no queries", func(s *TaskSpec) { s.SearchQueries = []string{" ; "} }},
		{"no scenario", func(s *TaskSpec) { s.Scenario = "  " }},
		{"no id", func(s *TaskSpec) { s.QueryID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSpec()
			tc.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.Equal(t, fault.KindStructural, fault.Classify(err))
		})
	}
}

func TestFilterApply(t *testing.T) {
	specs := []TaskSpec{
		{QueryID: "a", Industry: "finance", Profession: "analyst", Level: "L3"},
		{QueryID: "b", Industry: "finance", Profession: "auditor", Level: "L4"},
		{QueryID: "c", Industry: "health", Profession: "analyst", Level: "L4"},
	}

	got := Filter{Industry: "Finance"}.Apply(specs)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].QueryID)
	assert.Equal(t, "b", got[1].QueryID)

	got = Filter{Level: "l4"}.Apply(specs)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].QueryID)

	got = Filter{Limit: 1}.Apply(specs)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].QueryID)

	assert.Empty(t, Filter{Profession: "welder"}.Apply(specs))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `
queries:
  - query_id: fin-001
    level: L4
    scenario: quarterly risk review
    industry: finance
    search_query: "basel III; LCR"
  - query_id: fin-002
    level: l3
    scenario: reconcile ledgers
    search_queries:
      - trial balance checklist
      - 对账 标准流程
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	specs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, []string{"basel III", "LCR"}, specs[0].SearchQueries)
	assert.Equal(t, "L3", specs[1].Level)
	assert.Equal(t, []string{"trial balance checklist", "对账 标准流程"}, specs[1].SearchQueries)
}

func TestLoadJSONBareList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	content := `[
  {"query_id": "x-1", "level": "L5", "scenario": "s", "search_queries": ["alpha", "beta"]}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	specs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "x-1", specs[0].QueryID)
	assert.Equal(t, []string{"alpha", "beta"}, specs[0].SearchQueries)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, fault.KindFatal, fault.Classify(err))
}

func TestLoadInvalidEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `
- query_id: bad-1
  level: L7
  scenario: s
  search_query: q
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, fault.KindStructural, fault.Classify(err))
}
