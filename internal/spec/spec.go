// Package spec holds the task specification model that drives the pipeline.
package spec

import (
	"regexp"
	"strings"

	"queryforge/internal/fault"
)

// Levels accepted by Validate.
const (
	LevelL3 = "L3"
	LevelL4 = "L4"
	LevelL5 = "L5"
)

// Orientations accepted by Validate.
const (
	OrientationPositive = "positive"
	OrientationInverse  = "inverse"
)

// ContextDoc is a pre-supplied reference document attached to a spec.
type ContextDoc struct {
	Title   string `yaml:"title" json:"title"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	URL     string `yaml:"url,omitempty" json:"url,omitempty"`
	Summary string `yaml:"summary,omitempty" json:"summary,omitempty"`
}

// TaskSpec configures one evaluation item to build.
type TaskSpec struct {
	QueryID                 string         `yaml:"query_id" json:"query_id"`
	Industry                string         `yaml:"industry,omitempty" json:"industry,omitempty"`
	Profession              string         `yaml:"profession,omitempty" json:"profession,omitempty"`
	Level                   string         `yaml:"level" json:"level"`
	Orientation             string         `yaml:"orientation,omitempty" json:"orientation,omitempty"`
	Language                string         `yaml:"language,omitempty" json:"language,omitempty"`
	Scenario                string         `yaml:"scenario" json:"scenario"`
	TaskFocus               []string       `yaml:"task_focus,omitempty" json:"task_focus,omitempty"`
	DeliverableRequirements []string       `yaml:"deliverable_requirements,omitempty" json:"deliverable_requirements,omitempty"`
	EvaluationFocus         []string       `yaml:"evaluation_focus,omitempty" json:"evaluation_focus,omitempty"`
	Notes                   string         `yaml:"notes,omitempty" json:"notes,omitempty"`
	SearchQueries           []string       `yaml:"search_queries" json:"search_queries"`
	PersonaRef              string         `yaml:"persona_ref,omitempty" json:"persona_ref,omitempty"`
	ContextDocs             []ContextDoc   `yaml:"context_documents,omitempty" json:"context_documents,omitempty"`
	Metadata                map[string]any `yaml:"task_metadata,omitempty" json:"task_metadata,omitempty"`
}

var querySplitter = regexp.MustCompile(`[;,，；]+`)

// NormalizeSearchQueries splits raw query strings on comma/semicolon
// separators (full-width included), trims, and dedups preserving order.
func NormalizeSearchQueries(raw ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range raw {
		for _, part := range querySplitter.Split(item, -1) {
			q := strings.TrimSpace(part)
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			out = append(out, q)
		}
	}
	return out
}

// NormalizedLevel upper-cases the level and checks it against the known set.
func (s *TaskSpec) NormalizedLevel() (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(s.Level))
	switch upper {
	case LevelL3, LevelL4, LevelL5:
		return upper, nil
	}
	return "", fault.Structuralf("unsupported level %q for %s, expected L3/L4/L5", s.Level, s.QueryID)
}

// NormalizedOrientation lower-cases the orientation, defaulting to positive.
func (s *TaskSpec) NormalizedOrientation() (string, error) {
	value := strings.ToLower(strings.TrimSpace(s.Orientation))
	if value == "" {
		value = OrientationPositive
	}
	switch value {
	case OrientationPositive, OrientationInverse:
		return value, nil
	}
	return "", fault.Structuralf("unsupported orientation %q for %s, expected positive or inverse", s.Orientation, s.QueryID)
}

// PrimaryQuery returns the first seed query.
func (s *TaskSpec) PrimaryQuery() string {
	if len(s.SearchQueries) == 0 {
		return ""
	}
	return s.SearchQueries[0]
}

// Validate normalizes level/orientation/queries in place and reports
// structural faults for anything unusable.
func (s *TaskSpec) Validate() error {
	if strings.TrimSpace(s.QueryID) == "" {
		return fault.Structuralf("spec is missing query_id")
	}
	level, err := s.NormalizedLevel()
	if err != nil {
		return err
	}
	s.Level = level

	orientation, err := s.NormalizedOrientation()
	if err != nil {
		return err
	}
	s.Orientation = orientation

	s.SearchQueries = NormalizeSearchQueries(s.SearchQueries...)
	if len(s.SearchQueries) == 0 {
		return fault.Structuralf("search queries for %q must not be empty", s.QueryID)
	}
	if s.Language == "" {
		s.Language = "zh"
	}
	if strings.TrimSpace(s.Scenario) == "" {
		return fault.Structuralf("spec %q is missing a scenario", s.QueryID)
	}
	return nil
}

// Metadata view of the spec used by the packager's query.json.
func (s *TaskSpec) ToMetadata() map[string]any {
	payload := map[string]any{
		"query_id":       s.QueryID,
		"level":          s.Level,
		"language":       s.Language,
		"search_query":   s.PrimaryQuery(),
		"search_queries": append([]string(nil), s.SearchQueries...),
		"notes":          s.Notes,
		"orientation":    s.Orientation,
		"industry":       s.Industry,
		"profession":     s.Profession,
	}
	if len(s.Metadata) > 0 {
		payload["task_metadata"] = s.Metadata
	}
	if len(s.ContextDocs) > 0 {
		payload["context_documents"] = s.ContextDocs
	}
	return payload
}

// Filter narrows a spec list by optional industry/profession/level values
// and applies a positive limit after filtering. Input order is preserved.
type Filter struct {
	Industry   string
	Profession string
	Level      string
	Limit      int
}

func (f Filter) Apply(specs []TaskSpec) []TaskSpec {
	var out []TaskSpec
	for _, s := range specs {
		if f.Industry != "" && !strings.EqualFold(s.Industry, f.Industry) {
			continue
		}
		if f.Profession != "" && !strings.EqualFold(s.Profession, f.Profession) {
			continue
		}
		if f.Level != "" && !strings.EqualFold(s.Level, f.Level) {
			continue
		}
		out = append(out, s)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
