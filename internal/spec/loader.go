package spec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"queryforge/internal/fault"
)

// StringList accepts either a single scalar or a sequence in config files,
// so `search_query: "a; b"` and `search_queries: [a, b]` both work.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	}
	return fmt.Errorf("search query must be a string or a list of strings")
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = StringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("search query must be a string or a list of strings")
	}
	*l = StringList(items)
	return nil
}

type rawSpec struct {
	QueryID                 string         `yaml:"query_id" json:"query_id"`
	Industry                string         `yaml:"industry" json:"industry"`
	Profession              string         `yaml:"profession" json:"profession"`
	Level                   string         `yaml:"level" json:"level"`
	Orientation             string         `yaml:"orientation" json:"orientation"`
	Language                string         `yaml:"language" json:"language"`
	Scenario                string         `yaml:"scenario" json:"scenario"`
	TaskFocus               []string       `yaml:"task_focus" json:"task_focus"`
	DeliverableRequirements []string       `yaml:"deliverable_requirements" json:"deliverable_requirements"`
	EvaluationFocus         []string       `yaml:"evaluation_focus" json:"evaluation_focus"`
	Notes                   string         `yaml:"notes" json:"notes"`
	SearchQuery             StringList     `yaml:"search_query" json:"search_query"`
	SearchQueries           StringList     `yaml:"search_queries" json:"search_queries"`
	PersonaRef              string         `yaml:"persona_ref" json:"persona_ref"`
	ContextDocs             []ContextDoc   `yaml:"context_documents" json:"context_documents"`
	Metadata                map[string]any `yaml:"task_metadata" json:"task_metadata"`
}

type rawCatalog struct {
	Queries []rawSpec `yaml:"queries" json:"queries"`
}

// Load reads a spec catalog from a YAML or JSON file. The file may be a
// bare list of entries or an object with a top-level `queries` key. Each
// entry is validated before the list is returned.
func Load(path string) ([]TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Fatal(fmt.Errorf("reading spec catalog: %w", err))
	}

	var entries []rawSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = decodeCatalog(data, func(out any) error { return yaml.Unmarshal(data, out) })
	case ".json":
		entries, err = decodeCatalog(data, func(out any) error { return json.Unmarshal(data, out) })
	default:
		return nil, fault.Fatalf("spec catalog %q must be .yaml, .yml or .json", path)
	}
	if err != nil {
		return nil, fault.Fatal(fmt.Errorf("parsing %s: %w", path, err))
	}

	specs := make([]TaskSpec, 0, len(entries))
	for _, raw := range entries {
		queries := raw.SearchQueries
		if len(queries) == 0 {
			queries = raw.SearchQuery
		}
		s := TaskSpec{
			QueryID:                 raw.QueryID,
			Industry:                raw.Industry,
			Profession:              raw.Profession,
			Level:                   raw.Level,
			Orientation:             raw.Orientation,
			Language:                raw.Language,
			Scenario:                raw.Scenario,
			TaskFocus:               raw.TaskFocus,
			DeliverableRequirements: raw.DeliverableRequirements,
			EvaluationFocus:         raw.EvaluationFocus,
			Notes:                   raw.Notes,
			SearchQueries:           []string(queries),
			PersonaRef:              raw.PersonaRef,
			ContextDocs:             raw.ContextDocs,
			Metadata:                raw.Metadata,
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func decodeCatalog(data []byte, unmarshal func(any) error) ([]rawSpec, error) {
	var list []rawSpec
	if err := unmarshal(&list); err == nil {
		return list, nil
	}
	var catalog rawCatalog
	if err := unmarshal(&catalog); err != nil {
		return nil, err
	}
	if catalog.Queries == nil {
		return nil, fmt.Errorf("catalog must be a list or contain a 'queries' key")
	}
	return catalog.Queries, nil
}
