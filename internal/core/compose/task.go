package compose

import (
	"strings"

	"queryforge/internal/core/evidence"
	"queryforge/internal/core/search"
	"queryforge/internal/fault"
	"queryforge/prompts"
)

// Provenance values recorded on a built task.
const (
	ProvenanceLLM      = "llm"
	ProvenanceTemplate = "template-fallback"
)

// InputsAndResources is the solver-facing material list.
type InputsAndResources struct {
	ProvidedMaterials       []string `json:"provided_materials"`
	AllowedExternalResearch string   `json:"allowed_external_research,omitempty"`
	ReferenceUsage          string   `json:"reference_usage,omitempty"`
	GroundTruthUsage        string   `json:"ground_truth_usage,omitempty"`
}

// Deliverables describes what the solver must hand in.
type Deliverables struct {
	ExpectedOutputs    []string `json:"expected_outputs"`
	FormatRequirements string   `json:"format_requirements,omitempty"`
	QualityBar         string   `json:"quality_bar,omitempty"`
}

// StandardAnswer is the judge-facing answer sketch.
type StandardAnswer struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// EvaluationGuide tells the judge how to score the deliverable.
type EvaluationGuide struct {
	Summary       string   `json:"summary"`
	Checkpoints   []string `json:"checkpoints,omitempty"`
	ScoringRubric []string `json:"scoring_rubric,omitempty"`
}

// GroundTruth is the judge-only evidence block. Cache carries local copies of
// the evidence payloads when downloading is enabled.
type GroundTruth struct {
	Primary    *evidence.Source  `json:"primary,omitempty"`
	Supporting []evidence.Source `json:"supporting,omitempty"`
	UsageNotes string            `json:"usage_notes,omitempty"`
	Cache      map[string]any    `json:"cache,omitempty"`
}

// ContextSource records where a supplementary context document came from.
type ContextSource struct {
	Name      string `json:"name,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// Task is the fully built evaluation item.
type Task struct {
	QueryID              string               `json:"query_id"`
	Level                string               `json:"level"`
	Orientation          string               `json:"orientation"`
	Title                string               `json:"title"`
	RoleAndBackground    string               `json:"role_and_background"`
	TaskObjectives       []string             `json:"task_objectives"`
	Inputs               InputsAndResources   `json:"inputs_and_resources"`
	Deliverables         Deliverables         `json:"deliverables"`
	GradingRubric        []string             `json:"grading_rubric"`
	ToolUsageExpectation string               `json:"tool_usage_expectation,omitempty"`
	EstimatedHumanTime   string               `json:"estimated_human_time,omitempty"`
	Context              prompts.TaskContext  `json:"context"`
	ContextSources       []ContextSource      `json:"context_sources,omitempty"`
	GroundTruth          GroundTruth          `json:"ground_truth"`
	References           []search.Result      `json:"references"`
	SearchResults        []search.Result      `json:"search_results"`
	StandardAnswer       StandardAnswer       `json:"standard_answer"`
	EvaluationGuide      EvaluationGuide      `json:"evaluation_guide"`
	Notes                string               `json:"notes,omitempty"`
	Industry             string               `json:"industry,omitempty"`
	Profession           string               `json:"profession,omitempty"`
	SOPVersion           string               `json:"sop_version"`
	SpecMetadata         map[string]any       `json:"spec_metadata,omitempty"`
	Provenance           string               `json:"provenance,omitempty"`
}

// validate rejects model output that lacks the fields a solver needs to start
// working. Missing defaults elsewhere are filled by post-processing instead.
func (t *Task) validate() error {
	var missing []string
	if strings.TrimSpace(t.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(t.RoleAndBackground) == "" {
		missing = append(missing, "role_and_background")
	}
	if len(t.TaskObjectives) == 0 {
		missing = append(missing, "task_objectives")
	}
	if len(t.Deliverables.ExpectedOutputs) == 0 {
		missing = append(missing, "deliverables.expected_outputs")
	}
	if len(t.GradingRubric) == 0 {
		missing = append(missing, "grading_rubric")
	}
	if len(missing) > 0 {
		return fault.Structuralf("model output missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
