package compose

import (
	"fmt"
	"strings"

	"queryforge/internal/core/search"
	"queryforge/internal/spec"
)

// templateTask builds a deterministic, rule-based payload without the LLM.
// Post-processing still runs on the result, so the same sanitization and
// evidence pinning apply.
func (s *Service) templateTask(in Input) (*Task, error) {
	level, err := in.Spec.NormalizedLevel()
	if err != nil {
		return nil, err
	}
	orientation, err := in.Spec.NormalizedOrientation()
	if err != nil {
		return nil, err
	}

	title := in.Spec.QueryID
	primaryTitle := ""
	primaryURL := ""
	if in.Bundle.Primary != nil {
		primaryTitle = in.Bundle.Primary.Title
		primaryURL = in.Bundle.Primary.URL
		if primaryTitle != "" {
			title = primaryTitle
		}
	}

	scenario := strings.TrimSpace(in.Spec.Scenario)
	if scenario == "" {
		scenario = "需要在有限时间内完成任务并通过评估。"
	}

	objectives := append([]string(nil), in.Spec.TaskFocus...)
	if len(objectives) == 0 {
		objectives = []string{"围绕参考资料梳理关键步骤，形成符合SOP的执行计划。"}
	}
	expectedOutputs := append([]string(nil), in.Spec.DeliverableRequirements...)
	if len(expectedOutputs) == 0 {
		expectedOutputs = []string{"提交结构化主文档（背景/方法/结果/下一步），可复核。"}
	}
	if orientation == spec.OrientationInverse {
		objectives = append(objectives, "识别前提矛盾，提交证伪流程与日志。")
		expectedOutputs = append(expectedOutputs, "提交不可完成性证明及证据链。")
	}
	evaluationFocus := append([]string(nil), in.Spec.EvaluationFocus...)
	if len(evaluationFocus) == 0 {
		evaluationFocus = []string{"可验证性与可追溯性；与参考资料一致。"}
	}

	provided := []string{"项目提供的上下文资料（见context字段）。"}
	if primaryTitle != "" {
		provided = append([]string{fmt.Sprintf("主参考来源：%s（%s）", primaryTitle, primaryURL)}, provided...)
	}
	referenceUsage := "关键论断需引用参考资料，标注章节/段落/URL锚点。"
	if primaryTitle != "" {
		referenceUsage = fmt.Sprintf("关键论断需引用参考资料（如《%s》），标注章节/段落/URL锚点。", primaryTitle)
	}

	titlePrefix := "正向"
	if orientation == spec.OrientationInverse {
		titlePrefix = "逆向"
	}

	limit := len(in.Results)
	if limit > 5 {
		limit = 5
	}
	references := append([]search.Result(nil), in.Results[:limit]...)

	return &Task{
		QueryID:           in.Spec.QueryID,
		Level:             level,
		Orientation:       orientation,
		Title:             fmt.Sprintf("%s · %s", titlePrefix, title),
		RoleAndBackground: scenario,
		TaskObjectives:    objectives,
		Inputs: InputsAndResources{
			ProvidedMaterials:       provided,
			AllowedExternalResearch: "优先使用‘参考资料/提供的资料’；如需补充，请限于公开可验证资料，记录来源与访问日期。",
			ReferenceUsage:          referenceUsage,
		},
		Deliverables: Deliverables{
			ExpectedOutputs:    expectedOutputs,
			FormatRequirements: "建议Markdown结构化呈现；表格注明来源与口径。",
			QualityBar:         strings.Join(evaluationFocus, "; "),
		},
		GradingRubric: evaluationFocus,
		ToolUsageExpectation: "以单一核心Agent（Call Code或Deep Research）主导，强调检索-复核-对比；" +
			"禁止大规模训练，允许短时验证实验（≤2 GPU·小时）",
		Context:    in.Context,
		References: references,
		Notes:      strings.TrimSpace(in.Spec.Notes),
		Industry:   in.Spec.Industry,
		Profession: in.Spec.Profession,
		Provenance: ProvenanceTemplate,
	}, nil
}
