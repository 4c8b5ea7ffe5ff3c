package compose

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"queryforge/internal/core/search"
	"queryforge/internal/spec"
	"queryforge/prompts"
)

const defaultUsageNotes = "引用规范：优先使用Ground Truth（主+辅）作为判分依据；允许引用 references 列表中的公开资料作为补充，" +
	"需标注来源/访问日期/页码（或段落）；若与Ground Truth存在冲突，以Ground Truth为准。"

// postProcess pins the judge-only evidence block to the selected bundle,
// fills defaults, and sanitizes every solver-facing field.
func (s *Service) postProcess(t *Task, in Input) error {
	level, err := in.Spec.NormalizedLevel()
	if err != nil {
		return err
	}
	orientation, err := in.Spec.NormalizedOrientation()
	if err != nil {
		return err
	}

	if strings.TrimSpace(t.QueryID) == "" {
		t.QueryID = in.Spec.QueryID
	}
	t.Level = level
	t.Orientation = orientation
	if t.Industry == "" {
		t.Industry = in.Spec.Industry
	}
	if t.Profession == "" {
		t.Profession = in.Spec.Profession
	}

	if t.Context.Persona.Name == "" && t.Context.UserStatement == "" {
		t.Context = in.Context
	}
	if len(t.ContextSources) == 0 {
		for _, doc := range in.Spec.ContextDocs {
			t.ContextSources = append(t.ContextSources, ContextSource{
				Name:      doc.Title,
				SourceURL: doc.URL,
				LocalPath: doc.Path,
				Snippet:   doc.Summary,
			})
		}
	}

	// The model may have invented its own evidence block; the selected
	// bundle is canonical.
	t.GroundTruth.Primary = in.Bundle.Primary
	t.GroundTruth.Supporting = in.Bundle.Supporting
	if t.GroundTruth.UsageNotes == "" {
		t.GroundTruth.UsageNotes = defaultUsageNotes
	}
	if t.GroundTruth.Cache == nil && len(in.CacheMeta) > 0 {
		t.GroundTruth.Cache = in.CacheMeta
	}

	bundleURLs := in.Bundle.URLSet()
	t.References = t.References[:0]
	for _, result := range in.Results {
		if bundleURLs[result.URL] {
			continue
		}
		t.References = append(t.References, result)
	}
	t.SearchResults = append([]search.Result(nil), in.Results...)

	if t.StandardAnswer.Summary == "" && len(t.StandardAnswer.KeyPoints) == 0 {
		t.StandardAnswer = StandardAnswer{
			Summary: "请基于Ground Truth提炼关键论断并形成可验证的执行方案。",
			KeyPoints: []string{
				"覆盖任务目标、行动步骤与验收标准。",
				"每个关键判断引用Ground Truth并提供验证方式。",
			},
		}
	}
	if t.EvaluationGuide.Summary == "" && len(t.EvaluationGuide.Checkpoints) == 0 {
		t.EvaluationGuide = EvaluationGuide{
			Summary: "评估交付是否满足SOP 8.0（三E、训练/算力红线、安全合规与时间窗口）并与Ground Truth一致。",
			Checkpoints: []string{
				"任务范围、交付格式、验收标准均有明确说明（Executable）。",
				"关键判断可触发高阶能动性，考察目标明确（Examining）。",
				"评分标准可量化、可复核；与参考资料/基准有对齐指标（Evaluable）。",
				"遵守训练/算力红线：training-free；禁止从头训练或长时间/昂贵算力依赖。",
				"引用公开、中立、国际化资料；必要时脱敏；设定并遵守资料使用的时间窗口。",
			},
			ScoringRubric: append([]string(nil), t.GradingRubric...),
		}
	}

	t.SOPVersion = "8.0"
	t.SpecMetadata = in.Spec.ToMetadata()

	dropPrimaryFromProvidedMaterials(t)
	scrubBaselineTerms(t)
	sanitizeInternalScope(t, in.Context)
	enforceLevelCompliance(t)
	return nil
}

var materialURLPattern = regexp.MustCompile(`https?://[^\s)\]"]+`)

// dropPrimaryFromProvidedMaterials strips every solver-facing material entry
// that points at the primary evidence, then backfills from references so the
// list never ends up empty.
func dropPrimaryFromProvidedMaterials(t *Task) {
	if t.GroundTruth.Primary == nil {
		return
	}
	primaryURL := strings.TrimSpace(t.GroundTruth.Primary.URL)
	primaryTitle := strings.TrimSpace(t.GroundTruth.Primary.Title)
	if primaryURL == "" {
		return
	}
	primaryHost := hostOf(primaryURL)

	var kept []string
	for _, item := range t.Inputs.ProvidedMaterials {
		urls := materialURLPattern.FindAllString(item, -1)
		drop := false
		for _, u := range urls {
			if strings.TrimSpace(u) == primaryURL || (primaryHost != "" && hostOf(u) == primaryHost) {
				drop = true
				break
			}
		}
		if !drop && primaryTitle != "" && strings.Contains(item, primaryTitle) {
			drop = true
		}
		if !drop {
			kept = append(kept, item)
		}
	}

	if len(kept) == 0 {
		limit := len(t.References)
		if limit > 3 {
			limit = 3
		}
		for _, ref := range t.References[:limit] {
			u := strings.TrimSpace(ref.URL)
			if u == "" || u == primaryURL {
				continue
			}
			if primaryHost != "" && hostOf(u) == primaryHost {
				continue
			}
			title := strings.TrimSpace(ref.Title)
			if title == "" {
				title = u
			}
			kept = append(kept, fmt.Sprintf("%s: %s", title, u))
			if len(kept) >= 3 {
				break
			}
		}
	}
	t.Inputs.ProvidedMaterials = kept
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

var baselineTermPattern = regexp.MustCompile(`(?i)Ground\s*Truth`)

// scrubBaselineTerms rewrites the literal term "Ground Truth" in every
// solver-facing field. The judge-only ground_truth block is left intact.
func scrubBaselineTerms(t *Task) {
	replace := func(s string) string { return baselineTermPattern.ReplaceAllString(s, "参考资料") }
	applyToSolverFields(t, replace)

	persona := &t.Context.Persona
	persona.Name = replace(persona.Name)
	persona.Description = replace(persona.Description)
	t.Context.UserStatement = replace(t.Context.UserStatement)
	replaceAll(t.Context.Constraints, replace)
	replaceAll(t.Context.AvailableAssets, replace)
	replaceAll(t.Context.SuccessMetrics, replace)
}

var internalScopePatterns = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(公司)?内部资料`), "提供的公开资料"},
	{regexp.MustCompile(`(公司)?内部数据`), "提供的公开数据"},
	{regexp.MustCompile(`(公司)?内部文档`), "提供的参考资料"},
	{regexp.MustCompile(`(公司)?内部报告`), "公开报告"},
	{regexp.MustCompile(`(公司)?内部系统`), "授权的公开系统"},
	{regexp.MustCompile(`内部流程文档`), "提供的流程资料"},
	{regexp.MustCompile(`内部流程`), "公开可验证流程"},
}

var internalScopeKeywords = []string{"内部", "internal", "机密", "confidential"}

// contextSupportsInternalAssets reports whether the task context explicitly
// grants access to internal company material.
func contextSupportsInternalAssets(taskCtx prompts.TaskContext) bool {
	fields := []string{taskCtx.UserStatement, taskCtx.Persona.Description}
	fields = append(fields, taskCtx.Constraints...)
	fields = append(fields, taskCtx.AvailableAssets...)
	fields = append(fields, taskCtx.SuccessMetrics...)

	for _, text := range fields {
		if text == "" {
			continue
		}
		for _, keyword := range internalScopeKeywords {
			if strings.Contains(text, keyword) {
				return true
			}
		}
	}
	return false
}

// sanitizeInternalScope removes demands for internal company material unless
// the task context explicitly grants access to it.
func sanitizeInternalScope(t *Task, taskCtx prompts.TaskContext) {
	if contextSupportsInternalAssets(taskCtx) {
		return
	}

	replace := func(s string) string {
		for _, rule := range internalScopePatterns {
			s = rule.pattern.ReplaceAllString(s, rule.replacement)
		}
		return s
	}
	applyToSolverFields(t, replace)

	const clause = "不得假设额外的公司内部资料，除非已在“提供的资料”中明确列出。"
	existing := t.Inputs.AllowedExternalResearch
	if existing == "" {
		t.Inputs.AllowedExternalResearch = clause
	} else if !strings.Contains(existing, clause) {
		separator := " "
		if strings.HasSuffix(existing, "。") || strings.HasSuffix(existing, ".") ||
			strings.HasSuffix(existing, "；") || strings.HasSuffix(existing, ";") {
			separator = ""
		}
		t.Inputs.AllowedExternalResearch = existing + separator + clause
	}
}

// applyToSolverFields runs a rewrite over every outward-facing text field.
func applyToSolverFields(t *Task, replace func(string) string) {
	t.Title = replace(t.Title)
	t.RoleAndBackground = replace(t.RoleAndBackground)
	t.ToolUsageExpectation = replace(t.ToolUsageExpectation)
	t.EstimatedHumanTime = replace(t.EstimatedHumanTime)
	t.Notes = replace(t.Notes)
	replaceAll(t.TaskObjectives, replace)
	replaceAll(t.GradingRubric, replace)

	replaceAll(t.Deliverables.ExpectedOutputs, replace)
	t.Deliverables.FormatRequirements = replace(t.Deliverables.FormatRequirements)
	t.Deliverables.QualityBar = replace(t.Deliverables.QualityBar)

	replaceAll(t.Inputs.ProvidedMaterials, replace)
	t.Inputs.AllowedExternalResearch = replace(t.Inputs.AllowedExternalResearch)
	t.Inputs.ReferenceUsage = replace(t.Inputs.ReferenceUsage)
	t.Inputs.GroundTruthUsage = replace(t.Inputs.GroundTruthUsage)

	t.StandardAnswer.Summary = replace(t.StandardAnswer.Summary)
	replaceAll(t.StandardAnswer.KeyPoints, replace)

	t.EvaluationGuide.Summary = replace(t.EvaluationGuide.Summary)
	replaceAll(t.EvaluationGuide.Checkpoints, replace)
	replaceAll(t.EvaluationGuide.ScoringRubric, replace)
}

func replaceAll(items []string, replace func(string) string) {
	for i, item := range items {
		items[i] = replace(item)
	}
}

var levelComplianceRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)分布式训练`), "分布式推理/验证"},
	{regexp.MustCompile(`(?i)训练/推理`), "推理/验证"},
	{regexp.MustCompile(`(?i)训练日志`), "推理/验证日志"},
	{regexp.MustCompile(`(?i)训练吞吐`), "推理吞吐"},
	{regexp.MustCompile(`(?i)训练\s*性能`), "推理/验证性能"},
	{regexp.MustCompile(`(?i)训练PPL`), "验证PPL"},
	{regexp.MustCompile(`(?i)训练\s*稳定性`), "验证稳定性"},
	{regexp.MustCompile(`(?i)训练`), "验证"},
	{regexp.MustCompile(`(?i)fine-?tune|微调`), "验证实验"},
	{regexp.MustCompile(`(?i)大规模`), "小规模可复核"},
	{regexp.MustCompile(`(?i)长时间`), "短时"},
}

const levelFourToolExpectation = "以单一核心Agent（Call Code或Deep Research）主导，强调检索-复核-对比；" +
	"禁止大规模训练，允许短时验证实验（≤2 GPU·小时）"

const levelFourNotesGuardrail = "资源与时间护栏：≤1周完成；仅使用公开可获取或合成数据；" +
	"禁止长时间/大规模训练；如需运行实验，仅限短时验证（≤2 GPU·小时）。"

// enforceLevelCompliance rewords L4 tasks to stay training-free and appends
// the resource guardrail to the notes.
func enforceLevelCompliance(t *Task) {
	if t.Level != spec.LevelL4 {
		return
	}

	replace := func(s string) string {
		for _, rule := range levelComplianceRules {
			s = rule.pattern.ReplaceAllString(s, rule.replacement)
		}
		return s
	}
	replaceAll(t.TaskObjectives, replace)
	replaceAll(t.Deliverables.ExpectedOutputs, replace)
	t.Deliverables.FormatRequirements = replace(t.Deliverables.FormatRequirements)
	t.Deliverables.QualityBar = replace(t.Deliverables.QualityBar)
	replaceAll(t.GradingRubric, replace)
	replaceAll(t.EvaluationGuide.Checkpoints, replace)
	replaceAll(t.EvaluationGuide.ScoringRubric, replace)
	replaceAll(t.StandardAnswer.KeyPoints, replace)
	t.StandardAnswer.Summary = replace(t.StandardAnswer.Summary)

	t.ToolUsageExpectation = levelFourToolExpectation
	notes := strings.TrimSpace(t.Notes)
	if notes == "" {
		t.Notes = levelFourNotesGuardrail
	} else {
		t.Notes = notes + " " + levelFourNotesGuardrail
	}
}
