// Package prompts builds the chat messages that drive task authoring. The
// wording follows SOP V8.0: the model sees the evaluation baseline, but every
// solver-facing field must refer to it only as 参考资料.
package prompts

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"queryforge/internal/core/evidence"
	"queryforge/internal/spec"
)

// MaxContextCharsPerDoc bounds how much of each supplementary document is
// inlined into the user message.
const MaxContextCharsPerDoc = 1800

// Persona is the character on whose behalf the task is framed.
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Seniority   string   `json:"seniority"`
	Description string   `json:"description"`
	Motivations []string `json:"motivations,omitempty"`
	PainPoints  []string `json:"pain_points,omitempty"`
}

// TaskContext carries the persona plus the business framing handed to the
// authoring model and echoed back in the generated task.
type TaskContext struct {
	Persona         Persona  `json:"persona"`
	UserStatement   string   `json:"user_statement"`
	Constraints     []string `json:"constraints,omitempty"`
	AvailableAssets []string `json:"available_assets,omitempty"`
	SuccessMetrics  []string `json:"success_metrics,omitempty"`
}

// ContextBlock is a supplementary document inlined into the prompt.
type ContextBlock struct {
	Name    string
	Path    string
	Content string
}

// BuildMessages assembles the system and user messages for one task spec.
func BuildMessages(s *spec.TaskSpec, taskCtx TaskContext, bundle evidence.Bundle, blocks []ContextBlock) ([]*schema.Message, error) {
	level, err := s.NormalizedLevel()
	if err != nil {
		return nil, err
	}
	orientation, err := s.NormalizedOrientation()
	if err != nil {
		return nil, err
	}
	guideline := LevelGuidelineFor(level)
	orientationMeta := OrientationGuidelineFor(orientation)

	languageInstruction := "Please respond in English."
	if strings.HasPrefix(strings.ToLower(s.Language), "zh") {
		languageInstruction = "请使用中文输出。"
	}

	return []*schema.Message{
		schema.SystemMessage(systemContent(orientation, len(blocks) > 0)),
		schema.UserMessage(userContent(s, level, orientation, guideline, orientationMeta, taskCtx, bundle, blocks, languageInstruction)),
	}, nil
}

func systemContent(orientation string, hasBlocks bool) string {
	var b strings.Builder
	b.WriteString("你是一名为AgencyBench提供高质量Query的命题教师。")
	b.WriteString("你的职责是基于提供的公开资料（以下统一称为‘参考资料’）逆向设计一份高质量的Query，")
	b.WriteString("确保其真实可行、可验证且符合层级定义。输出必须是合法的JSON对象，字段说明见用户指令。")
	b.WriteString("禁止捏造引用；引用必须来自本次提供的参考资料或允许范围内的资料。")
	b.WriteString("重要：‘Ground Truth’为评测端内部使用的基准信息（Judge专用），不得在任务要求中出现‘Ground Truth’相关内容，")
	b.WriteString("对外字段一律使用‘参考资料’或‘提供的资料’指代来源；仅在JSON的`ground_truth`对象中保留评测所需信息。")
	b.WriteString(" ")
	b.WriteString(SOPPrinciples)
	if hasBlocks {
		b.WriteString(" 你将收到若干补充上下文文档，这些内容代表项目方提供的真实背景，需要在命题时吸收其中的约束、术语与工作流要求。")
	}
	if orientation == spec.OrientationInverse {
		b.WriteString(" 当前任务为【负向任务】，需要刻意构造一个基于错误前提或不可行约束的挑战，")
		b.WriteString("让执行者通过批判性推理与验证流程得出“不可完成”或“前提有误”的结论。")
	}
	return b.String()
}

func userContent(
	s *spec.TaskSpec,
	level, orientation string,
	guideline LevelGuideline,
	orientationMeta OrientationGuideline,
	taskCtx TaskContext,
	bundle evidence.Bundle,
	blocks []ContextBlock,
	languageInstruction string,
) string {
	var b strings.Builder
	b.WriteString(languageInstruction)
	b.WriteString("\n\n### 任务层级\n")
	fmt.Fprintf(&b, "- Level: %s（%s）\n", level, guideline.Nickname)
	fmt.Fprintf(&b, "- 核心强调: %s\n", guideline.Focus)
	fmt.Fprintf(&b, "- 耗时预期: %s\n", guideline.Timebox)
	fmt.Fprintf(&b, "- 工具/流程: %s\n", guideline.Tooling)
	fmt.Fprintf(&b, "- 评分重点: %s\n\n", guideline.Evaluation)

	if s.Industry != "" || s.Profession != "" {
		b.WriteString("### 行业与职业\n")
		if s.Industry != "" {
			fmt.Fprintf(&b, "- 行业: %s\n", s.Industry)
		}
		if s.Profession != "" {
			fmt.Fprintf(&b, "- 职业角色: %s\n", s.Profession)
		}
		b.WriteString("\n")
	}

	b.WriteString("### 任务正负向\n")
	fmt.Fprintf(&b, "- 类型: %s\n", orientationMeta.Label)
	fmt.Fprintf(&b, "- 目标: %s\n", orientationMeta.Purpose)
	fmt.Fprintf(&b, "- 成功标准: %s\n", orientationMeta.Success)
	if orientation == spec.OrientationInverse {
		fmt.Fprintf(&b, "\n#### 负向任务构造提示\n%s\n", orientationMeta.Playbook)
	}

	fmt.Fprintf(&b, "\n### 场景设定\n%s\n\n", s.Scenario)
	b.WriteString(personaSection(taskCtx))
	b.WriteString(contextBlockSection(blocks))

	b.WriteString("### 重点关注\n")
	fmt.Fprintf(&b, "任务拆解:\n%s\n\n", bulletList(s.TaskFocus, "- 结合Ground Truth拆解任务关键步骤。"))
	fmt.Fprintf(&b, "交付要求:\n%s\n\n", bulletList(s.DeliverableRequirements, "- 说明交付物格式、长度以及验证要求。"))
	fmt.Fprintf(&b, "评估要点:\n%s\n\n", bulletList(s.EvaluationFocus, "- 依据Ground Truth给出可判分的评价要点。"))

	b.WriteString(groundTruthSection(bundle))
	b.WriteString("\n\n")
	b.WriteString(schemaBlock)
	return b.String()
}

func personaSection(taskCtx TaskContext) string {
	persona := taskCtx.Persona
	motivations := "未指定"
	if len(persona.Motivations) > 0 {
		motivations = strings.Join(persona.Motivations, ", ")
	}
	painPoints := "未指定"
	if len(persona.PainPoints) > 0 {
		painPoints = strings.Join(persona.PainPoints, ", ")
	}

	var b strings.Builder
	b.WriteString("### Persona与任务上下文\n")
	fmt.Fprintf(&b, "- Persona: %s（资历：%s）\n", persona.Name, persona.Seniority)
	fmt.Fprintf(&b, "- Persona描述: %s\n", persona.Description)
	fmt.Fprintf(&b, "- 用户陈述: %s\n", taskCtx.UserStatement)
	fmt.Fprintf(&b, "- 核心动机: %s\n", motivations)
	fmt.Fprintf(&b, "- 主要痛点: %s\n", painPoints)
	fmt.Fprintf(&b, "- 约束条件:\n%s\n", bulletList(taskCtx.Constraints, "- 无"))
	fmt.Fprintf(&b, "- 可用资源:\n%s\n", bulletList(taskCtx.AvailableAssets, "- 无"))
	fmt.Fprintf(&b, "- 成功判据:\n%s\n", bulletList(taskCtx.SuccessMetrics, "- 无"))
	return b.String()
}

func contextBlockSection(blocks []ContextBlock) string {
	var segments []string
	for _, block := range blocks {
		content := strings.TrimSpace(block.Content)
		if content == "" {
			continue
		}
		if len(content) > MaxContextCharsPerDoc {
			content = strings.TrimRight(content[:MaxContextCharsPerDoc], " \n\t") + "\n...[内容已截断]"
		}
		label := block.Name
		if label == "" {
			label = "上下文文档"
		}
		if block.Path != "" {
			label += " - " + block.Path
		}
		segments = append(segments, fmt.Sprintf("#### %s\n%s", label, content))
	}
	if len(segments) == 0 {
		return ""
	}
	return "### 补充上下文资料\n" + strings.Join(segments, "\n\n") + "\n\n"
}

func groundTruthSection(bundle evidence.Bundle) string {
	var b strings.Builder
	b.WriteString("### 评测基准\n")
	if bundle.Primary != nil {
		fmt.Fprintf(&b, "Ground Truth标题: %s\n", bundle.Primary.Title)
		fmt.Fprintf(&b, "链接: %s\n", bundle.Primary.URL)
		fmt.Fprintf(&b, "摘要: %s", bundle.Primary.Snippet)
		if bundle.Primary.Source != "" {
			fmt.Fprintf(&b, "\n来源: %s", bundle.Primary.Source)
		}
		if bundle.Primary.Date != "" {
			fmt.Fprintf(&b, "\n日期: %s", bundle.Primary.Date)
		}
	} else {
		b.WriteString("（本次未能锁定主参考资料，请基于场景设定与补充上下文命题。）")
	}

	if len(bundle.Supporting) > 0 {
		b.WriteString("\n参考资料：")
		for i, source := range bundle.Supporting {
			snippet := source.Snippet
			if snippet == "" {
				snippet = "无摘要"
			}
			fmt.Fprintf(&b, "\n- %d. %s | %s | %s", i+1, source.Title, source.URL, snippet)
		}
	} else {
		b.WriteString("\n参考资料：无额外参考资料，如必要请在任务中自行搜索。")
	}
	return b.String()
}

func bulletList(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

const schemaBlock = "请根据上述信息生成一个JSON结构，字段要求如下：\n" +
	"{\n" +
	"  \"query_id\": string,\n" +
	"  \"level\": \"L3\" | \"L4\" | \"L5\",\n" +
	"  \"title\": string,\n" +
	"  \"role_and_background\": string,\n" +
	"  \"task_objectives\": [string, ...],\n" +
	"  \"inputs_and_resources\": {\n" +
	"      \"provided_materials\": [string, ...],\n" +
	"      \"allowed_external_research\": string,\n" +
	"      \"reference_usage\": string\n" +
	"  },\n" +
	"  \"deliverables\": {\n" +
	"      \"expected_outputs\": [string, ...],\n" +
	"      \"format_requirements\": string,\n" +
	"      \"quality_bar\": string\n" +
	"  },\n" +
	"  \"grading_rubric\": [string, ...],\n" +
	"  \"tool_usage_expectation\": string,\n" +
	"  \"estimated_human_time\": string,\n" +
	"  \"context\": {\n" +
	"      \"persona\": {\n" +
	"          \"id\": string,\n" +
	"          \"name\": string,\n" +
	"          \"seniority\": string,\n" +
	"          \"description\": string,\n" +
	"          \"motivations\": [string, ...],\n" +
	"          \"pain_points\": [string, ...]\n" +
	"      },\n" +
	"      \"user_statement\": string,\n" +
	"      \"constraints\": [string, ...],\n" +
	"      \"available_assets\": [string, ...],\n" +
	"      \"success_metrics\": [string, ...]\n" +
	"  },\n" +
	"  \"ground_truth\": {\n" +
	"      \"primary\": {\n" +
	"          \"title\": string,\n" +
	"          \"url\": string,\n" +
	"          \"snippet\": string,\n" +
	"          \"source\": string | null,\n" +
	"          \"date\": string | null,\n" +
	"          \"search_query\": string | null\n" +
	"      },\n" +
	"      \"supporting\": [\n" +
	"          {\n" +
	"              \"title\": string,\n" +
	"              \"url\": string,\n" +
	"              \"snippet\": string,\n" +
	"              \"source\": string | null,\n" +
	"              \"date\": string | null,\n" +
	"              \"search_query\": string | null\n" +
	"          }, ...\n" +
	"      ],\n" +
	"      \"usage_notes\": string\n" +
	"  },\n" +
	"  \"references\": [\n" +
	"      {\n" +
	"          \"title\": string,\n" +
	"          \"url\": string,\n" +
	"          \"snippet\": string,\n" +
	"          \"source\": string | null,\n" +
	"          \"date\": string | null\n" +
	"      }, ...\n" +
	"  ],\n" +
	"  \"standard_answer\": {\n" +
	"      \"summary\": string,\n" +
	"      \"key_points\": [string, ...]\n" +
	"  },\n" +
	"  \"evaluation_guide\": {\n" +
	"      \"summary\": string,\n" +
	"      \"checkpoints\": [string, ...],\n" +
	"      \"scoring_rubric\": [string, ...]\n" +
	"  },\n" +
	"  \"notes\": string\n" +
	"}\n\n" +
	"要求：\n" +
	"1. 三E落实：确保Examining/Executable/Evaluable可落地，交付物与评分Rubric必须可客观验证/量化。\n" +
	"2. 角色、组织、业务背景要真实可信，即使场景给出这是智能体的任务也不要说这是给AI布置的任务，而是要改用一个存在的真实职业角色与业务场景\n" +
	"3. 交付可评：在deliverables.quality_bar与evaluation_guide中给出可量化标准/阈值（尤其L4需包含与参考资料/基准的一致性指标）。\n" +
	"4. 算力与训练红线：任务须training-free，禁止从头训练或长时间/昂贵算力依赖\n" +
	"5. 时间窗口：根据参考资料和Ground Truth的发布时间设置资料使用时间窗口，并写入inputs_and_resources.allowed_external_research或notes中。\n" +
	"6. 信息源限制：大部分情况不需要限制检索范围，如需限制检索范围，请在inputs_and_resources.reference_usage说明（如‘仅限提供文档库，不开放互联网搜索’）。\n" +
	"7. 红线/绿色标准自检：在evaluation_guide.checkpoints列出本级别红线与绿色标准自检项，以便评测Agent判分。\n" +
	"8. 输出中不得包含Markdown标记，仅返回纯JSON（必须是json对象）；notes可提示风险与避免泄漏Ground Truth的方法。\n" +
	"9. 交付物单一：交付物只能有一个报告和/或一个代码仓库，不得要求提交多份报告；请在deliverables.format_requirements中明确说明。\n"
