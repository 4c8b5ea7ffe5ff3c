package prompts

import "queryforge/internal/spec"

// LevelGuideline describes how a task level constrains scope, effort and
// grading. The text is injected verbatim into the authoring prompt.
type LevelGuideline struct {
	Nickname   string
	Timebox    string
	Focus      string
	Evaluation string
	Tooling    string
}

var levelGuidelines = map[string]LevelGuideline{
	spec.LevelL3: {
		Nickname:   "基础题 / 课后习题",
		Timebox:    "预期人类投入：数小时至1天。",
		Focus:      "任务必须是封闭且有明确验收标准的模块。强调实现、调试、验证，避免开放式探索或需要大型算力。",
		Evaluation: "评分侧重功能正确性、是否通过验证/测试、调试过程中的问题排查能力。",
		Tooling:    "主要依赖单一Agent模式（如Claude Code或Deep Research）完成，多步复杂调研不是重点。",
	},
	spec.LevelL4: {
		Nickname:   "综合题 / 课程大作业",
		Timebox:    "预期人类投入：数天至1周。",
		Focus:      "需要复现一个已有高质量成果，体现调研、规划、实现与对比分析的完整流程。",
		Evaluation: "评分要关注产出与Ground Truth的一致性、方案合理性、调研深度。",
		Tooling:    "通常依赖单一核心Agent模式，但需要多轮迭代、系统的信息整合与复现步骤。",
	},
	spec.LevelL5: {
		Nickname:   "开放题 / 创新题",
		Timebox:    "预期人类投入：至少1个月。",
		Focus:      "面向开放性战略问题，在约束条件下提出创新方案。应鼓励多轮调研、实验、分析。",
		Evaluation: "评分关注逻辑严密性、创新性、可行性，以及与行业挑战或后验事件的契合度。",
		Tooling:    "要求Deep Research与Claude Code等多种能力交替使用，模拟调研-验证循环。",
	},
}

// LevelGuidelineFor returns the guideline for a normalized level. Unknown
// levels fall back to L3 so the prompt never renders empty sections.
func LevelGuidelineFor(level string) LevelGuideline {
	if g, ok := levelGuidelines[level]; ok {
		return g
	}
	return levelGuidelines[spec.LevelL3]
}

// OrientationGuideline frames the task as a genuine deliverable or as a
// deliberately flawed trap used to probe critical thinking.
type OrientationGuideline struct {
	Label    string
	Purpose  string
	Success  string
	Playbook string
}

var orientationGuidelines = map[string]OrientationGuideline{
	spec.OrientationPositive: {
		Label:   "正向任务",
		Purpose: "设计一个可执行、可验证的高质量任务，帮助评测模型在真实业务中的交付能力。",
		Success: "交付物满足要求、完成度和质量可被客观评估。",
	},
	spec.OrientationInverse: {
		Label:   "负向任务",
		Purpose: "设计一个看似合理但本质不可完成或基于错误前提的陷阱任务，以评测智能体的批判性思维与证伪能力。",
		Success: "理想输出应当引导执行者识别矛盾、验证不可行性，并提交证据链证明为何任务无法完成或前提有误。",
		Playbook: "构造要点：构造一个看似合理但本质不可完成或基于错误前提的陷阱任务，以评测智能体的批判性思维与证伪能力。\n" +
			"- 违反已知规律或关键约束，让任务目标与领域原理冲突；\n" +
			"- 基于错误或不可复现的数据/结论，要求执行者通过实验或复盘证明标准答案不成立；\n" +
			"- 设定远超现实资源/能力边界的目标，要求智能体在多轮探索后得出“不可行”结论；\n" +
			"评测重点是执行者是否能识别陷阱、提供推理/实验日志，最终形成有据可依的‘拒绝执行’结论。" +
			"不要在标题和任务要求中出现‘负向任务’‘带有冲突’等字眼暗示执行者这是负向任务。",
	},
}

// OrientationGuidelineFor returns the guideline for a normalized orientation,
// defaulting to positive.
func OrientationGuidelineFor(orientation string) OrientationGuideline {
	if g, ok := orientationGuidelines[orientation]; ok {
		return g
	}
	return orientationGuidelines[spec.OrientationPositive]
}

// SOPPrinciples is the numbered rule block every authoring prompt carries.
const SOPPrinciples = "SOP核心原则提醒：\n" +
	"1. 教师命题范式：先确定考察能力，然后找到高质量现实成果(Ground Truth)，再生成评分Rubric，再逆向设计题目；每道题都要像专业老师或企业领导布置的真实作业，禁止凭空脑洞。\n" +
	"2. Ground Truth先行：必须先锁定可获取、可验证、质量高的资料（论文、研报、系统、法规等），并作为题目的最终标准答案。\n" +
	"3. 真实性与场景化：角色、组织、业务背景要真实可信，不要说这是给AI布置的任务，而是像老师或领导布置的真实任务，题目来源于实践痛点；避免‘AI味’或不可落地的幻想任务。\n" +
	"4. 三E原则：Examining（考察能力清晰、能触发高阶能动性）；Executable（任务可执行，信息充分、边界明确、无需额外神秘上下文）；Evaluable（可评估，产出具备客观评分标准，可根据Ground Truth进行客观评分）。\n" +
	"5. 层级与耗时匹配：L3=封闭模块+实现/调试（≤1天，不得要求复杂规划或重训练）；L4=复现已有成果+信息整合（数天至1周）；L5=开放战略题+Deep Research与Claude Code循环（≥1月）。严禁跨级滥用。\n" +
	"6. 质量红线：保持题型多样；L3不能需要多轮复杂推理/大算力/L5式开放目标；L4/L5必须有可对比或可回溯的评估标准；任何层级都要提供可验证的交付物与评价指标。\n" +
	"7. 安全与可控性：仅使用公开、中立、国际化数据源；避免隐私、内部统计、敏感政治内容；必要时做脱敏（如‘某市’、‘某公司’）。应根据参考资料和Ground Truth的发布时间设置资料使用时间窗口（如‘仅用至YYYY-MM-DD前信息’），并可限制信息源（如仅限给定文档库）。\n" +
	"8. 训练与算力红线：任务须training-free，禁止从头训练或长时间/昂贵算力依赖；评测以实现、复现、分析为主，不以训练为主。\n" +
	"9. 自检闭环：题目需可被目标Agent实际执行，并附自检/验证提示；如任务不可完成，必须设计清晰的证伪路径而非含糊拒绝。\n" +
	"10. 统一评估框架：所有Query都应让评测Agent依据Ground Truth或Rubric客观打分，不得依赖隐性知识或无法重复的主观判断。"
