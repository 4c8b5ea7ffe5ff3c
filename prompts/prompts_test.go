package prompts

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryforge/internal/core/evidence"
	"queryforge/internal/spec"
)

func sampleSpec(orientation string) *spec.TaskSpec {
	return &spec.TaskSpec{
		QueryID:       "q-001",
		Industry:      "金融",
		Profession:    "风控分析师",
		Level:         "L4",
		Orientation:   orientation,
		Language:      "zh",
		Scenario:      "复现巴塞尔协议III流动性覆盖率的测算流程。",
		TaskFocus:     []string{"梳理LCR计算口径"},
		SearchQueries: []string{"basel iii lcr"},
	}
}

func sampleContext() TaskContext {
	return TaskContext{
		Persona: Persona{
			ID:          "p-1",
			Name:        "资深风控分析师",
			Seniority:   "senior",
			Description: "负责流动性风险指标的季度申报。",
			Motivations: []string{"按时完成申报"},
			PainPoints:  []string{"口径不一致"},
		},
		UserStatement:  "需要在一周内完成测算复现。",
		Constraints:    []string{"仅使用公开资料"},
		SuccessMetrics: []string{"结果与监管披露一致"},
	}
}

func sampleBundle() evidence.Bundle {
	return evidence.Bundle{
		Primary: &evidence.Source{
			Title:   "Basel III: The Liquidity Coverage Ratio",
			URL:     "https://www.bis.org/publ/bcbs238.pdf",
			Snippet: "LCR standard text.",
			Source:  "serper",
		},
		Supporting: []evidence.Source{
			{Title: "LCR FAQ", URL: "https://www.bis.org/publ/bcbs284.pdf"},
		},
	}
}

func TestBuildMessagesPositive(t *testing.T) {
	messages, err := BuildMessages(sampleSpec("positive"), sampleContext(), sampleBundle(), nil)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	system := messages[0]
	assert.Equal(t, schema.System, system.Role)
	assert.Contains(t, system.Content, "命题教师")
	assert.Contains(t, system.Content, "SOP核心原则提醒")
	assert.NotContains(t, system.Content, "负向任务】")

	user := messages[1]
	assert.Equal(t, schema.User, user.Role)
	assert.Contains(t, user.Content, "请使用中文输出。")
	assert.Contains(t, user.Content, "Level: L4（综合题 / 课程大作业）")
	assert.Contains(t, user.Content, "- 行业: 金融")
	assert.Contains(t, user.Content, "Ground Truth标题: Basel III: The Liquidity Coverage Ratio")
	assert.Contains(t, user.Content, "- 1. LCR FAQ | https://www.bis.org/publ/bcbs284.pdf | 无摘要")
	assert.Contains(t, user.Content, `"query_id": string`)
	assert.Contains(t, user.Content, "交付物单一")
}

func TestBuildMessagesInverse(t *testing.T) {
	messages, err := BuildMessages(sampleSpec("inverse"), sampleContext(), sampleBundle(), nil)
	require.NoError(t, err)

	assert.Contains(t, messages[0].Content, "当前任务为【负向任务】")
	assert.Contains(t, messages[1].Content, "#### 负向任务构造提示")
	assert.Contains(t, messages[1].Content, "不要在标题和任务要求中出现")
}

func TestBuildMessagesEnglish(t *testing.T) {
	s := sampleSpec("positive")
	s.Language = "en"
	messages, err := BuildMessages(s, sampleContext(), sampleBundle(), nil)
	require.NoError(t, err)
	assert.Contains(t, messages[1].Content, "Please respond in English.")
}

func TestBuildMessagesContextBlocks(t *testing.T) {
	long := strings.Repeat("内", MaxContextCharsPerDoc)
	blocks := []ContextBlock{
		{Name: "风控手册", Path: "docs/manual.md", Content: long + "tail"},
		{Name: "空文档", Content: "   "},
	}

	messages, err := BuildMessages(sampleSpec("positive"), sampleContext(), sampleBundle(), blocks)
	require.NoError(t, err)

	assert.Contains(t, messages[0].Content, "补充上下文文档")
	user := messages[1].Content
	assert.Contains(t, user, "### 补充上下文资料")
	assert.Contains(t, user, "#### 风控手册 - docs/manual.md")
	assert.Contains(t, user, "...[内容已截断]")
	assert.NotContains(t, user, "tail")
	assert.NotContains(t, user, "空文档")
}

func TestBuildMessagesNoPrimary(t *testing.T) {
	messages, err := BuildMessages(sampleSpec("positive"), sampleContext(), evidence.Bundle{}, nil)
	require.NoError(t, err)
	assert.Contains(t, messages[1].Content, "未能锁定主参考资料")
	assert.Contains(t, messages[1].Content, "无额外参考资料")
}

func TestBuildMessagesBadLevel(t *testing.T) {
	s := sampleSpec("positive")
	s.Level = "L9"
	_, err := BuildMessages(s, sampleContext(), sampleBundle(), nil)
	require.Error(t, err)
}
