package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"queryforge/internal/spec"
)

const rewriteSystemPrompt = "你是信息检索与证据搜集的研究助理。根据职业与任务场景，为中文网络环境构造高命中率的搜索query。" +
	"目标：更快找到权威、可验证的标准/指南/流程/监管/案例类资料；优先PDF、政府/学术/标准组织来源。"

// RewriteQueries asks the LLM for a sharper lead search query and keeps the
// remaining queries as-is. Any failure falls back to the original list.
func (s *Service) RewriteQueries(ctx context.Context, sp *spec.TaskSpec) []string {
	original := append([]string(nil), sp.SearchQueries...)
	if s.model == nil || len(original) == 0 {
		return original
	}

	scenario := sp.Scenario
	if len(scenario) > 400 {
		scenario = scenario[:400]
	}
	profession := sp.Profession
	if profession == "" {
		profession = "职业"
	}
	category, _ := sp.Metadata["category"].(string)
	theme, _ := sp.Metadata["theme_id"].(string)
	var tags []string
	if raw, ok := sp.Metadata["focus_tags"].([]any); ok {
		for _, item := range raw {
			if tag, ok := item.(string); ok && tag != "" {
				tags = append(tags, tag)
			}
			if len(tags) == 4 {
				break
			}
		}
	}

	user := fmt.Sprintf("职业：%s\n任务类别：%s\n主题：%s\n标签：%s\n场景：%s\n\n", profession, category, theme, strings.Join(tags, ", "), scenario) +
		fmt.Sprintf("基线示例（不要原样返回）：%s\n", original[0]) +
		"请返回 JSON：{\"queries\": [\"...\"]}，长度1-2条，按优先级排序。\n" +
		"要求：中文关键词为主，可含英文同义词；偏好 标准/规范/指南/政策/PDF/案例；包含近年范围（如2022..2025）；只返回JSON。"

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	response, err := s.model.Generate(callCtx, []*schema.Message{
		schema.SystemMessage(rewriteSystemPrompt),
		schema.UserMessage(user),
	})
	if err != nil {
		s.log.LogWarnf("query rewrite failed for %s, keeping baseline: %v", sp.QueryID, err)
		return original
	}

	content := strings.TrimSpace(response.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		s.log.LogWarnf("query rewrite returned invalid JSON for %s, keeping baseline: %v", sp.QueryID, err)
		return original
	}
	for _, q := range parsed.Queries {
		if q = strings.TrimSpace(q); q != "" {
			return append([]string{q}, original[1:]...)
		}
	}
	return original
}
