package spec

import (
	"fmt"
	"strings"
)

// InverseNotesHint is appended to the notes of auto-generated inverse
// variants so the composition prompt steers toward contradiction-detection
// tasks instead of continuing the original request.
const InverseNotesHint = "本任务为负向任务：请参考《inverse_agency.md》，沿用其中总结的三类陷阱设计思路" +
	"（违反领域根律、引用错误/不可复现数据、资源或能力根本不可行），重点考察智能体识别矛盾并" +
	"提交证伪过程的能力。确保最终目标是得出“任务不可完成或前提有误”的结论，而非继续推进原需求。"

func ensureInverseNotes(notes, hint string) string {
	text := strings.TrimSpace(notes)
	if strings.Contains(text, hint) {
		return text
	}
	if text == "" {
		return hint
	}
	return text + "\n" + hint
}

// BuildInverse clones a positive spec into its inverse counterpart. The new
// id is `<id>-inverse`, with a numeric suffix when that id is already taken.
func BuildInverse(s TaskSpec, existingIDs map[string]bool) (TaskSpec, error) {
	orientation, err := s.NormalizedOrientation()
	if err != nil {
		return TaskSpec{}, err
	}
	if orientation != OrientationPositive {
		return TaskSpec{}, fmt.Errorf("only positive tasks can be inverted automatically")
	}

	baseID := s.QueryID + "-inverse"
	candidate := baseID
	if existingIDs != nil {
		counter := 1
		for existingIDs[candidate] {
			counter++
			candidate = fmt.Sprintf("%s-%d", baseID, counter)
		}
		existingIDs[candidate] = true
	}

	inverse := s
	inverse.QueryID = candidate
	inverse.Orientation = OrientationInverse
	inverse.Notes = ensureInverseNotes(s.Notes, InverseNotesHint)
	inverse.SearchQueries = append([]string(nil), s.SearchQueries...)
	inverse.TaskFocus = append([]string(nil), s.TaskFocus...)
	inverse.DeliverableRequirements = append([]string(nil), s.DeliverableRequirements...)
	inverse.EvaluationFocus = append([]string(nil), s.EvaluationFocus...)
	return inverse, nil
}

// ExpandInverse appends an inverse variant after every positive spec.
// Inverse specs already present pass through untouched.
func ExpandInverse(specs []TaskSpec) ([]TaskSpec, error) {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		seen[s.QueryID] = true
	}

	expanded := make([]TaskSpec, 0, len(specs)*2)
	for _, s := range specs {
		expanded = append(expanded, s)
		orientation, err := s.NormalizedOrientation()
		if err != nil {
			return nil, err
		}
		if orientation != OrientationPositive {
			continue
		}
		inverse, err := BuildInverse(s, seen)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, inverse)
	}
	return expanded, nil
}
