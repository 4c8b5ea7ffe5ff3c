// Package persona loads the persona registry used to anchor composed
// scenarios to a concrete role.
package persona

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
)

// Record describes one persona in the JSONL registry.
type Record struct {
	PersonaID   string   `json:"persona_id"`
	Title       string   `json:"title"`
	Seniority   string   `json:"seniority"`
	Summary     string   `json:"summary"`
	Motivations []string `json:"motivations,omitempty"`
	PainPoints  []string `json:"pain_points,omitempty"`
	Expertise   []string `json:"expertise,omitempty"`
	Industries  []string `json:"industries,omitempty"`
	Professions []string `json:"professions,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Matches reports whether the record is compatible with the given
// industry/profession/tags. Empty record lists act as wildcards.
func (r Record) Matches(industry, profession string, tags []string) bool {
	if len(r.Industries) > 0 && industry != "" && !containsFold(r.Industries, industry) {
		return false
	}
	if len(r.Professions) > 0 && profession != "" && !containsFold(r.Professions, profession) {
		return false
	}
	if len(tags) > 0 && len(r.Tags) > 0 && !intersectsFold(r.Tags, tags) {
		return false
	}
	return true
}

func containsFold(items []string, target string) bool {
	for _, item := range items {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

func intersectsFold(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, item := range a {
		set[strings.ToLower(item)] = true
	}
	for _, item := range b {
		if set[strings.ToLower(item)] {
			return true
		}
	}
	return false
}

// Registry holds the loaded persona records.
type Registry struct {
	records []Record
	byID    map[string]Record
}

// LoadRegistry reads a JSONL registry file, skipping blank lines.
func LoadRegistry(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening persona registry: %w", err)
	}
	defer f.Close()

	reg := &Registry{byID: make(map[string]Record)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("persona registry %s line %d: %w", path, line, err)
		}
		if rec.PersonaID == "" {
			return nil, fmt.Errorf("persona registry %s line %d: missing persona_id", path, line)
		}
		if rec.Seniority == "" {
			rec.Seniority = "mid"
		}
		reg.records = append(reg.records, rec)
		reg.byID[rec.PersonaID] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading persona registry: %w", err)
	}
	return reg, nil
}

// Empty creates a registry with no records; Select always falls back to the
// default profile.
func Empty() *Registry {
	return &Registry{byID: make(map[string]Record)}
}

func (r *Registry) Len() int { return len(r.records) }

// Get looks a persona up by id.
func (r *Registry) Get(id string) (Record, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// Select returns the best matching persona for the given industry,
// profession and tags. Matching is deterministic: candidates are filtered,
// then one is picked by a stable hash of the inputs so reruns of the same
// spec land on the same persona. When nothing matches, a generic default
// profile is synthesized from the profession.
func (r *Registry) Select(industry, profession string, tags []string) Record {
	var candidates []Record
	for _, rec := range r.records {
		if rec.Matches(industry, profession, tags) {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return DefaultProfile(industry, profession)
	}
	h := fnv.New32a()
	h.Write([]byte(industry))
	h.Write([]byte("|"))
	h.Write([]byte(profession))
	for _, tag := range tags {
		h.Write([]byte("|"))
		h.Write([]byte(tag))
	}
	return candidates[int(h.Sum32())%len(candidates)]
}

// DefaultProfile is the fallback persona used when the registry has no match.
func DefaultProfile(industry, profession string) Record {
	title := strings.TrimSpace(profession)
	if title == "" {
		title = "资深从业者"
	}
	summary := fmt.Sprintf("%s领域的%s，负责关键业务交付，重视流程合规与可验证的结果。", orUnknown(industry), title)
	return Record{
		PersonaID: "default",
		Title:     title,
		Seniority: "senior",
		Summary:   summary,
		Motivations: []string{
			"在限定时间内交付可复核的成果",
			"保证关键判断有权威依据",
		},
		PainPoints: []string{
			"资料分散且可信度参差不齐",
			"验收标准不清晰导致返工",
		},
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "通用"
	}
	return s
}
