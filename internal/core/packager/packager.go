// Package packager persists built tasks as on-disk packages: the judge and
// solver payloads, search metadata, and downloaded evidence.
package packager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"queryforge/internal/core/compose"
	"queryforge/internal/logger"
	"queryforge/internal/spec"
	"queryforge/internal/utils/fsname"
)

// Options control package layout and downloads.
type Options struct {
	// Dir is the package root directory.
	Dir string
	// IncludeReferences downloads reference payloads into data_room.
	IncludeReferences bool
	// ReferenceLimit caps reference downloads. Zero means the default of 3,
	// negative disables the cap.
	ReferenceLimit int
	// SkipDownloads writes metadata only, fetching nothing.
	SkipDownloads bool
	// SplitViews additionally writes solver_query.json without the
	// judge-only blocks.
	SplitViews bool
	// EmitText additionally writes a human-readable task.txt.
	EmitText bool
}

// Packager writes task packages.
type Packager struct {
	opts       Options
	log        *logger.Logger
	downloader *downloader
}

// New prepares a packager rooted at opts.Dir.
func New(opts Options) *Packager {
	if opts.ReferenceLimit == 0 {
		opts.ReferenceLimit = 3
	}
	return &Packager{
		opts:       opts,
		log:        logger.New("Packager"),
		downloader: newDownloader(),
	}
}

// dir computes the final package directory for a task.
func (p *Packager) dir(industry, level, orientation, queryID string) string {
	industrySeg := fsname.Sanitize(industry)
	if industry == "" {
		industrySeg = "general"
	}
	switch orientation {
	case spec.OrientationPositive, spec.OrientationInverse:
	default:
		orientation = "misc"
	}
	return filepath.Join(p.opts.Dir, industrySeg, level, orientation, queryID)
}

// Exists reports whether a completed package is already on disk, used as the
// incremental-run skip marker.
func (p *Packager) Exists(industry, level, orientation, queryID string) bool {
	_, err := os.Stat(filepath.Join(p.dir(industry, level, orientation, queryID), "query.json"))
	return err == nil
}

// Save writes the package for one task and returns its directory. Assembly
// happens in a temporary sibling directory that is renamed into place, so a
// failed save leaves no partial package behind.
func (p *Packager) Save(ctx context.Context, task *compose.Task) (string, error) {
	finalDir := p.dir(task.Industry, task.Level, task.Orientation, task.QueryID)
	parent := filepath.Dir(finalDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", err
	}

	tmpDir := filepath.Join(parent, ".tmp-"+filepath.Base(finalDir))
	if err := os.RemoveAll(tmpDir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	if err := p.assemble(ctx, tmpDir, task); err != nil {
		return "", err
	}

	if err := os.RemoveAll(finalDir); err != nil {
		return "", err
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return "", err
	}
	p.log.LogInfof("packaged %s at %s", task.QueryID, finalDir)
	return finalDir, nil
}

func (p *Packager) assemble(ctx context.Context, dir string, task *compose.Task) error {
	if err := writeJSON(filepath.Join(dir, "query.json"), task); err != nil {
		return err
	}

	if p.opts.SplitViews {
		solver, err := solverView(task)
		if err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(dir, "solver_query.json"), solver); err != nil {
			return err
		}
	}

	if len(task.SearchResults) > 0 {
		if err := writeJSON(filepath.Join(dir, "search_results.json"), task.SearchResults); err != nil {
			return err
		}
	}

	groundTruthDir := filepath.Join(dir, "ground_truth")
	if err := os.MkdirAll(groundTruthDir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(groundTruthDir, "metadata.json"), task.GroundTruth); err != nil {
		return err
	}

	artifacts := p.savePrimaryEvidence(ctx, groundTruthDir, task)
	if err := p.saveDataRoom(ctx, dir, task); err != nil {
		return err
	}

	if len(artifacts) > 0 {
		if err := writeJSON(filepath.Join(dir, "artifacts.json"), artifacts); err != nil {
			return err
		}
	}

	if p.opts.EmitText {
		if err := os.WriteFile(filepath.Join(dir, "task.txt"), []byte(RenderText(task)), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// savePrimaryEvidence places the primary payload next to the metadata. Only
// the primary is packaged here; supporting sources live in the data room.
func (p *Packager) savePrimaryEvidence(ctx context.Context, groundTruthDir string, task *compose.Task) map[string]string {
	if p.opts.SkipDownloads || task.GroundTruth.Primary == nil {
		return nil
	}
	artifacts := make(map[string]string)

	if localPath, contentType, ok := cachedPrimary(task.GroundTruth.Cache); ok {
		dest := filepath.Join(groundTruthDir, filepath.Base(localPath))
		if err := copyFile(localPath, dest); err == nil {
			artifacts["ground_truth_primary"] = dest
			artifacts["ground_truth_primary_content_type"] = contentType
			return artifacts
		}
		p.log.LogWarnf("could not copy cached primary for %s from %s", task.QueryID, localPath)
	}

	if url := task.GroundTruth.Primary.URL; url != "" {
		path, contentType, err := p.downloader.fetch(ctx, url, groundTruthDir, "ground-truth-primary")
		if err != nil {
			p.log.LogWarnf("primary download failed for %s: %v", task.QueryID, err)
			return nil
		}
		artifacts["ground_truth_primary"] = path
		artifacts["ground_truth_primary_content_type"] = contentType
	}
	if len(artifacts) == 0 {
		return nil
	}
	return artifacts
}

// cachedPrimary digs the local payload path out of the cache metadata, which
// may hold a typed entry or a decoded JSON map.
func cachedPrimary(cache map[string]any) (path, contentType string, ok bool) {
	raw, exists := cache["primary"]
	if !exists {
		return "", "", false
	}
	switch entry := raw.(type) {
	case map[string]any:
		path, _ = entry["local_path"].(string)
		contentType, _ = entry["content_type"].(string)
	default:
		// Typed cache entries round-trip through JSON cleanly.
		encoded, err := json.Marshal(raw)
		if err != nil {
			return "", "", false
		}
		var decoded struct {
			LocalPath   string `json:"local_path"`
			ContentType string `json:"content_type"`
		}
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			return "", "", false
		}
		path, contentType = decoded.LocalPath, decoded.ContentType
	}
	if path == "" {
		return "", "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", "", false
	}
	return path, contentType, true
}

var solverScrubPattern = regexp.MustCompile(`(?i)Ground\s*Truth`)

// solverView renders the payload handed to solvers: the judge-only blocks are
// removed and any remaining baseline mentions are rewritten.
func solverView(task *compose.Task) (map[string]any, error) {
	encoded, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	var view map[string]any
	if err := json.Unmarshal(encoded, &view); err != nil {
		return nil, err
	}
	delete(view, "ground_truth")
	delete(view, "standard_answer")
	scrubValue(view)
	return view, nil
}

func scrubValue(value any) any {
	switch v := value.(type) {
	case string:
		return solverScrubPattern.ReplaceAllString(v, "参考资料")
	case []any:
		for i, item := range v {
			v[i] = scrubValue(item)
		}
		return v
	case map[string]any:
		for key, item := range v {
			v[key] = scrubValue(item)
		}
		return v
	default:
		return value
	}
}

func writeJSON(path string, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// RenderText renders a compact human-readable brief of the solver-facing
// parts of a task.
func RenderText(task *compose.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", task.Title)
	fmt.Fprintf(&b, "Query ID: %s\nLevel: %s\nOrientation: %s\n", task.QueryID, task.Level, task.Orientation)
	if task.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", task.Industry)
	}
	if task.Profession != "" {
		fmt.Fprintf(&b, "Profession: %s\n", task.Profession)
	}

	fmt.Fprintf(&b, "\n## 角色与背景\n%s\n", task.RoleAndBackground)
	writeSection(&b, "## 任务目标", task.TaskObjectives)
	writeSection(&b, "## 提供的资料", task.Inputs.ProvidedMaterials)
	if task.Inputs.AllowedExternalResearch != "" {
		fmt.Fprintf(&b, "\n## 外部检索范围\n%s\n", task.Inputs.AllowedExternalResearch)
	}
	writeSection(&b, "## 交付物", task.Deliverables.ExpectedOutputs)
	if task.Deliverables.FormatRequirements != "" {
		fmt.Fprintf(&b, "\n格式要求：%s\n", task.Deliverables.FormatRequirements)
	}
	writeSection(&b, "## 评分要点", task.GradingRubric)
	if task.ToolUsageExpectation != "" {
		fmt.Fprintf(&b, "\n## 工具与流程\n%s\n", task.ToolUsageExpectation)
	}
	if task.EstimatedHumanTime != "" {
		fmt.Fprintf(&b, "\n预计人类耗时：%s\n", task.EstimatedHumanTime)
	}
	if task.Notes != "" {
		fmt.Fprintf(&b, "\n## 备注\n%s\n", task.Notes)
	}
	return b.String()
}

func writeSection(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
