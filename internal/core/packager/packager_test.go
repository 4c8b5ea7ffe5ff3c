package packager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryforge/internal/core/compose"
	"queryforge/internal/core/evidence"
	"queryforge/internal/core/search"
)

func newTask(primaryURL string) *compose.Task {
	primary := evidence.Source{Title: "LCR Standard", URL: primaryURL, Snippet: "std"}
	return &compose.Task{
		QueryID:           "fin-lcr-001",
		Level:             "L4",
		Orientation:       "positive",
		Title:             "复现LCR测算",
		RoleAndBackground: "你是一名银行风控分析师。",
		TaskObjectives:    []string{"梳理口径"},
		Inputs: compose.InputsAndResources{
			ProvidedMaterials: []string{"月报: https://example.org/report"},
		},
		Deliverables:  compose.Deliverables{ExpectedOutputs: []string{"报告"}},
		GradingRubric: []string{"一致性"},
		Industry:      "Finance & Banking",
		GroundTruth: compose.GroundTruth{
			Primary:    &primary,
			Supporting: []evidence.Source{{Title: "FAQ", URL: primaryURL + "/faq"}},
			UsageNotes: "judge only, based on Ground Truth",
		},
		StandardAnswer: compose.StandardAnswer{Summary: "基于参考资料"},
		References: []search.Result{
			{Title: "Overview", URL: "https://example.org/overview", Snippet: "参考资料概览"},
		},
		SearchResults: []search.Result{
			{Title: "LCR Standard", URL: primaryURL},
			{Title: "Overview", URL: "https://example.org/overview"},
		},
		SOPVersion: "8.0",
	}
}

func TestSaveWritesPackageTree(t *testing.T) {
	root := t.TempDir()
	p := New(Options{Dir: root, SkipDownloads: true})
	task := newTask("https://www.bis.org/publ/bcbs238.pdf")

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "finance-banking", "L4", "positive", "fin-lcr-001"), dir)
	assert.FileExists(t, filepath.Join(dir, "query.json"))
	assert.FileExists(t, filepath.Join(dir, "search_results.json"))
	assert.FileExists(t, filepath.Join(dir, "ground_truth", "metadata.json"))
	assert.FileExists(t, filepath.Join(dir, "data_room", "references.json"))
	assert.NoFileExists(t, filepath.Join(dir, "solver_query.json"))
	assert.NoFileExists(t, filepath.Join(dir, "artifacts.json"))

	assert.True(t, p.Exists(task.Industry, task.Level, task.Orientation, task.QueryID))
	assert.False(t, p.Exists(task.Industry, task.Level, task.Orientation, "other"))

	// No assembly leftovers.
	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), ".tmp-"))
	}
}

func TestSaveSplitViews(t *testing.T) {
	p := New(Options{Dir: t.TempDir(), SkipDownloads: true, SplitViews: true})
	task := newTask("https://www.bis.org/publ/bcbs238.pdf")
	task.Notes = "不要泄漏Ground Truth的URL"

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "solver_query.json"))
	require.NoError(t, err)
	var view map[string]any
	require.NoError(t, json.Unmarshal(raw, &view))

	assert.NotContains(t, view, "ground_truth")
	assert.NotContains(t, view, "standard_answer")
	assert.Equal(t, "不要泄漏参考资料的URL", view["notes"])

	// The judge view keeps everything.
	raw, err = os.ReadFile(filepath.Join(dir, "query.json"))
	require.NoError(t, err)
	var full map[string]any
	require.NoError(t, json.Unmarshal(raw, &full))
	assert.Contains(t, full, "ground_truth")
	assert.Contains(t, full, "standard_answer")
}

func TestSaveDownloadsPrimary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "primary.pdf") {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	p := New(Options{Dir: t.TempDir()})
	task := newTask(server.URL + "/primary.pdf")
	task.GroundTruth.Supporting = nil
	task.References = nil
	task.SearchResults = nil
	task.Inputs.ProvidedMaterials = nil

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "ground_truth", "ground-truth-primary.pdf"))

	raw, err := os.ReadFile(filepath.Join(dir, "artifacts.json"))
	require.NoError(t, err)
	var artifacts map[string]string
	require.NoError(t, json.Unmarshal(raw, &artifacts))
	assert.Contains(t, artifacts["ground_truth_primary"], "ground-truth-primary.pdf")
	assert.Equal(t, "application/pdf", artifacts["ground_truth_primary_content_type"])
}

func TestSaveUsesCachedPrimary(t *testing.T) {
	cached := filepath.Join(t.TempDir(), "lcr-standard.pdf")
	require.NoError(t, os.WriteFile(cached, []byte("%PDF-1.4"), 0o644))

	p := New(Options{Dir: t.TempDir()})
	task := newTask("https://unreachable.invalid/doc.pdf")
	task.GroundTruth.Cache = map[string]any{
		"primary": map[string]any{
			"local_path":   cached,
			"content_type": "application/pdf",
		},
	}
	task.GroundTruth.Supporting = nil
	task.References = nil
	task.SearchResults = nil
	task.Inputs.ProvidedMaterials = nil

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "ground_truth", "lcr-standard.pdf"))
	assert.FileExists(t, filepath.Join(dir, "artifacts.json"))
}

func TestDataRoomManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "guide.pdf"):
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4"))
		default:
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		}
	}))
	defer server.Close()

	p := New(Options{Dir: t.TempDir(), IncludeReferences: true})
	task := newTask(server.URL + "/primary")
	task.GroundTruth.Supporting = []evidence.Source{{Title: "Guide", URL: server.URL + "/guide.pdf"}}
	task.References = []search.Result{
		{Title: "Page", URL: server.URL + "/page.html"},
		{Title: "Primary again", URL: server.URL + "/primary"},
	}
	task.Inputs.ProvidedMaterials = []string{"附加材料 " + server.URL + "/extra.html 供参考"}

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "data_room", "references.json"))
	require.NoError(t, err)
	var manifest []ReferenceEntry
	require.NoError(t, json.Unmarshal(raw, &manifest))

	require.Len(t, manifest, 3)
	// Supporting evidence leads, the primary URL is excluded.
	assert.Equal(t, "Guide", manifest[0].Title)
	for _, entry := range manifest {
		assert.NotEqual(t, server.URL+"/primary", entry.URL)
	}

	// Only the PDF payload is kept on disk.
	assert.NotEmpty(t, manifest[0].LocalPath)
	assert.FileExists(t, manifest[0].LocalPath)
	assert.Empty(t, manifest[1].LocalPath)
	assert.NoFileExists(t, filepath.Join(dir, "data_room", "reference-2.html"))
}

func TestSaveContextDocuments(t *testing.T) {
	docDir := t.TempDir()
	pdfPath := filepath.Join(docDir, "manual.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))

	p := New(Options{Dir: t.TempDir()})
	task := newTask("https://unreachable.invalid/doc.pdf")
	task.GroundTruth.Primary = nil
	task.GroundTruth.Supporting = nil
	task.References = nil
	task.SearchResults = nil
	task.Inputs.ProvidedMaterials = nil
	task.ContextSources = []compose.ContextSource{
		{Name: "风控手册", LocalPath: pdfPath},
	}

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "data_room", "context-manual.pdf"))

	raw, err := os.ReadFile(filepath.Join(dir, "data_room", "references.json"))
	require.NoError(t, err)
	var manifest []ReferenceEntry
	require.NoError(t, json.Unmarshal(raw, &manifest))
	require.Len(t, manifest, 1)
	assert.Equal(t, "context_document", manifest[0].Type)
	assert.NotEmpty(t, manifest[0].PackagePath)
}

func TestSaveEmitText(t *testing.T) {
	p := New(Options{Dir: t.TempDir(), SkipDownloads: true, EmitText: true})
	task := newTask("https://www.bis.org/publ/bcbs238.pdf")

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "task.txt"))
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "# 复现LCR测算")
	assert.Contains(t, text, "## 任务目标")
	assert.Contains(t, text, "- 梳理口径")
	assert.NotContains(t, text, "bcbs238")
}

func TestSaveOverwritesExistingPackage(t *testing.T) {
	p := New(Options{Dir: t.TempDir(), SkipDownloads: true})
	task := newTask("https://www.bis.org/publ/bcbs238.pdf")

	dir, err := p.Save(context.Background(), task)
	require.NoError(t, err)

	task.Title = "更新后的标题"
	dir2, err := p.Save(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, dir, dir2)

	raw, err := os.ReadFile(filepath.Join(dir2, "query.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "更新后的标题")
}

func TestOrientationFallbackDir(t *testing.T) {
	p := New(Options{Dir: "/pkg"})
	assert.Equal(t, filepath.Join("/pkg", "general", "L3", "misc", "q"), p.dir("", "L3", "weird", "q"))
}
