package packager

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"queryforge/internal/core/compose"
	"queryforge/internal/core/search"
	"queryforge/internal/utils/fsname"
)

// ReferenceEntry is one line of the data-room manifest.
type ReferenceEntry struct {
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	Source      string `json:"source,omitempty"`
	Date        string `json:"date,omitempty"`
	LocalPath   string `json:"local_path,omitempty"`
	PackagePath string `json:"package_path,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
	Type        string `json:"type"`
}

var providedMaterialURL = regexp.MustCompile(`https?://[^\s)\]"<>]+`)

// saveDataRoom builds the unified reference manifest and downloads the PDF
// payloads solvers may consult. Supporting evidence leads the manifest, then
// search references, then URLs mentioned in the provided materials; the
// primary evidence URL is excluded throughout.
func (p *Packager) saveDataRoom(ctx context.Context, dir string, task *compose.Task) error {
	dataRoomDir := filepath.Join(dir, "data_room")
	if err := os.MkdirAll(dataRoomDir, 0o755); err != nil {
		return err
	}

	primaryURL := ""
	if task.GroundTruth.Primary != nil {
		primaryURL = strings.TrimSpace(task.GroundTruth.Primary.URL)
	}

	seen := make(map[string]bool)
	var refs []ReferenceEntry
	add := func(entry ReferenceEntry) {
		url := strings.TrimSpace(entry.URL)
		if url == "" || url == primaryURL || seen[url] {
			return
		}
		seen[url] = true
		entry.URL = url
		if entry.Title == "" {
			entry.Title = url
		}
		if entry.Type == "" {
			entry.Type = "reference"
		}
		refs = append(refs, entry)
	}

	for _, source := range task.GroundTruth.Supporting {
		add(ReferenceEntry{Title: source.Title, URL: source.URL, Snippet: source.Snippet, Source: source.Source, Date: source.Date})
	}

	pool := task.References
	if len(pool) == 0 {
		pool = task.SearchResults
	}
	for _, result := range pool {
		add(referenceFromResult(result))
	}

	for _, material := range task.Inputs.ProvidedMaterials {
		for _, url := range providedMaterialURL.FindAllString(material, -1) {
			title := strings.TrimSpace(material)
			if len(title) > 160 {
				title = title[:160]
			}
			add(ReferenceEntry{Title: title, URL: url})
		}
	}

	p.downloadReferences(ctx, dataRoomDir, refs)
	contextEntries := p.saveContextDocuments(ctx, dataRoomDir, task)

	manifest := append(refs, contextEntries...)
	if manifest == nil {
		manifest = []ReferenceEntry{}
	}
	return writeJSON(filepath.Join(dataRoomDir, "references.json"), manifest)
}

func referenceFromResult(result search.Result) ReferenceEntry {
	return ReferenceEntry{
		Title:   result.Title,
		URL:     result.URL,
		Snippet: result.Snippet,
		Source:  result.Source,
		Date:    result.Date,
	}
}

// downloadReferences fetches the first few references and keeps only PDF
// payloads; HTML and other formats stay URL-only in the manifest.
func (p *Packager) downloadReferences(ctx context.Context, dataRoomDir string, refs []ReferenceEntry) {
	if p.opts.SkipDownloads || !p.opts.IncludeReferences {
		return
	}
	limit := len(refs)
	if p.opts.ReferenceLimit > 0 && p.opts.ReferenceLimit < limit {
		limit = p.opts.ReferenceLimit
	}
	for i := 0; i < limit; i++ {
		path, contentType, err := p.downloader.fetchPrefixed(ctx, refs[i].URL, dataRoomDir, "reference", i+1)
		if err != nil {
			p.log.LogWarnf("reference download failed for %s: %v", refs[i].URL, err)
			continue
		}
		if strings.Contains(strings.ToLower(contentType), "pdf") {
			refs[i].LocalPath = path
			refs[i].ContentType = contentType
		} else {
			os.Remove(path)
		}
	}
}

// saveContextDocuments copies local context PDFs into the data room and
// fetches PDF context URLs, returning manifest entries for all of them.
func (p *Packager) saveContextDocuments(ctx context.Context, dataRoomDir string, task *compose.Task) []ReferenceEntry {
	var entries []ReferenceEntry
	for _, doc := range task.ContextSources {
		entry := ReferenceEntry{
			Title:     doc.Name,
			URL:       doc.SourceURL,
			LocalPath: doc.LocalPath,
			Snippet:   doc.Snippet,
			Type:      "context_document",
		}
		if entry.Title == "" {
			if entry.URL != "" {
				entry.Title = entry.URL
			} else {
				entry.Title = entry.LocalPath
			}
		}

		switch {
		case p.opts.SkipDownloads:
		case doc.LocalPath != "" && strings.EqualFold(filepath.Ext(doc.LocalPath), ".pdf"):
			if _, err := os.Stat(doc.LocalPath); err == nil {
				name := fsname.Sanitize(strings.TrimSuffix(filepath.Base(doc.LocalPath), filepath.Ext(doc.LocalPath)))
				dest := filepath.Join(dataRoomDir, "context-"+name+".pdf")
				if err := copyFile(doc.LocalPath, dest); err == nil {
					entry.PackagePath = dest
					entry.ContentType = "application/pdf"
				}
			}
		case doc.LocalPath == "" && doc.SourceURL != "":
			path, contentType, err := p.downloader.fetch(ctx, doc.SourceURL, dataRoomDir, "context-ref")
			if err == nil {
				if strings.Contains(strings.ToLower(contentType), "pdf") {
					entry.PackagePath = path
					entry.ContentType = contentType
				} else {
					os.Remove(path)
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries
}
