// Package fsname derives safe file names and extensions for downloaded
// evidence artifacts.
package fsname

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const maxNameLength = 80

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
	dashRun  = regexp.MustCompile(`-{2,}`)
)

// Sanitize turns a title or URL into a safe lowercase filename fragment.
func Sanitize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "file"
	}
	text = nonAlnum.ReplaceAllString(text, "-")
	text = strings.Trim(dashRun.ReplaceAllString(text, "-"), "-")
	if text == "" {
		return "file"
	}
	if len(text) > maxNameLength {
		text = strings.TrimRight(text[:maxNameLength], "-")
	}
	if text == "" {
		return "file"
	}
	return text
}

// GuessExtension picks a file extension from the content type, falling back
// to the URL path suffix.
func GuessExtension(contentType, rawURL string) string {
	if contentType == "" {
		if ext := urlExtension(rawURL); ext != "" {
			return ext
		}
		return ".html"
	}

	lowered := strings.ToLower(contentType)
	switch {
	case strings.Contains(lowered, "pdf"):
		return ".pdf"
	case strings.Contains(lowered, "json"):
		return ".json"
	case strings.Contains(lowered, "text/plain"):
		return ".txt"
	case strings.Contains(lowered, "markdown"):
		return ".md"
	case strings.Contains(lowered, "msword"):
		return ".doc"
	case strings.Contains(lowered, "presentation"):
		return ".ppt"
	case strings.Contains(lowered, "excel"):
		return ".xlsx"
	case strings.Contains(lowered, "html"):
		return ".html"
	}

	if ext := urlExtension(rawURL); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".dat"
}

func urlExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(parsed.Path)
}
