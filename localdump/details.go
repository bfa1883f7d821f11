package localdump

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/toothbrush/confluence-export/confluence"
)

// ContentKind says whether a page was exported for the first time or re-exported.  It only
// decides the output directory.
type ContentKind string

const (
	NewContent     ContentKind = "new"
	UpdatedContent ContentKind = "updated"
)

const (
	htmlDir     = "html"
	pdfDir      = "pdf"
	markdownDir = "markdown"

	// In bytes, leaving room below the usual 255-byte NAME_MAX.
	maxFilenameBytes = 200
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	nonSlugChars         = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// HTMLPath is <store>/html/<SPACE>/<kind>/<title>_<id>.html.
func (e *Exporter) HTMLPath(page confluence.Page, kind ContentKind) (string, error) {
	return e.artifactPath(page, kind, htmlDir, ".html")
}

// PDFPath mirrors HTMLPath under <store>/pdf.
func (e *Exporter) PDFPath(page confluence.Page, kind ContentKind) (string, error) {
	return e.artifactPath(page, kind, pdfDir, ".pdf")
}

// MarkdownPath is <store>/markdown/<SPACE>/<kind>/<id>-<slug>.md.
func (e *Exporter) MarkdownPath(page confluence.Page, kind ContentKind) (string, error) {
	dir, err := e.spaceDir(page, kind, markdownDir)
	if err != nil {
		return "", err
	}

	slug, err := canonicalise(page.Title)
	if err != nil {
		// Titles that are entirely non-ASCII still need a file.
		slug = "page"
	}

	return filepath.Join(dir, fmt.Sprintf("%s-%s.md", page.ID, slug)), nil
}

func (e *Exporter) artifactPath(page confluence.Page, kind ContentKind, root, ext string) (string, error) {
	dir, err := e.spaceDir(page, kind, root)
	if err != nil {
		return "", err
	}

	suffix := "_" + page.ID + ext
	return filepath.Join(dir, sanitizeFilename(page.Title, maxFilenameBytes-len(suffix))+suffix), nil
}

func (e *Exporter) spaceDir(page confluence.Page, kind ContentKind, root string) (string, error) {
	if page.ID == "" {
		return "", fmt.Errorf("localdump: page has no ID")
	}

	// prepend space code, e.g. CORE,
	space := page.SpaceKey()
	if space == "" {
		return "", fmt.Errorf("localdump: empty Space key for item: %s", page.ID)
	}

	return filepath.Join(e.StorePath, root, sanitizeFilename(space, maxFilenameBytes), string(kind)), nil
}

// sanitizeFilename replaces characters that are invalid in a filename on any common OS, and
// shortens the result to at most maxBytes bytes without splitting a UTF-8 sequence.
func sanitizeFilename(name string, maxBytes int) string {
	name = invalidFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" {
		name = "untitled"
	}

	if len(name) > maxBytes {
		cut := max(maxBytes-len("..."), 0)
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + "..."
	}

	return name
}

func canonicalise(title string) (string, error) {
	str := nonSlugChars.ReplaceAllString(title, " ")
	str = strings.ToLower(str)
	str = strings.Join(strings.Fields(str), "-")

	if len(str) > 101 {
		str = str[:100]
	}

	str = strings.Trim(str, "-")

	if len(str) < 2 {
		return "", fmt.Errorf("localdump: slug too short: title was '%s'", title)
	}

	return str, nil
}
