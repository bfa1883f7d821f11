// Package localdump writes Confluence pages to disk as HTML (and PDF, and optionally Markdown),
// consulting a ledger so that only new and changed pages are exported.
package localdump

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/toothbrush/confluence-export/confluence"
	"github.com/toothbrush/confluence-export/ledger"
)

// Ledger is the change-detection state the exporter consults and updates.
type Ledger interface {
	ShouldProcess(page confluence.Page, forceSpace string) bool
	Commit(page confluence.Page, outputPaths map[string]string) error
	Get(id string) (ledger.Entry, bool)
}

var _ Ledger = (*ledger.Ledger)(nil)

type Exporter struct {
	// Root of the output tree.
	StorePath string

	HTMLOnly      bool
	WriteMarkdown bool

	Transformer *Transformer
	// nil means PDFs are skipped.
	Renderer Renderer
	Ledger   Ledger

	Logger *log.Logger
	// Where to draw progress bars.  nil disables them.
	Progress io.Writer

	stats Stats
}

// ExportOptions tweak a single ExportPage call.
type ExportOptions struct {
	// Skip the ledger check; the caller knows the page was never exported.
	Force bool
	// Passed through to Ledger.ShouldProcess.
	ForceSpace string
}

// ExportPage exports one page if the ledger says it's needed.  HTML is the unit of completion:
// the page is committed once its HTML is written, whatever happens to the PDF.
func (e *Exporter) ExportPage(ctx context.Context, page confluence.Page, opts ExportOptions) Outcome {
	outcome := e.exportPage(ctx, page, opts)
	e.stats.count(outcome)
	return outcome
}

func (e *Exporter) exportPage(ctx context.Context, page confluence.Page, opts ExportOptions) Outcome {
	logger := e.logger()

	kind := NewContent
	if !opts.Force {
		if !e.Ledger.ShouldProcess(page, opts.ForceSpace) {
			e.stats.HTMLSkipped++
			e.stats.PDFSkipped++
			return Skipped
		}
		if _, ok := e.Ledger.Get(page.ID); ok {
			kind = UpdatedContent
		}
	}

	logger.Printf("Processing %s page '%s' (ID: %s, v%d)", kind, page.Title, page.ID, page.VersionNumber())

	outputs := map[string]string{}

	htmlPath, err := e.writeHTML(ctx, page, kind)
	if err != nil {
		logger.Printf("failed to generate HTML for '%s' (ID: %s): %v", page.Title, page.ID, err)
		e.stats.HTMLFailed++
		e.stats.PDFSkipped++
		return Failed
	}
	outputs["html"] = htmlPath
	e.stats.HTMLProcessed++

	if e.WriteMarkdown {
		if mdPath, err := e.writeMarkdown(page, kind); err != nil {
			logger.Printf("failed to write Markdown for '%s' (ID: %s): %v", page.Title, page.ID, err)
		} else {
			outputs["markdown"] = mdPath
		}
	}

	switch {
	case e.HTMLOnly || e.Renderer == nil:
		e.stats.PDFSkipped++
	default:
		pdfPath, err := e.PDFPath(page, kind)
		if err == nil {
			err = e.Renderer.Render(ctx, htmlPath, pdfPath)
		}
		if err != nil {
			logger.Printf("failed to convert '%s' (ID: %s) to PDF: %v", page.Title, page.ID, err)
			e.stats.PDFFailed++
		} else {
			outputs["pdf"] = pdfPath
			e.stats.PDFProcessed++
		}
	}

	if err := e.Ledger.Commit(page, outputs); err != nil {
		logger.Printf("couldn't record export of '%s' (ID: %s): %v", page.Title, page.ID, err)
		return Failed
	}

	return Exported
}

func (e *Exporter) writeHTML(ctx context.Context, page confluence.Page, kind ContentKind) (string, error) {
	if page.Body.Storage == nil {
		return "", fmt.Errorf("localdump: page %s has no storage body", page.ID)
	}

	htmlPath, err := e.HTMLPath(page, kind)
	if err != nil {
		return "", err
	}

	cleaned, err := e.Transformer.Clean(page.ID, page.StorageValue())
	if err != nil {
		return "", err
	}

	embedded, err := e.Transformer.EmbedImages(ctx, page.ID, cleaned)
	if err != nil {
		return "", err
	}

	doc, err := Document(page.Title, embedded)
	if err != nil {
		return "", err
	}

	if err := writeFile(htmlPath, doc); err != nil {
		return "", err
	}

	return htmlPath, nil
}

func (e *Exporter) writeMarkdown(page confluence.Page, kind ContentKind) (string, error) {
	mdPath, err := e.MarkdownPath(page, kind)
	if err != nil {
		return "", err
	}

	// Markdown gets the un-embedded images; base64 blobs make it unreadable.
	cleaned, err := e.Transformer.Clean(page.ID, page.StorageValue())
	if err != nil {
		return "", err
	}

	contents, err := e.Transformer.ConvertToMarkdown(page, cleaned)
	if err != nil {
		return "", err
	}

	if err := writeFile(mdPath, contents); err != nil {
		return "", err
	}

	return mdPath, nil
}

func (e *Exporter) logger() *log.Logger {
	if e.Logger == nil {
		e.Logger = log.New(io.Discard, "", 0)
	}
	return e.Logger
}
