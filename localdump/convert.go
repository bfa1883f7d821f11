package localdump

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"html/template"
	"io"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/toothbrush/confluence-export/confluence"
)

// AttachmentFetcher downloads attachment bytes.  *confluence.API is one.
type AttachmentFetcher interface {
	DownloadAttachment(ctx context.Context, pageID, filename string) ([]byte, error)
}

var _ AttachmentFetcher = (*confluence.API)(nil)

const (
	blockCodeStyle  = "white-space: pre; font-family: monospace; background-color: #f5f5f5; padding: 10px; border-radius: 4px; overflow-x: auto;"
	inlineCodeStyle = "font-family: monospace; background-color: #f5f5f5; padding: 2px 4px; border-radius: 3px;"
	imageStyle      = "max-width: 100%; height: auto;"
)

var (
	cdataSection = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)

	imageMIMETypes = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".svg":  "image/svg+xml",
		".webp": "image/webp",
		".bmp":  "image/bmp",
		".ico":  "image/x-icon",
		".tif":  "image/tiff",
		".tiff": "image/tiff",
	}

	imageAlignStyles = map[string]string{
		"center": "display: block; margin: 0 auto; max-width: 100%; height: auto;",
		"left":   "float: left; margin-right: 10px; max-width: 100%; height: auto;",
		"right":  "float: right; margin-left: 10px; max-width: 100%; height: auto;",
	}
)

// Transformer turns Confluence storage format into standalone HTML.
type Transformer struct {
	// Wiki root, used to make attachment and relative links absolute.
	BaseURL *url.URL

	// Used to inline attachment images.  If nil, images keep pointing at Confluence.
	Attachments AttachmentFetcher

	Logger *log.Logger
}

// Clean rewrites storage-format markup into plain HTML: Confluence image and code macros become
// <img> and <pre>, scripts and styles are dropped.  The result is the inner HTML of the body.
func (t *Transformer) Clean(pageID, storage string) (string, error) {
	// The HTML parser would turn CDATA into comments and lose code blocks.
	storage = cdataSection.ReplaceAllStringFunc(storage, func(m string) string {
		return html.EscapeString(cdataSection.FindStringSubmatch(m)[1])
	})

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(storage))
	if err != nil {
		return "", fmt.Errorf("localdump: couldn't parse storage format of %s: %w", pageID, err)
	}

	doc.Find("script, style").Remove()

	t.convertImageMacros(doc, pageID)
	t.fixImages(doc)
	convertCodeMacros(doc)
	convertHighlighterTables(doc)
	styleCode(doc)

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("localdump: couldn't render cleaned HTML of %s: %w", pageID, err)
	}

	return strings.NewReplacer("<![CDATA[", "", "]]>", "").Replace(body), nil
}

func (t *Transformer) convertImageMacros(doc *goquery.Document, pageID string) {
	doc.Find(`ac\:image`).Each(func(_ int, macro *goquery.Selection) {
		var src, filename string
		if att := macro.Find(`ri\:attachment`); att.Length() > 0 {
			filename = att.AttrOr("ri:filename", "")
			if filename != "" {
				src = t.attachmentURL(pageID, filename)
			}
		} else if ext := macro.Find(`ri\:url`); ext.Length() > 0 {
			src = ext.AttrOr("ri:value", "")
		}
		if src == "" {
			return
		}

		alt := macro.AttrOr("ac:alt", filename)
		width := macro.AttrOr("ac:width", macro.AttrOr("ac:original-width", ""))
		height := macro.AttrOr("ac:original-height", "")
		style, ok := imageAlignStyles[macro.AttrOr("ac:align", "center")]
		if !ok {
			style = imageStyle
		}

		var b strings.Builder
		fmt.Fprintf(&b, `<img src="%s" alt="%s" style="%s" data-confluence-image="true"`,
			html.EscapeString(src), html.EscapeString(alt), style)
		if filename != "" {
			fmt.Fprintf(&b, ` data-original-filename="%s"`, html.EscapeString(filename))
		}
		if width != "" {
			fmt.Fprintf(&b, ` width="%s"`, html.EscapeString(width))
		}
		if height != "" {
			fmt.Fprintf(&b, ` height="%s"`, html.EscapeString(height))
		}
		if title := macro.AttrOr("ac:title", ""); title != "" {
			fmt.Fprintf(&b, ` title="%s"`, html.EscapeString(title))
		}
		b.WriteString("/>")

		macro.ReplaceWithHtml(b.String())
	})
}

func (t *Transformer) fixImages(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")

		switch {
		case strings.Contains(src, "download/attachments") || strings.Contains(src, "download/thumbnails"):
			img.SetAttr("data-confluence-attachment", "true")
			if img.AttrOr("alt", "") == "" {
				img.SetAttr("alt", "Confluence attachment")
			}
		case src != "" && !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") && !strings.HasPrefix(src, "data:"):
			img.SetAttr("src", t.absolute(src))
		}

		if img.AttrOr("style", "") == "" {
			img.SetAttr("style", imageStyle)
		}

		title := img.AttrOr("title", "")
		if title == "" || goquery.NodeName(img.Parent()) == "figure" {
			return
		}
		img.WrapHtml(`<figure style="text-align: center; margin: 1em 0;"></figure>`)
		img.Parent().AppendHtml(`<figcaption style="font-style: italic; font-size: 0.9em; margin-top: 0.5em;">` +
			html.EscapeString(title) + `</figcaption>`)
	})
}

func convertCodeMacros(doc *goquery.Document) {
	doc.Find(`ac\:structured-macro`).Each(func(_ int, macro *goquery.Selection) {
		if macro.AttrOr("ac:name", "") != "code" {
			return
		}

		language := ""
		macro.Find(`ac\:parameter`).Each(func(_ int, param *goquery.Selection) {
			if param.AttrOr("ac:name", "") == "language" {
				language = strings.TrimSpace(param.Text())
			}
		})
		code := macro.Find(`ac\:plain-text-body`).First().Text()

		class := "code-block"
		attrs := ""
		if language != "" {
			class += " " + html.EscapeString(language)
			attrs = fmt.Sprintf(` data-language="%s"`, html.EscapeString(language))
		}

		macro.ReplaceWithHtml(fmt.Sprintf(`<pre class="%s"%s style="%s">%s</pre>`,
			class, attrs, blockCodeStyle, html.EscapeString(code)))
	})
}

// convertHighlighterTables flattens the line-numbered tables of rendered code macros into <pre>.
func convertHighlighterTables(doc *goquery.Document) {
	doc.Find("table.syntaxhighlighter, table.highlighterTable").Each(func(_ int, table *goquery.Selection) {
		var code strings.Builder
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			gutter := tr.Find("td.line-numbers, td.gutter")
			line := tr.Find("td.code, td.syntaxhighlighter")
			if gutter.Length() > 0 && line.Length() > 0 {
				code.WriteString(line.First().Text())
				code.WriteString("\n")
			}
		})

		if strings.TrimSpace(code.String()) == "" {
			return
		}
		table.ReplaceWithHtml(fmt.Sprintf(`<pre class="code-block" style="%s">%s</pre>`,
			blockCodeStyle, html.EscapeString(code.String())))
	})
}

func styleCode(doc *goquery.Document) {
	doc.Find("pre").Each(func(_ int, pre *goquery.Selection) {
		pre.AddClass("code-block")
		pre.SetAttr("style", blockCodeStyle)
		pre.Find("code").SetAttr("style", "white-space: pre; font-family: monospace;")
	})

	doc.Find("code").Each(func(_ int, code *goquery.Selection) {
		if goquery.NodeName(code.Parent()) != "pre" {
			code.SetAttr("style", inlineCodeStyle)
		}
	})
}

// EmbedImages inlines every Confluence attachment image as a data: URL, so that the HTML (and
// the PDF made from it) doesn't need a session to display.  Images that can't be downloaded keep
// their original src.
func (t *Transformer) EmbedImages(ctx context.Context, pageID, body string) (string, error) {
	if t.Attachments == nil {
		return body, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("localdump: couldn't parse HTML of %s: %w", pageID, err)
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		owner, filename, ok := attachmentFromURL(src)
		if !ok {
			return
		}
		if owner == "" {
			owner = pageID
		}

		data, err := t.Attachments.DownloadAttachment(ctx, owner, filename)
		if err != nil || len(data) == 0 {
			t.logger().Printf("couldn't embed image %s of page %s: %v", filename, pageID, err)
			return
		}

		img.SetAttr("src", fmt.Sprintf("data:%s;base64,%s", imageMIMEType(filename), base64.StdEncoding.EncodeToString(data)))
	})

	return doc.Find("body").Html()
}

var documentTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 1200px; margin: 0 auto; padding: 20px; }
        h1, h2, h3, h4, h5, h6 { margin-top: 1.5em; margin-bottom: 0.5em; }
        table { border-collapse: collapse; width: 100%; margin: 1em 0; overflow-x: auto; display: block; }
        th, td { border: 1px solid #ddd; padding: 8px; }
        th { background-color: #f2f2f2; }
        img { max-width: 100%; height: auto; }
        figure { text-align: center; margin: 1em 0; }
        figcaption { font-style: italic; font-size: 0.9em; margin-top: 0.5em; }
        pre { background-color: #f5f5f5; padding: 10px; overflow-x: auto; border-radius: 3px; white-space: pre; font-family: monospace; }
        code { font-family: monospace; background-color: #f5f5f5; padding: 2px 4px; border-radius: 3px; }
        .code-block { background-color: #f5f5f5; padding: 10px; border-radius: 4px; overflow-x: auto; white-space: pre; font-family: monospace; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <div class="content">
        {{.Body}}
    </div>
</body>
</html>
`))

// Document wraps a cleaned body in a complete HTML page.
func Document(title, body string) ([]byte, error) {
	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body),
	})
	if err != nil {
		return nil, fmt.Errorf("localdump: couldn't render HTML document: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Transformer) attachmentURL(pageID, filename string) string {
	if t.BaseURL == nil {
		return "/download/attachments/" + url.PathEscape(pageID) + "/" + url.PathEscape(filename)
	}
	return t.BaseURL.JoinPath("download", "attachments", url.PathEscape(pageID), url.PathEscape(filename)).String()
}

func (t *Transformer) absolute(ref string) string {
	if t.BaseURL == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if strings.HasPrefix(u.Path, "/") {
		// Site-relative links from Confluence already carry the /wiki prefix.
		base := *t.BaseURL
		base.Path, base.RawPath = "", ""
		return base.ResolveReference(u).String()
	}
	return t.BaseURL.JoinPath(u.Path).String()
}

// attachmentFromURL extracts the page id and filename from .../download/attachments/<id>/<file>.
func attachmentFromURL(src string) (pageID, filename string, ok bool) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "data" {
		return "", "", false
	}

	_, rest, found := strings.Cut(u.Path, "/download/attachments/")
	if !found {
		if !strings.HasPrefix(u.Path, "download/attachments/") {
			return "", "", false
		}
		rest = strings.TrimPrefix(u.Path, "download/attachments/")
	}

	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		filename = parts[0]
	default:
		pageID, filename = parts[0], parts[len(parts)-1]
	}
	if filename == "" {
		return "", "", false
	}
	return pageID, filename, true
}

func imageMIMEType(filename string) string {
	if t, ok := imageMIMETypes[strings.ToLower(path.Ext(filename))]; ok {
		return t
	}
	return "application/octet-stream"
}

func (t *Transformer) logger() *log.Logger {
	if t.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return t.Logger
}
