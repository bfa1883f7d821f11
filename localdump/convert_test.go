package localdump

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/toothbrush/confluence-export/confluence"
)

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	base, err := url.Parse("https://example.atlassian.net/wiki")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	return &Transformer{BaseURL: base}
}

func clean(t *testing.T, tr *Transformer, storage string) string {
	t.Helper()
	out, err := tr.Clean("42", storage)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	return out
}

func assertContains(t *testing.T, haystack string, needles ...string) {
	t.Helper()
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			t.Fatalf("expected %q in:\n%s", needle, haystack)
		}
	}
}

func TestCleanCodeMacroKeepsCDATA(t *testing.T) {
	storage := `<p>Before</p>` +
		`<ac:structured-macro ac:name="code">` +
		`<ac:parameter ac:name="language">go</ac:parameter>` +
		`<ac:plain-text-body><![CDATA[if a < b {
	fmt.Println("<hi>")
}]]></ac:plain-text-body>` +
		`</ac:structured-macro>`

	out := clean(t, newTestTransformer(t), storage)

	assertContains(t, out, `<p>Before</p>`, `class="code-block go"`, `data-language="go"`, `if a &lt; b {`, `&lt;hi&gt;`)
	if strings.Contains(out, "structured-macro") || strings.Contains(out, "CDATA") {
		t.Fatalf("macro markup should be gone:\n%s", out)
	}
}

func TestCleanDropsScriptsAndStyles(t *testing.T) {
	out := clean(t, newTestTransformer(t), `<p>hi</p><script>alert(1)</script><style>p{color:red}</style>`)

	if strings.Contains(out, "alert") || strings.Contains(out, "color:red") {
		t.Fatalf("script and style should be removed:\n%s", out)
	}
	assertContains(t, out, "<p>hi</p>")
}

func TestCleanImageMacros(t *testing.T) {
	storage := `<ac:image ac:align="right" ac:width="300">` +
		`<ri:attachment ri:filename="diagram one.png"></ri:attachment>` +
		`</ac:image>` +
		`<ac:image><ri:url ri:value="https://cdn.example.com/logo.svg"></ri:url></ac:image>`

	out := clean(t, newTestTransformer(t), storage)

	assertContains(t, out,
		`src="https://example.atlassian.net/wiki/download/attachments/42/diagram%20one.png"`,
		`data-original-filename="diagram one.png"`,
		`data-confluence-attachment="true"`,
		`width="300"`,
		`float: right`,
		`src="https://cdn.example.com/logo.svg"`,
	)
	if strings.Contains(out, "ac:image") {
		t.Fatalf("image macros should be replaced:\n%s", out)
	}
}

func TestCleanMakesImagesAbsoluteAndCaptionsThem(t *testing.T) {
	out := clean(t, newTestTransformer(t),
		`<img src="/wiki/images/icon.png"/><img src="https://x.example.com/y.png" title="A &amp; B"/>`)

	assertContains(t, out,
		`src="https://example.atlassian.net/wiki/images/icon.png"`,
		`<figure`,
		`A &amp; B</figcaption>`,
	)
}

func TestCleanFlattensHighlighterTables(t *testing.T) {
	storage := `<table class="syntaxhighlighter"><tbody>` +
		`<tr><td class="gutter">1</td><td class="code">x := 1</td></tr>` +
		`<tr><td class="gutter">2</td><td class="code">y := 2</td></tr>` +
		`</tbody></table>`

	out := clean(t, newTestTransformer(t), storage)

	assertContains(t, out, `<pre class="code-block"`, "x := 1\ny := 2\n")
	if strings.Contains(out, "<table") {
		t.Fatalf("table should be flattened:\n%s", out)
	}
}

type fakeAttachments struct {
	files map[string][]byte
	asked []string
}

func (f *fakeAttachments) DownloadAttachment(ctx context.Context, pageID, filename string) ([]byte, error) {
	f.asked = append(f.asked, pageID+"/"+filename)
	data, ok := f.files[filename]
	if !ok {
		return nil, errors.New("404")
	}
	return data, nil
}

func TestEmbedImages(t *testing.T) {
	tr := newTestTransformer(t)
	fetcher := &fakeAttachments{files: map[string][]byte{"pic.png": []byte("png bytes")}}
	tr.Attachments = fetcher

	body := `<img src="https://example.atlassian.net/wiki/download/attachments/42/pic.png"/>` +
		`<img src="https://example.atlassian.net/wiki/download/attachments/42/gone.png"/>` +
		`<img src="https://cdn.example.com/logo.svg"/>`

	out, err := tr.EmbedImages(context.Background(), "7", body)
	if err != nil {
		t.Fatalf("EmbedImages: %v", err)
	}

	assertContains(t, out,
		`src="data:image/png;base64,`+base64.StdEncoding.EncodeToString([]byte("png bytes"))+`"`,
		`src="https://example.atlassian.net/wiki/download/attachments/42/gone.png"`,
		`src="https://cdn.example.com/logo.svg"`,
	)
	if diff := cmp.Diff([]string{"42/pic.png", "42/gone.png"}, fetcher.asked); diff != "" {
		t.Fatalf("downloads mismatch (-want +got):\n%s", diff)
	}
}

func TestEmbedImagesWithoutFetcherIsIdentity(t *testing.T) {
	body := `<img src="https://example.atlassian.net/wiki/download/attachments/42/pic.png"/>`
	out, err := newTestTransformer(t).EmbedImages(context.Background(), "42", body)
	if err != nil || out != body {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestDocumentEscapesTitle(t *testing.T) {
	doc, err := Document("<b>Q&A</b>", "<p>ok</p>")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	assertContains(t, string(doc), "<!DOCTYPE html>", "<title>&lt;b&gt;Q&amp;A&lt;/b&gt;</title>", "<p>ok</p>")
}

func TestSanitizeFilename(t *testing.T) {
	long := strings.Repeat("x", 250)

	for _, tc := range []struct {
		in, want string
	}{
		{"Plain title", "Plain title"},
		{`a/b:c*d?"e"<f>|g\h`, "a_b_c_d__e__f__g_h"},
		{"  ", "untitled"},
		{"", "untitled"},
		{"tab\there", "tab_here"},
		{long, strings.Repeat("x", 197) + "..."},
		// 3 bytes per rune: cut back to a rune boundary.
		{strings.Repeat("文", 120), strings.Repeat("文", 65) + "..."},
	} {
		if got := sanitizeFilename(tc.in, maxFilenameBytes); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestArtifactPaths(t *testing.T) {
	e := &Exporter{StorePath: "/store"}
	page := confluence.Page{ID: "12", Title: "Release notes: 2.0", Space: &confluence.Space{Key: "DOCS"}}

	html, err := e.HTMLPath(page, NewContent)
	if err != nil {
		t.Fatalf("HTMLPath: %v", err)
	}
	pdf, _ := e.PDFPath(page, UpdatedContent)
	markdown, _ := e.MarkdownPath(page, NewContent)

	got := []string{html, pdf, markdown}
	want := []string{
		"/store/html/DOCS/new/Release notes_ 2.0_12.html",
		"/store/pdf/DOCS/updated/Release notes_ 2.0_12.pdf",
		"/store/markdown/DOCS/new/12-release-notes-2-0.md",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	if _, err := e.HTMLPath(confluence.Page{ID: "13"}, NewContent); err == nil {
		t.Fatalf("a page without a space should have no path")
	}
}

func TestArtifactPathsFitNameMax(t *testing.T) {
	e := &Exporter{StorePath: "/store"}

	for _, title := range []string{
		strings.Repeat("文", 120),
		strings.Repeat("é", 300),
		strings.Repeat("x", 1000),
		"a" + strings.Repeat("😀", 100),
	} {
		page := confluence.Page{ID: "1234567890", Title: title, Space: &confluence.Space{Key: "DOCS"}}
		for _, path := range []func(confluence.Page, ContentKind) (string, error){e.HTMLPath, e.PDFPath} {
			p, err := path(page, NewContent)
			if err != nil {
				t.Fatalf("path for %q: %v", title, err)
			}
			name := filepath.Base(p)
			if len(name) > 255 {
				t.Errorf("%d-byte filename for %q", len(name), title)
			}
			if !utf8.ValidString(name) {
				t.Errorf("filename %q isn't valid UTF-8", name)
			}
			if !strings.HasSuffix(name, "..._1234567890"+filepath.Ext(p)) {
				t.Errorf("expected the page ID to survive shortening: %q", name)
			}
		}
	}
}

func TestConvertToMarkdown(t *testing.T) {
	tr := newTestTransformer(t)
	page := confluence.Page{
		ID:        "77",
		Title:     "Hello",
		Status:    "current",
		Space:     &confluence.Space{Key: "DOCS"},
		Version:   &confluence.Version{Number: 3, When: "2024-05-10T09:00:00.000Z"},
		Ancestors: []confluence.ContentRef{{ID: "1", Title: "Parent"}},
	}
	page.Links.WebUI = "/spaces/DOCS/pages/77/Hello"

	out, err := tr.ConvertToMarkdown(page, `<p>Hello <strong>world</strong></p>`)
	if err != nil {
		t.Fatalf("ConvertToMarkdown: %v", err)
	}

	got := string(out)
	if !strings.HasPrefix(got, "---\n") {
		t.Fatalf("expected front matter:\n%s", got)
	}
	assertContains(t, got,
		"title: Hello",
		"version: 3",
		"space: DOCS",
		"uri: https://example.atlassian.net/wiki/spaces/DOCS/pages/77/Hello",
		"- Parent",
		"Hello **world**",
	)
}
