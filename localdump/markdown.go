package localdump

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	mdplugin "github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	"github.com/toothbrush/confluence-export/confluence"
)

// MarkdownHeader is the YAML front matter of a Markdown export.
type MarkdownHeader struct {
	Title         string   `yaml:"title"`
	Timestamp     string   `yaml:"timestamp,omitempty"`
	Version       int      `yaml:"version"`
	ObjectID      string   `yaml:"object_id"`
	Space         string   `yaml:"space"`
	URI           string   `yaml:"uri,omitempty"`
	Status        string   `yaml:"status,omitempty"`
	AncestorNames []string `yaml:"ancestor_names,omitempty"`
	AncestorIDs   []string `yaml:"ancestor_ids,omitempty"`
}

// ConvertToMarkdown renders an already cleaned body as Markdown with front matter.
func (t *Transformer) ConvertToMarkdown(page confluence.Page, cleaned string) ([]byte, error) {
	host := ""
	scheme := "https"
	if t.BaseURL != nil {
		host = t.BaseURL.Host
		scheme = t.BaseURL.Scheme
	}

	// Oh my, this is pretty awful.  md.NewConverter should really accept a BaseURI but actually it
	// only accepts a hostname.  So we have this hack, adapted from:
	// https://github.com/JohannesKaufmann/html-to-markdown/issues/44
	opt := &md.Options{
		GetAbsoluteURL: func(selec *goquery.Selection, rawURL string, domain string) string {
			if domain == "" {
				return rawURL
			}

			u, err := url.Parse(rawURL)
			if err != nil {
				// we can't do anything with this url because it is invalid
				return rawURL
			}

			if u.Scheme == "data" {
				// this is a data uri (for example an inline base64 image)
				return rawURL
			}

			if u.Scheme == "" {
				u.Scheme = scheme
			}
			if u.Host == "" {
				u.Host = domain // this comes from the first arg to md.NewConverter
			}

			return u.String()
		},
	}

	converter := md.NewConverter(host, true, opt)
	// Github flavoured Markdown knows about tables 👍
	converter.Use(mdplugin.GitHubFlavored())

	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("localdump: failed to convert to Markdown: %w", err)
	}

	header := MarkdownHeader{
		Title:     page.Title,
		Timestamp: page.LastModified(),
		Version:   page.VersionNumber(),
		ObjectID:  page.ID,
		Space:     page.SpaceKey(),
		Status:    page.Status,
	}
	if t.BaseURL != nil && page.Links.WebUI != "" {
		header.URI = t.BaseURL.String() + page.Links.WebUI
	}
	for _, ancestor := range page.Ancestors {
		header.AncestorIDs = append(header.AncestorIDs, ancestor.ID)
		header.AncestorNames = append(header.AncestorNames, ancestor.Title)
	}

	yamlHeader, err := yaml.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("localdump: couldn't marshal header YAML: %w", err)
	}

	body := fmt.Sprintf(`---
%s
---
%s
`,
		strings.TrimSpace(string(yamlHeader)),
		markdown)

	return []byte(body), nil
}
