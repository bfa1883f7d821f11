package confluence

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
)

// getPageByIDEndpoint returns the (v1) API endpoint to download one page:
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-content/#api-wiki-rest-api-content-id-get
func (a *API) getPageByIDEndpoint(opts GetPageByIDQuery) (*url.URL, error) {
	if strings.TrimSpace(opts.ID) == "" {
		return nil, fmt.Errorf("confluence: please provide ID to get page by ID")
	}

	return a.endpointWithQuery(opts, "rest/api/content", url.PathEscape(opts.ID))
}

// getContentEndpoint returns the (v1) API endpoint to list or look up content by space and
// title:
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-content/#api-wiki-rest-api-content-get
func (a *API) getContentEndpoint(opts ContentQuery) (*url.URL, error) {
	return a.endpointWithQuery(opts, "rest/api/content")
}

// getSearchEndpoint returns the (v1) CQL search endpoint:
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-content/#api-wiki-rest-api-content-search-get
func (a *API) getSearchEndpoint(opts SearchQuery) (*url.URL, error) {
	if strings.TrimSpace(opts.CQL) == "" {
		return nil, fmt.Errorf("confluence: please provide a CQL query")
	}

	return a.endpointWithQuery(opts, "rest/api/content/search")
}

// getSpaceEndpoint returns the (v1) API endpoint to list spaces
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-space/#api-wiki-rest-api-space-get
func (a *API) getSpaceEndpoint(opts SpacesQuery) (*url.URL, error) {
	return a.endpointWithQuery(opts, "rest/api/space")
}

// getCurrentUserEndpoint returns the (v1) API endpoint to query current user
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-users/#api-wiki-rest-api-user-current-get
func (a *API) getCurrentUserEndpoint() (*url.URL, error) {
	return a.resolveEndpoint("rest/api/user/current")
}

// getAttachmentEndpoint is the plain download URL Confluence uses in rendered pages.  It is
// not a REST resource and returns the raw bytes.
func (a *API) getAttachmentEndpoint(pageID, filename string) (*url.URL, error) {
	if pageID == "" || filename == "" {
		return nil, fmt.Errorf("confluence: attachment needs both page ID and filename")
	}

	return a.resolveEndpoint("download/attachments", url.PathEscape(pageID), url.PathEscape(filename))
}

func (a *API) endpointWithQuery(opts any, elem ...string) (*url.URL, error) {
	ep, err := a.resolveEndpoint(elem...)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't resolve endpoint: %w", err)
	}

	v, err := query.Values(opts)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't encode query params: %w", err)
	}
	ep.RawQuery = v.Encode()

	return ep, nil
}

// Join endpoint path segments onto the wiki root.  Segments must already be escaped.
func (a *API) resolveEndpoint(elem ...string) (*url.URL, error) {
	if a.BaseURI == nil {
		return nil, fmt.Errorf("confluence: no base URI configured")
	}

	ep := *a.BaseURI
	ep.Path = strings.TrimRight(ep.Path, "/") + "/" + strings.Join(elem, "/")
	unescaped, err := url.PathUnescape(ep.Path)
	if err != nil {
		return nil, fmt.Errorf("confluence: failed to parse endpoint ref: %w", err)
	}
	// Keep the escaped form on the wire, so filenames with '/' or '?' survive.
	ep.RawPath = ep.Path
	ep.Path = unescaped
	ep.RawQuery = ""
	ep.Fragment = ""

	return &ep, nil
}
