package confluence

// Everything we export needs the same expansions: the body to render, the version for change
// detection, the space for file layout and the children for tree traversal.
var DefaultExpand = []string{"body.storage", "version", "space", "ancestors", "children.page"}

// GetPageByIDQuery defines the query parameters for:
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-content/#api-wiki-rest-api-content-id-get
type GetPageByIDQuery struct {
	ID     string   `url:"-"` // ID of the page; required
	Expand []string `url:"expand,omitempty,comma"`
	Status string   `url:"status,omitempty"`
}

// ContentQuery defines the query parameters for:
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-content/#api-wiki-rest-api-content-get
type ContentQuery struct {
	// Filter the results to content based on...
	SpaceKey string `url:"spaceKey,omitempty"` // the space it lives in.
	Title    string `url:"title,omitempty"`    // exact title; requires SpaceKey.
	Type     string `url:"type,omitempty"`     // page or blogpost.
	Status   string `url:"status,omitempty"`   // current, trashed, draft, any.

	Expand []string `url:"expand,omitempty,comma"`

	Start int `url:"start"`
	Limit int `url:"limit,omitempty"` // page limit; server caps it, typically at 100 when body is expanded
}

// SearchQuery defines the query parameters for:
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-content/#api-wiki-rest-api-content-search-get
type SearchQuery struct {
	CQL    string   `url:"cql"`
	Expand []string `url:"expand,omitempty,comma"`

	Start int `url:"start"`
	Limit int `url:"limit,omitempty"`
}

// SpacesQuery defines the query parameters for:
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-space/#api-wiki-rest-api-space-get
type SpacesQuery struct {
	Type   string `url:"type,omitempty"`   // global or personal; empty for both
	Status string `url:"status,omitempty"` // current or archived

	Start int `url:"start"`
	Limit int `url:"limit,omitempty"`
}
