package confluence

// PageList is the paginated response of /rest/api/content and /rest/api/content/search.
type PageList struct {
	Results []Page `json:"results"`
	Start   int    `json:"start"`
	Limit   int    `json:"limit"`
	Size    int    `json:"size"`

	Links struct {
		// Set while there are more results.
		Next string `json:"next"`
	} `json:"_links"`
}

// SpaceList is the paginated response of /rest/api/space.
type SpaceList struct {
	Results []Space `json:"results"`
	Start   int     `json:"start"`
	Limit   int     `json:"limit"`
	Size    int     `json:"size"`

	Links struct {
		Next string `json:"next"`
	} `json:"_links"`
}
