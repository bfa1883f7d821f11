package confluence

// See https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-users/#api-wiki-rest-api-user-current-get
type User struct {
	Type        string `json:"type"`
	Username    string `json:"username"`
	UserKey     string `json:"userKey"`
	AccountID   string `json:"accountId"`
	AccountType string `json:"accountType"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// See https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-space/#api-wiki-rest-api-space-get
type Space struct {
	ID     int    `json:"id,omitempty"`
	Key    string `json:"key,omitempty"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
}

// Page is the v1 content shape, as returned with
// expand=body.storage,version,space,ancestors,children.page.  See
// https://developer.atlassian.com/cloud/confluence/rest/v1/api-group-content/#api-wiki-rest-api-content-id-get
type Page struct {
	ID     string `json:"id"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"` // current, archived, trashed
	Title  string `json:"title"`

	Space     *Space       `json:"space,omitempty"`
	Version   *Version     `json:"version,omitempty"`
	Body      Body         `json:"body"`
	Ancestors []ContentRef `json:"ancestors,omitempty"`
	Children  *Children    `json:"children,omitempty"`

	Links struct {
		WebUI  string `json:"webui,omitempty"`
		TinyUI string `json:"tinyui,omitempty"`
	} `json:"_links"`
}

// Version defines the content version number.  Number is bumped on every edit.
type Version struct {
	Number    int    `json:"number"`
	When      string `json:"when,omitempty"`
	Message   string `json:"message,omitempty"`
	MinorEdit bool   `json:"minorEdit,omitempty"`
}

// Body holds the storage information
type Body struct {
	Storage *Storage `json:"storage,omitempty"`
	View    *Storage `json:"view,omitempty"`
}

// Storage defines the storage information
type Storage struct {
	Representation string `json:"representation"`
	Value          string `json:"value"`
}

// ContentRef is the abbreviated form Confluence uses for ancestors and children.
type ContentRef struct {
	ID    string `json:"id"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

type Children struct {
	Page *ContentRefList `json:"page,omitempty"`
}

type ContentRefList struct {
	Results []ContentRef `json:"results"`
	Start   int          `json:"start"`
	Limit   int          `json:"limit"`
	Size    int          `json:"size"`
}

func (p Page) SpaceKey() string {
	if p.Space == nil {
		return ""
	}
	return p.Space.Key
}

func (p Page) VersionNumber() int {
	if p.Version == nil {
		return 0
	}
	return p.Version.Number
}

// LastModified is advisory only; Version is what decides whether a page changed.
func (p Page) LastModified() string {
	if p.Version == nil {
		return ""
	}
	return p.Version.When
}

// ChildIDs returns the ids of the directly declared child pages, in API order.
func (p Page) ChildIDs() []string {
	if p.Children == nil || p.Children.Page == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Children.Page.Results))
	for _, c := range p.Children.Page.Results {
		if c.ID != "" {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// StorageValue is the storage-format markup, or "" if it wasn't expanded.
func (p Page) StorageValue() string {
	if p.Body.Storage == nil {
		return ""
	}
	return p.Body.Storage.Value
}
