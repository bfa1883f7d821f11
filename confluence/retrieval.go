package confluence

import (
	"context"
	"fmt"
)

// Batch is one page of a listing as the server returned it.
type Batch[T any] struct {
	Items []T
	// Page size the server applied, which can be less than what we asked for (Confluence caps
	// it when bodies are expanded).  0 if unknown.
	Limit int
	// The server advertised a further page.
	Next bool
}

// PageFunc fetches one page of results starting at offset start.
type PageFunc[T any] func(ctx context.Context, start, limit int) (Batch[T], error)

// Paginate walks an offset-paginated listing until a page comes back empty, or short of the page
// size the server actually used with no next link.  On error it returns what it collected so
// far along with the error.
func Paginate[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	var all []T
	start := 0
	for {
		batch, err := fetch(ctx, start, limit)
		if err != nil {
			return all, err
		}
		all = append(all, batch.Items...)

		effective := limit
		if batch.Limit > 0 && batch.Limit < effective {
			effective = batch.Limit
		}
		if len(batch.Items) == 0 || (len(batch.Items) < effective && !batch.Next) {
			return all, nil
		}
		start += len(batch.Items)
	}
}

func pageBatch(list *PageList) Batch[Page] {
	return Batch[Page]{Items: list.Results, Limit: list.Limit, Next: list.Links.Next != ""}
}

// GetPageByTitle looks up a page by exact title within a space.  Returns ErrNotFound (wrapped)
// if there's no such page.
func (api *API) GetPageByTitle(ctx context.Context, spaceKey, title string) (*Page, error) {
	if spaceKey == "" || title == "" {
		return nil, fmt.Errorf("confluence: need both space key and title to look up a page")
	}

	list, err := api.getContent(ctx, ContentQuery{
		SpaceKey: spaceKey,
		Title:    title,
		Type:     "page",
		Expand:   DefaultExpand,
		Limit:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't look up %q in %s: %w", title, spaceKey, err)
	}

	if len(list.Results) == 0 {
		return nil, fmt.Errorf("confluence: page %q in space %s: %w", title, spaceKey, ErrNotFound)
	}

	return &list.Results[0], nil
}

// ListPagesInSpace lists every current page in a space, fully expanded.
func (api *API) ListPagesInSpace(ctx context.Context, spaceKey string) ([]Page, error) {
	if spaceKey == "" {
		return nil, fmt.Errorf("confluence: please provide a space key")
	}

	pages, err := Paginate(ctx, api.pageLimit, func(ctx context.Context, start, limit int) (Batch[Page], error) {
		list, err := api.getContent(ctx, ContentQuery{
			SpaceKey: spaceKey,
			Type:     "page",
			Status:   "current",
			Expand:   DefaultExpand,
			Start:    start,
			Limit:    limit,
		})
		if err != nil {
			return Batch[Page]{}, err
		}
		return pageBatch(list), nil
	})
	if err != nil {
		return pages, fmt.Errorf("confluence: couldn't list pages in %s: %w", spaceKey, err)
	}

	return pages, nil
}

// SearchPages runs a CQL query and returns all matching content, fully expanded.
func (api *API) SearchPages(ctx context.Context, cql string) ([]Page, error) {
	pages, err := Paginate(ctx, api.pageLimit, func(ctx context.Context, start, limit int) (Batch[Page], error) {
		list, err := api.search(ctx, SearchQuery{
			CQL:    cql,
			Expand: DefaultExpand,
			Start:  start,
			Limit:  limit,
		})
		if err != nil {
			return Batch[Page]{}, err
		}
		return pageBatch(list), nil
	})
	if err != nil {
		return pages, fmt.Errorf("confluence: search failed: %w", err)
	}

	return pages, nil
}

// ListAllSpaces returns all current spaces, keyed by space key.
func (api *API) ListAllSpaces(ctx context.Context, includePersonal bool) (map[string]Space, error) {
	query := SpacesQuery{Status: "current"}

	if !includePersonal {
		// Logic here is a bit confusing.  The `type` parameter may be "global", "personal", or
		// nothing at all for both.  "global" will return spaces like DRE, CORE, etc., while
		// "personal" returns each user's space.  Leaving it empty gives us everything, so we only
		// set this if we _do not_ intend to include personal spaces in our query.
		query.Type = "global"
	}

	list, err := Paginate(ctx, api.pageLimit, func(ctx context.Context, start, limit int) (Batch[Space], error) {
		q := query
		q.Start, q.Limit = start, limit
		allspaces, err := api.getSpaces(ctx, q)
		if err != nil {
			return Batch[Space]{}, err
		}
		return Batch[Space]{Items: allspaces.Results, Limit: allspaces.Limit, Next: allspaces.Links.Next != ""}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't list spaces: %w", err)
	}

	spaces := make(map[string]Space, len(list))
	for _, space := range list {
		spaces[space.Key] = space
	}

	return spaces, nil
}
