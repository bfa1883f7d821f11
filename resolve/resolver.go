// Package resolve turns a root selection (a page, a titled page, a space, or "everything changed
// lately") into a flat list of pages, following child links without ever fetching a page twice.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/toothbrush/confluence-export/confluence"
)

var ErrRootNotFound = errors.New("resolve: root not found")

// Gateway is the subset of *confluence.API the resolver needs.
type Gateway interface {
	GetPageByID(ctx context.Context, opts confluence.GetPageByIDQuery) (*confluence.Page, error)
	GetPageByTitle(ctx context.Context, spaceKey, title string) (*confluence.Page, error)
	ListPagesInSpace(ctx context.Context, spaceKey string) ([]confluence.Page, error)
	SearchPages(ctx context.Context, cql string) ([]confluence.Page, error)
	ListAllSpaces(ctx context.Context, includePersonal bool) (map[string]confluence.Space, error)
}

var _ Gateway = (*confluence.API)(nil)

type Resolver struct {
	Gateway Gateway

	// Follow child links all the way down.  When false, id and title lookups only add direct
	// children, and listings are returned as-is.
	Recursive bool

	Logger *log.Logger

	// For tests.
	Now func() time.Time
}

func New(gw Gateway, recursive bool, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Resolver{
		Gateway:   gw,
		Recursive: recursive,
		Logger:    logger,
		Now:       time.Now,
	}
}

// Pass is one run's worth of resolution.  Pages are only ever returned once per pass, no matter
// how many roots reach them.
type Pass struct {
	r      *Resolver
	seen   map[string]bool
	failed map[string]bool
}

func (r *Resolver) NewPass() *Pass {
	return &Pass{
		r:      r,
		seen:   map[string]bool{},
		failed: map[string]bool{},
	}
}

// Seen reports whether id has already been returned by this pass.
func (p *Pass) Seen(id string) bool {
	return p.seen[id]
}

// Each of these is a convenience for a single-root, single-pass resolution.

func (r *Resolver) ByID(ctx context.Context, id string) ([]confluence.Page, error) {
	return r.NewPass().ByID(ctx, id)
}

func (r *Resolver) ByTitle(ctx context.Context, spaceKey, title string) ([]confluence.Page, error) {
	return r.NewPass().ByTitle(ctx, spaceKey, title)
}

func (r *Resolver) BySpace(ctx context.Context, spaceKey string) ([]confluence.Page, error) {
	return r.NewPass().BySpace(ctx, spaceKey)
}

func (r *Resolver) Updated(ctx context.Context, days int) ([]confluence.Page, error) {
	return r.NewPass().Updated(ctx, days)
}

// ByID resolves a page and its descendants.
func (p *Pass) ByID(ctx context.Context, id string) ([]confluence.Page, error) {
	if p.seen[id] {
		return nil, nil
	}

	root, err := p.r.Gateway.GetPageByID(ctx, confluence.GetPageByIDQuery{ID: id})
	if err != nil {
		p.failed[id] = true
		return nil, fmt.Errorf("resolve: page %s: %w: %w", id, ErrRootNotFound, err)
	}

	return p.fromRoot(ctx, *root), nil
}

// ByTitle resolves the first page in the space with exactly this title, and its descendants.
func (p *Pass) ByTitle(ctx context.Context, spaceKey, title string) ([]confluence.Page, error) {
	root, err := p.r.Gateway.GetPageByTitle(ctx, spaceKey, title)
	if err != nil {
		return nil, fmt.Errorf("resolve: page %q in space %s: %w: %w", title, spaceKey, ErrRootNotFound, err)
	}
	if p.seen[root.ID] {
		return nil, nil
	}

	return p.fromRoot(ctx, *root), nil
}

// BySpace resolves every page in a space.  With recursion on, children the listing somehow
// missed are fetched too.
func (p *Pass) BySpace(ctx context.Context, spaceKey string) ([]confluence.Page, error) {
	listed, err := p.r.Gateway.ListPagesInSpace(ctx, spaceKey)
	if err != nil {
		if len(listed) == 0 {
			return nil, fmt.Errorf("resolve: space %s: %w: %w", spaceKey, ErrRootNotFound, err)
		}
		p.r.Logger.Printf("listing space %s was cut short, continuing with %d page(s): %v", spaceKey, len(listed), err)
	}

	return p.fromListing(ctx, listed), nil
}

// Updated resolves every page modified in the last days days (at least one), across all spaces.
// If the global search comes back empty or fails, every space is searched on its own.
func (p *Pass) Updated(ctx context.Context, days int) ([]confluence.Page, error) {
	since := CutoffDate(p.r.now(), days)
	filter := fmt.Sprintf(`lastmodified >= "%s" AND type=page`, since)

	listed, err := p.r.Gateway.SearchPages(ctx, filter)
	if err != nil {
		p.r.Logger.Printf("searching pages modified since %s failed, trying space by space: %v", since, err)
		listed = nil
	} else if len(listed) == 0 {
		p.r.Logger.Printf("no pages modified since %s found globally, trying space by space", since)
	}

	if len(listed) == 0 {
		spaces, err := p.r.Spaces(ctx)
		if err != nil {
			return nil, err
		}
		for _, space := range spaces {
			found, err := p.r.Gateway.SearchPages(ctx, fmt.Sprintf(`space = "%s" AND %s`, space.Key, filter))
			if err != nil {
				p.r.Logger.Printf("searching space %s failed: %v", space.Key, err)
			}
			listed = append(listed, found...)
		}
	}

	return p.fromListing(ctx, listed), nil
}

// Spaces returns every space we can see, ordered by key.
func (r *Resolver) Spaces(ctx context.Context) ([]confluence.Space, error) {
	all, err := r.Gateway.ListAllSpaces(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("resolve: couldn't list spaces: %w", err)
	}

	spaces := make([]confluence.Space, 0, len(all))
	for _, s := range all {
		spaces = append(spaces, s)
	}
	sort.Slice(spaces, func(i, j int) bool { return spaces[i].Key < spaces[j].Key })

	return spaces, nil
}

func (p *Pass) fromRoot(ctx context.Context, root confluence.Page) []confluence.Page {
	result := p.include(nil, root)

	depth := 0 // unlimited
	if !p.r.Recursive {
		depth = 1
	}
	return p.expand(ctx, result, []confluence.Page{root}, depth)
}

func (p *Pass) fromListing(ctx context.Context, listed []confluence.Page) []confluence.Page {
	var result, fresh []confluence.Page
	for _, page := range listed {
		if page.ID == "" || p.seen[page.ID] {
			continue
		}
		result = p.include(result, page)
		fresh = append(fresh, page)
	}

	if !p.r.Recursive {
		return result
	}
	return p.expand(ctx, result, fresh, 0)
}

type pending struct {
	id    string
	depth int
}

// expand walks down from parents, depth first, fetching every child not seen yet.  A maxDepth of
// 0 means no limit.  Children that can't be fetched are dropped along with their subtree.
func (p *Pass) expand(ctx context.Context, result, parents []confluence.Page, maxDepth int) []confluence.Page {
	var stack []pending
	push := func(page confluence.Page, depth int) {
		children := page.ChildIDs()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, pending{id: children[i], depth: depth})
		}
	}
	for i := len(parents) - 1; i >= 0; i-- {
		push(parents[i], 1)
	}

	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.seen[next.id] || p.failed[next.id] {
			continue
		}
		if ctx.Err() != nil {
			p.r.Logger.Printf("stopping tree walk: %v", ctx.Err())
			break
		}

		page, err := p.r.Gateway.GetPageByID(ctx, confluence.GetPageByIDQuery{ID: next.id})
		if err != nil {
			p.failed[next.id] = true
			p.r.Logger.Printf("skipping page %s and its children: %v", next.id, err)
			continue
		}
		if page.ID == "" {
			page.ID = next.id
		}
		if p.seen[page.ID] {
			p.seen[next.id] = true
			continue
		}

		result = p.include(result, *page)
		p.seen[next.id] = true

		if maxDepth == 0 || next.depth < maxDepth {
			push(*page, next.depth+1)
		}
	}

	return result
}

func (p *Pass) include(result []confluence.Page, page confluence.Page) []confluence.Page {
	p.seen[page.ID] = true
	return append(result, page)
}

func (r *Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
