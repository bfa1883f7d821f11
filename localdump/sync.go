package localdump

import (
	"context"
	"fmt"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/toothbrush/confluence-export/confluence"
	"github.com/toothbrush/confluence-export/resolve"
)

const DefaultDays = 1

// Selection picks what a Sync exports.  PageID wins over Title (which needs SpaceKey), which wins
// over SpaceKey.  With none of them set, pages modified in the last Days days are exported.
type Selection struct {
	PageID   string
	Title    string
	SpaceKey string

	// Window for the default mode.  When DaysSet, every mode also drops pages modified before
	// the window.
	Days    int
	DaysSet bool

	// Default mode only: afterwards, export pages from every space that the ledger has never
	// seen.
	CheckMissing bool
}

// Sync resolves the selection and exports what changed.  Only a root that can't be found is
// an error; individual page failures are counted in the stats.
func (e *Exporter) Sync(ctx context.Context, r *resolve.Resolver, sel Selection) (Stats, error) {
	if err := e.checkStore(); err != nil {
		return e.stats, err
	}
	if !e.HTMLOnly && e.Renderer == nil {
		e.logger().Printf("no PDF renderer available, only HTML will be exported")
	}

	days := sel.Days
	if days < 1 {
		days = DefaultDays
	}

	pass := r.NewPass()

	var (
		pages []confluence.Page
		err   error
	)
	switch {
	case sel.PageID != "":
		pages, err = pass.ByID(ctx, sel.PageID)
	case sel.Title != "":
		if sel.SpaceKey == "" {
			return e.stats, fmt.Errorf("localdump: looking up a page by title needs a space key")
		}
		pages, err = pass.ByTitle(ctx, sel.SpaceKey, sel.Title)
	case sel.SpaceKey != "":
		pages, err = pass.BySpace(ctx, sel.SpaceKey)
	default:
		pages, err = pass.Updated(ctx, days)
	}
	if err != nil {
		e.stats.Failed++
		return e.stats, err
	}
	e.stats.TotalFromAPI += len(pages)

	if sel.DaysSet {
		pages = r.FilterModifiedSince(pages, days)
		e.logger().Printf("%d page(s) modified in the last %d day(s)", len(pages), days)
	}

	opts := ExportOptions{}
	if sel.PageID == "" && sel.Title == "" && sel.SpaceKey != "" {
		opts.ForceSpace = sel.SpaceKey
		if e.neverExported(pages) {
			e.logger().Printf("first sync of space %s, exporting all %d page(s)", sel.SpaceKey, len(pages))
			opts.Force = true
		}
	}

	if err := e.exportAll(ctx, "pages", pages, func(confluence.Page) ExportOptions { return opts }); err != nil {
		return e.stats, err
	}

	if sel.PageID == "" && sel.Title == "" && sel.SpaceKey == "" && sel.CheckMissing {
		if err := e.sweep(ctx, r, pass); err != nil {
			return e.stats, err
		}
	}

	return e.stats, nil
}

// sweep exports pages that exist remotely but were never exported, space by space.  Pages
// already handled in this pass are not listed again.
func (e *Exporter) sweep(ctx context.Context, r *resolve.Resolver, pass *resolve.Pass) error {
	spaces, err := r.Spaces(ctx)
	if err != nil {
		e.logger().Printf("couldn't list spaces to look for missing pages: %v", err)
		return nil
	}

	for _, space := range spaces {
		if err := ctx.Err(); err != nil {
			return err
		}

		pages, err := pass.BySpace(ctx, space.Key)
		if err != nil {
			e.logger().Printf("couldn't list space %s: %v", space.Key, err)
			continue
		}
		e.stats.TotalFromAPI += len(pages)

		if e.neverExported(pages) {
			if len(pages) > 0 {
				e.logger().Printf("first sync of space %s, exporting all %d page(s)", space.Key, len(pages))
			}
			if err := e.exportAll(ctx, space.Key, pages, func(confluence.Page) ExportOptions {
				return ExportOptions{Force: true}
			}); err != nil {
				return err
			}
			continue
		}

		var missing []confluence.Page
		for _, page := range pages {
			if _, ok := e.Ledger.Get(page.ID); !ok {
				missing = append(missing, page)
			}
		}
		if len(missing) > 0 {
			e.logger().Printf("found %d page(s) in space %s that were never exported", len(missing), space.Key)
		}
		if err := e.exportAll(ctx, space.Key, missing, func(confluence.Page) ExportOptions {
			return ExportOptions{}
		}); err != nil {
			return err
		}
	}

	return nil
}

func (e *Exporter) neverExported(pages []confluence.Page) bool {
	for _, page := range pages {
		if _, ok := e.Ledger.Get(page.ID); ok {
			return false
		}
	}
	return true
}

// exportAll exports pages one after the other, with a progress bar if enabled.
func (e *Exporter) exportAll(ctx context.Context, name string, pages []confluence.Page, options func(confluence.Page) ExportOptions) error {
	if len(pages) == 0 {
		return nil
	}

	var (
		p   *mpb.Progress
		bar *mpb.Bar
	)
	if e.Progress != nil {
		p = mpb.NewWithContext(ctx, mpb.WithOutput(e.Progress), mpb.WithWidth(64))
		bar = p.AddBar(int64(len(pages)),
			mpb.PrependDecorators(
				// display our name with one space on the right
				decor.Name(fmt.Sprintf("%s:", name),
					decor.WC{C: decor.DindentRight | decor.DextraSpace}),
			),
			mpb.AppendDecorators(
				decor.CountersNoUnit("(%d/%d) "),
				decor.NewPercentage("%d"),
				decor.Spinner([]string{" /", " -", " \\", " |"}),
			),
		)
	}

	var err error
	for _, page := range pages {
		if err = ctx.Err(); err != nil {
			break
		}
		e.ExportPage(ctx, page, options(page))
		if bar != nil {
			bar.Increment()
		}
	}

	if p != nil {
		if err != nil {
			bar.Abort(false)
		}
		// wait for our bar to complete and flush
		p.Wait()
	}

	return err
}
