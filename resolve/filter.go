package resolve

import (
	"time"

	"github.com/toothbrush/confluence-export/confluence"
)

// CutoffDate is today minus days (at least one), as YYYY-MM-DD.
func CutoffDate(now time.Time, days int) string {
	if days < 1 {
		days = 1
	}
	return now.AddDate(0, 0, -days).Format(time.DateOnly)
}

// FilterModifiedSince keeps the pages whose last-modified timestamp is on or after the cutoff.
// Timestamps are ISO-8601, so comparing them as strings against the bare date is enough.  Pages
// without a timestamp are dropped.
func FilterModifiedSince(pages []confluence.Page, days int, now time.Time) []confluence.Page {
	cutoff := CutoffDate(now, days)

	kept := pages[:0:0]
	for _, page := range pages {
		if page.LastModified() >= cutoff {
			kept = append(kept, page)
		}
	}
	return kept
}

// FilterModifiedSince filters against the resolver's clock.
func (r *Resolver) FilterModifiedSince(pages []confluence.Page, days int) []confluence.Page {
	return FilterModifiedSince(pages, days, r.now())
}
