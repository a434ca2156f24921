// package browser defines the page driver contract used by the scraper and
// its playwright implementation.
package browser

import (
	"context"
	"time"
)

// Element is a handle on one node of the rendered page.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	// Query returns the first descendant matching selector, or nil when there is none.
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// PageDriver navigates and queries a rendered page.
//
// QuerySelector returns a nil Element and no error when nothing matches.
// Selectors may use playwright's chained syntax (e.g. ".picker >> nth=1").
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	QuerySelector(ctx context.Context, selector string) (Element, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	Click(ctx context.Context, selector string) error
	TypeText(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error
	EvaluateScript(ctx context.Context, script string) (any, error)
	// WaitForSelectorOrTimeout reports whether selector became visible before timeout.
	WaitForSelectorOrTimeout(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	Close() error
}
