// Package browser defines the page capability the report pipeline drives and
// a headless Chrome implementation of it built on chromedp.
//
// Selectors are plain strings. Anything starting with "/" or "(" is treated
// as XPath, everything else as a CSS selector.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNavigationTimeout is returned when a page does not settle within the
	// action timeout.
	ErrNavigationTimeout = errors.New("browser: page did not reach network idle")
	// ErrNotFound is returned by reads when the selector matches nothing.
	ErrNotFound = errors.New("browser: element not found")
)

// Page is the set of UI operations the pipeline needs from a browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error
	// WaitIdle blocks until no network request has been in flight for the
	// configured quiet period.
	WaitIdle(ctx context.Context) error
	Visible(ctx context.Context, sel string) (bool, error)
	Text(ctx context.Context, sel string) (string, error)
	// Rows returns the raw text of every cellSel element under each rowSel
	// element, in document order.
	Rows(ctx context.Context, rowSel, cellSel string) ([][]string, error)
}

// Instance is a launched browser exposing a single page.
type Instance interface {
	Page
	Close() error
}

// IsXPath reports whether sel is an XPath expression.
func IsXPath(sel string) bool {
	return len(sel) > 0 && (sel[0] == '/' || sel[0] == '(')
}
