// Package browser drives the editor through a real Chrome instance.
package browser

import (
	"context"
	"strings"
	"time"
)

// Page is the automation surface the flows depend on. Selectors starting with
// "/" or "(" are XPath, anything else is CSS.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by the page-load timeout.
	Navigate(ctx context.Context, url string) error

	// Location returns the current URL.
	Location(ctx context.Context) (string, error)

	// ReadyState returns document.readyState.
	ReadyState(ctx context.Context) (string, error)

	// WaitVisible blocks until sel is visible or ctx ends.
	WaitVisible(ctx context.Context, sel string) error

	// WaitClickable blocks until sel is visible and enabled or ctx ends.
	WaitClickable(ctx context.Context, sel string) error

	// Exists reports whether sel matches anything right now. Never waits.
	Exists(ctx context.Context, sel string) (bool, error)

	Click(ctx context.Context, sel string) error

	// Type clears sel and sends keystrokes.
	Type(ctx context.Context, sel, text string) error

	// SetValue assigns the value directly and fires input/change events.
	SetValue(ctx context.Context, sel, value string) error

	// Attribute reads an attribute of the first match. Never waits.
	Attribute(ctx context.Context, sel, name string) (string, bool, error)

	// Text returns the trimmed text of the first match. Never waits.
	Text(ctx context.Context, sel string) (string, bool, error)

	// Choices lists the visible, enabled matches of sel.
	Choices(ctx context.Context, sel string) ([]Choice, error)

	// ClickChoice clicks the match of sel at a Choice.Index.
	ClickChoice(ctx context.Context, sel string, index int) error

	LocalStorage(ctx context.Context, key string) (string, error)
	SetLocalStorage(ctx context.Context, key, value string) error
	RemoveLocalStorage(ctx context.Context, key string) error

	// ClickAndFollowPopup clicks sel and returns the page of any window the
	// click opened within wait. Without a new window the receiver is returned.
	ClickAndFollowPopup(ctx context.Context, sel string, wait time.Duration) (Page, error)

	// Close releases a popup page. It is a no-op on the session's main page.
	Close() error
}

// Choice is one selectable control found by Page.Choices
type Choice struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// IsXPath reports whether sel should be evaluated as XPath
func IsXPath(sel string) bool {
	sel = strings.TrimSpace(sel)
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(")
}
