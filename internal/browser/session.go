// Package browser wraps browser automation behind a narrow session
// interface so the rest of the code never touches the driver directly.
package browser

import "errors"

// ErrTimeout is returned when a page operation exceeds the session's
// page-load deadline.
var ErrTimeout = errors.New("operation timed out")

// Session is the capability surface a live browser page exposes.
// Implementations: Chrome (rod-backed) and browsertest.FakeSession.
type Session interface {
	// Navigate loads the given URL in the page.
	Navigate(url string) error

	// WaitLoad blocks until the page load event fires and the DOM settles.
	WaitLoad() error

	// URL returns the current page URL.
	URL() (string, error)

	// Title returns the current document title.
	Title() (string, error)

	// HTML returns the full serialized document.
	HTML() (string, error)

	// Eval runs a JavaScript expression, discarding the result.
	Eval(js string) error

	// EvalNumber runs a JavaScript expression and returns its numeric result.
	EvalNumber(js string) (float64, error)

	// Elements returns all elements matching the CSS selector.
	// A selector that matches nothing returns an empty slice, not an error.
	Elements(selector string) ([]Element, error)

	// InstallOnNewDocument registers a script that runs before every
	// document in this session starts executing its own scripts.
	InstallOnNewDocument(js string) error

	// Close shuts down the session and releases the underlying browser.
	Close() error
}

// Element is a handle to a single DOM element within a Session.
type Element interface {
	// Visible reports whether the element is rendered and displayed.
	Visible() (bool, error)

	// InViewport reports whether the element's top edge is inside the
	// current viewport.
	InViewport() (bool, error)

	// ScrollIntoCenter smoothly scrolls the element to viewport center.
	ScrollIntoCenter() error

	// Click performs a trusted mouse click on the element.
	Click() error

	// ClickViaScript clicks through the DOM API, bypassing hit testing.
	// Used as a fallback when the element is overlapped.
	ClickViaScript() error

	// Attribute returns the named attribute, or "" when absent.
	Attribute(name string) (string, error)

	// Text returns the element's visible text content.
	Text() (string, error)
}
