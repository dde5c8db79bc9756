// Package browsertest provides scripted in-memory implementations of the
// browser session interfaces for unit tests.
package browsertest

import (
	"amazon-scraper/internal/browser"
)

// FakeSession is a scripted browser.Session. Tests set the page fields
// directly, or install hooks to mutate state in response to calls.
type FakeSession struct {
	PageURL   string
	PageTitle string
	PageHTML  string

	// DOM maps CSS selectors to the elements they return
	DOM map[string][]*FakeElement

	// Optional hooks; when nil the call is a no-op beyond recording
	NavigateFunc   func(url string) error
	WaitLoadFunc   func() error
	EvalFunc       func(js string) error
	EvalNumberFunc func(js string) (float64, error)

	// Recorded calls
	Navigated  []string
	EvalCalls  []string
	Installed  []string
	CloseCount int
}

var _ browser.Session = (*FakeSession)(nil)

func (s *FakeSession) Navigate(url string) error {
	s.Navigated = append(s.Navigated, url)
	if s.NavigateFunc != nil {
		return s.NavigateFunc(url)
	}
	s.PageURL = url
	return nil
}

func (s *FakeSession) WaitLoad() error {
	if s.WaitLoadFunc != nil {
		return s.WaitLoadFunc()
	}
	return nil
}

func (s *FakeSession) URL() (string, error) {
	return s.PageURL, nil
}

func (s *FakeSession) Title() (string, error) {
	return s.PageTitle, nil
}

func (s *FakeSession) HTML() (string, error) {
	return s.PageHTML, nil
}

func (s *FakeSession) Eval(js string) error {
	s.EvalCalls = append(s.EvalCalls, js)
	if s.EvalFunc != nil {
		return s.EvalFunc(js)
	}
	return nil
}

func (s *FakeSession) EvalNumber(js string) (float64, error) {
	s.EvalCalls = append(s.EvalCalls, js)
	if s.EvalNumberFunc != nil {
		return s.EvalNumberFunc(js)
	}
	return 0, nil
}

func (s *FakeSession) Elements(selector string) ([]browser.Element, error) {
	els := s.DOM[selector]
	out := make([]browser.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (s *FakeSession) InstallOnNewDocument(js string) error {
	s.Installed = append(s.Installed, js)
	return nil
}

func (s *FakeSession) Close() error {
	s.CloseCount++
	return nil
}

// FakeElement is a scripted browser.Element.
type FakeElement struct {
	IsVisible   bool
	IsInView    bool
	Attrs       map[string]string
	TextContent string

	// ClickFunc runs on both Click and ClickViaScript when set
	ClickFunc func() error
	ClickErr  error

	Clicks       int
	ScriptClicks int
	Centered     int
}

var _ browser.Element = (*FakeElement)(nil)

func (e *FakeElement) Visible() (bool, error) {
	return e.IsVisible, nil
}

func (e *FakeElement) InViewport() (bool, error) {
	return e.IsInView, nil
}

func (e *FakeElement) ScrollIntoCenter() error {
	e.Centered++
	e.IsInView = true
	return nil
}

func (e *FakeElement) Click() error {
	e.Clicks++
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if e.ClickFunc != nil {
		return e.ClickFunc()
	}
	return nil
}

func (e *FakeElement) ClickViaScript() error {
	e.ScriptClicks++
	if e.ClickFunc != nil {
		return e.ClickFunc()
	}
	return nil
}

func (e *FakeElement) Attribute(name string) (string, error) {
	return e.Attrs[name], nil
}

func (e *FakeElement) Text() (string, error) {
	return e.TextContent, nil
}
