package events

import (
	"fmt"
	"strings"
)

// BrowserObservation is the outcome of one browser step.
//
// Error is true exactly when LastActionError is non-empty; use SetError and
// ClearError rather than writing the fields directly.
type BrowserObservation struct {
	Event
	ObservationType ObservationType `json:"observation"`
	TriggeredBy     ActionType      `json:"trigger_by_action,omitempty"`

	URL     string `json:"url"`
	Content string `json:"content"`
	// Screenshot is a base64-encoded PNG.
	Screenshot     string         `json:"screenshot,omitempty"`
	ScreenshotPath string         `json:"screenshot_path,omitempty"`
	AXTree         map[string]any `json:"axtree_object,omitempty"`
	DOM            map[string]any `json:"dom_object,omitempty"`

	Error           bool   `json:"error"`
	LastAction      string `json:"last_browser_action"`
	LastActionError string `json:"last_browser_action_error"`

	OpenPagesURLs    []string `json:"open_pages_urls"`
	ActivePageIndex  int      `json:"active_page_index"`
	FocusedElementID string   `json:"focused_element_bid"`
}

// NewBrowserObservation returns an environment-sourced observation with no
// active page.
func NewBrowserObservation(trigger ActionType) *BrowserObservation {
	obsType := ObservationBrowse
	if trigger == ActionBrowseInteractive {
		obsType = ObservationBrowseInteractive
	}
	return &BrowserObservation{
		Event:           NewEvent(SourceEnvironment),
		ObservationType: obsType,
		TriggeredBy:     trigger,
		OpenPagesURLs:   []string{},
		ActivePageIndex: -1,
	}
}

// SetError marks the observation failed. An empty message is replaced so
// that Error and LastActionError never disagree.
func (o *BrowserObservation) SetError(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "unknown browser error"
	}
	o.Error = true
	o.LastActionError = msg
}

// ClearError marks the observation successful.
func (o *BrowserObservation) ClearError() {
	o.Error = false
	o.LastActionError = ""
}

// Message is a one-line rendering; it includes the error text when present.
func (o *BrowserObservation) Message() string {
	if o.Error {
		return fmt.Sprintf("Visited %s (error: %s)", o.URL, o.LastActionError)
	}
	return "Visited " + o.URL
}

// String renders the observation as a block. Screenshot bytes are never
// included.
func (o *BrowserObservation) String() string {
	var b strings.Builder
	b.WriteString("**BrowserObservation**\n")
	fmt.Fprintf(&b, "URL: %s\n", o.URL)
	fmt.Fprintf(&b, "Error: %t\n", o.Error)
	fmt.Fprintf(&b, "Open pages: %v\n", o.OpenPagesURLs)
	fmt.Fprintf(&b, "Active page index: %d\n", o.ActivePageIndex)
	fmt.Fprintf(&b, "Last browser action: %s\n", o.LastAction)
	fmt.Fprintf(&b, "Last browser action error: %s\n", o.LastActionError)
	fmt.Fprintf(&b, "Focused element bid: %s\n", o.FocusedElementID)
	if o.ScreenshotPath != "" {
		fmt.Fprintf(&b, "Screenshot saved to: %s\n", o.ScreenshotPath)
	}
	b.WriteString("--- Agent Observation ---\n")
	b.WriteString(o.Content)
	return b.String()
}
