package events

import "strings"

// Action is a browser step requested by a driver. The set of implementations
// is closed: NavigateAction and InteractAction.
type Action interface {
	ActionType() ActionType
	Risk() SecurityRisk
	Meta() Event
	// Message is a short human-readable rendering for logs and broadcasts.
	Message() string
	String() string

	isAction()
}

// NavigateAction loads a URL in the active page.
type NavigateAction struct {
	Event
	URL          string       `json:"url"`
	Thought      string       `json:"thought,omitempty"`
	ReturnAXTree bool         `json:"return_axtree"`
	SecurityRisk SecurityRisk `json:"security_risk"`
}

// NewNavigateAction builds an agent-sourced NavigateAction with default risk.
func NewNavigateAction(url string) NavigateAction {
	return NavigateAction{
		Event:        NewEvent(SourceAgent),
		URL:          url,
		SecurityRisk: RiskUnknown,
	}
}

func (a NavigateAction) ActionType() ActionType { return ActionBrowse }
func (a NavigateAction) Risk() SecurityRisk     { return a.SecurityRisk }
func (a NavigateAction) Meta() Event            { return a.Event }
func (NavigateAction) isAction()                {}

func (a NavigateAction) Message() string {
	return "Browsing to URL: " + a.URL
}

func (a NavigateAction) String() string {
	var b strings.Builder
	b.WriteString("**NavigateAction**\n")
	if a.Thought != "" {
		b.WriteString("THOUGHT: " + a.Thought + "\n")
	}
	b.WriteString("URL: " + a.URL)
	return b.String()
}

// InteractAction runs an interaction script (click, fill, press...) against
// the current page.
type InteractAction struct {
	Event
	Script       string       `json:"browser_actions"`
	Thought      string       `json:"thought,omitempty"`
	UserMessage  string       `json:"user_message,omitempty"`
	ReturnAXTree bool         `json:"return_axtree"`
	SecurityRisk SecurityRisk `json:"security_risk"`
}

// NewInteractAction builds an agent-sourced InteractAction with default risk.
func NewInteractAction(script string) InteractAction {
	return InteractAction{
		Event:        NewEvent(SourceAgent),
		Script:       script,
		SecurityRisk: RiskUnknown,
	}
}

func (a InteractAction) ActionType() ActionType { return ActionBrowseInteractive }
func (a InteractAction) Risk() SecurityRisk     { return a.SecurityRisk }
func (a InteractAction) Meta() Event            { return a.Event }
func (InteractAction) isAction()                {}

func (a InteractAction) Message() string {
	return "Interacting with browser:\n```\n" + a.Script + "\n```"
}

func (a InteractAction) String() string {
	var b strings.Builder
	b.WriteString("**InteractAction**\n")
	if a.Thought != "" {
		b.WriteString("THOUGHT: " + a.Thought + "\n")
	}
	if a.UserMessage != "" {
		b.WriteString("USER_MESSAGE: " + a.UserMessage + "\n")
	}
	b.WriteString("BROWSER_ACTIONS: " + a.Script)
	return b.String()
}
