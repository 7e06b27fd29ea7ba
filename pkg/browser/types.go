package browser

// StepKind selects the engine operation for a Step.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepInteract StepKind = "interact"
)

// Step is one engine operation issued by Browse.
type Step struct {
	Kind    StepKind
	URL     string // StepNavigate
	Script  string // StepInteract
	Options StepOptions
}

// StepOptions controls what the engine observes after a step.
type StepOptions struct {
	IncludeAXTree bool
	IncludeDOM    bool
}

// EngineResult is the raw state an engine reports after a step.
type EngineResult struct {
	URL              string
	Content          string
	AXTree           map[string]any
	DOM              map[string]any
	Screenshot       []byte // PNG
	OpenPagesURLs    []string
	ActivePageIndex  int
	FocusedElementID string
	LastAction       string
	// Error describes an action-level failure (bad URL, unknown ref, script
	// exception). The rest of the result still reflects the page state.
	Error string
}

// RoleRef maps a snapshot ref (e.g. "e5") to an accessible element.
type RoleRef struct {
	Role          string `json:"role"`
	Name          string `json:"name,omitempty"`
	Nth           int    `json:"nth,omitempty"`
	BackendNodeID int    `json:"backendNodeId,omitempty"`
}

// SnapshotResult is the text rendering of a page accessibility tree.
type SnapshotResult struct {
	Snapshot  string             `json:"snapshot"`
	Refs      map[string]RoleRef `json:"refs"`
	Focused   string             `json:"focused,omitempty"` // ref of the focused element
	Stats     SnapshotStats      `json:"stats"`
	Truncated bool               `json:"truncated,omitempty"`
}

// SnapshotStats contains metrics about a snapshot.
type SnapshotStats struct {
	Lines       int `json:"lines"`
	Chars       int `json:"chars"`
	Refs        int `json:"refs"`
	Interactive int `json:"interactive"`
}

// SnapshotOptions controls snapshot generation.
type SnapshotOptions struct {
	Interactive bool // only include interactive elements
	MaxDepth    int  // 0 = unlimited
	Compact     bool // remove unnamed structural elements
	MaxChars    int  // truncate output (default 8000)
	Limit       int  // max AX nodes to process (default 500)
}

// DefaultSnapshotOptions returns sensible defaults.
func DefaultSnapshotOptions() SnapshotOptions {
	return SnapshotOptions{
		Compact:  true,
		MaxChars: 8000,
		Limit:    500,
	}
}

// AXTreeObject converts a snapshot into the generic object carried by
// observations.
func (s *SnapshotResult) AXTreeObject() map[string]any {
	refs := make(map[string]any, len(s.Refs))
	for ref, r := range s.Refs {
		refs[ref] = map[string]any{
			"role":          r.Role,
			"name":          r.Name,
			"nth":           r.Nth,
			"backendNodeId": r.BackendNodeID,
		}
	}
	return map[string]any{
		"snapshot":  s.Snapshot,
		"refs":      refs,
		"focused":   s.Focused,
		"truncated": s.Truncated,
		"stats": map[string]any{
			"lines":       s.Stats.Lines,
			"chars":       s.Stats.Chars,
			"refs":        s.Stats.Refs,
			"interactive": s.Stats.Interactive,
		},
	}
}
