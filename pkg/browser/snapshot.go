package browser

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

const emptyPageSnapshot = "(empty page)"

// axText extracts a printable string from an AX value.
func axText(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	if s := v.Value.Str(); s != "" {
		return s
	}
	// numbers and booleans
	switch raw := v.Value.String(); raw {
	case "", "null", `""`:
		return ""
	default:
		return raw
	}
}

// axFocused reports whether the node carries focused=true.
func axFocused(n *proto.AccessibilityAXNode) bool {
	for _, p := range n.Properties {
		if p == nil || p.Name != proto.AccessibilityAXPropertyNameFocused || p.Value == nil {
			continue
		}
		return p.Value.Value.Bool()
	}
	return false
}

// flatNode is an AX node placed at its depth in the tree.
type flatNode struct {
	node  *proto.AccessibilityAXNode
	depth int
}

// flattenAXTree walks the CDP node list depth first from its root and
// returns at most limit nodes in document order.
func flattenAXTree(nodes []*proto.AccessibilityAXNode, limit int) []flatNode {
	byID := make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes))
	isChild := make(map[proto.AccessibilityAXNodeID]bool, len(nodes))
	for _, n := range nodes {
		if n == nil || n.NodeID == "" {
			continue
		}
		byID[n.NodeID] = n
		for _, c := range n.ChildIDs {
			isChild[c] = true
		}
	}

	var root *proto.AccessibilityAXNode
	for _, n := range nodes {
		if n != nil && n.NodeID != "" && !isChild[n.NodeID] {
			root = n
			break
		}
	}
	if root == nil {
		return nil
	}

	type frame struct {
		id    proto.AccessibilityAXNodeID
		depth int
	}
	var out []flatNode
	stack := []frame{{id: root.NodeID}}
	visited := make(map[proto.AccessibilityAXNodeID]bool, len(byID))
	for len(stack) > 0 && len(out) < limit {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, ok := byID[top.id]
		if !ok || visited[top.id] {
			continue
		}
		visited[top.id] = true
		out = append(out, flatNode{node: n, depth: top.depth})

		for i := len(n.ChildIDs) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: n.ChildIDs[i], depth: top.depth + 1})
		}
	}
	return out
}

// refAllocator hands out e1, e2... and tracks role/name duplicates so that
// only ambiguous refs keep their nth index.
type refAllocator struct {
	next  int
	seen  map[string]int
	byKey map[string][]string
	refs  map[string]RoleRef
}

func newRefAllocator() *refAllocator {
	return &refAllocator{
		seen:  make(map[string]int),
		byKey: make(map[string][]string),
		refs:  make(map[string]RoleRef),
	}
}

func (a *refAllocator) assign(role, name string, backendID int) (ref string, nth int) {
	a.next++
	ref = fmt.Sprintf("e%d", a.next)
	key := role + "\x00" + name
	nth = a.seen[key]
	a.seen[key] = nth + 1
	a.byKey[key] = append(a.byKey[key], ref)
	a.refs[ref] = RoleRef{Role: role, Name: name, Nth: nth, BackendNodeID: backendID}
	return ref, nth
}

// finish clears nth on refs whose role/name pair is unique.
func (a *refAllocator) finish() map[string]RoleRef {
	for _, refs := range a.byKey {
		if len(refs) > 1 {
			continue
		}
		r := a.refs[refs[0]]
		r.Nth = 0
		a.refs[refs[0]] = r
	}
	return a.refs
}

// FormatSnapshot renders CDP accessibility nodes as an indented text tree,
// assigning refs to elements a script can target.
func FormatSnapshot(nodes []*proto.AccessibilityAXNode, opts SnapshotOptions) *SnapshotResult {
	def := DefaultSnapshotOptions()
	if opts.MaxChars == 0 {
		opts.MaxChars = def.MaxChars
	}
	if opts.Limit == 0 {
		opts.Limit = def.Limit
	}

	flat := flattenAXTree(nodes, opts.Limit)
	if len(flat) == 0 {
		return &SnapshotResult{
			Snapshot: emptyPageSnapshot,
			Refs:     map[string]RoleRef{},
			Stats:    SnapshotStats{Lines: 1, Chars: len(emptyPageSnapshot)},
		}
	}

	alloc := newRefAllocator()
	var (
		lines       []string
		focused     string
		interactive int
	)
	for _, fn := range flat {
		n := fn.node
		role := strings.ToLower(axText(n.Role))
		name := axText(n.Name)

		if n.Ignored || role == "statictext" || role == "inlinetextbox" || role == "linebreak" {
			continue
		}
		if (role == "" || role == "none" || role == "unknown") && name == "" {
			continue
		}
		if opts.MaxDepth > 0 && fn.depth > opts.MaxDepth {
			continue
		}

		class := roleClasses[role]
		if opts.Interactive && class != roleInteractive {
			continue
		}
		if opts.Compact && class == roleStructural && name == "" {
			continue
		}

		var b strings.Builder
		b.WriteString(strings.Repeat("  ", fn.depth))
		b.WriteString("- ")
		b.WriteString(role)
		if name != "" {
			fmt.Fprintf(&b, " %q", name)
		}

		if class == roleInteractive || (class == roleContent && name != "") {
			ref, nth := alloc.assign(role, name, int(n.BackendDOMNodeID))
			fmt.Fprintf(&b, " [ref=%s]", ref)
			if nth > 0 {
				fmt.Fprintf(&b, " [nth=%d]", nth)
			}
			if class == roleInteractive {
				interactive++
			}
			if focused == "" && axFocused(n) {
				focused = ref
			}
		}

		if v := axText(n.Value); v != "" {
			fmt.Fprintf(&b, ": %q", v)
		}
		if d := axText(n.Description); d != "" {
			fmt.Fprintf(&b, " (%s)", d)
		}
		lines = append(lines, b.String())
	}

	refs := alloc.finish()
	snapshot := emptyPageSnapshot
	if len(lines) > 0 {
		snapshot = strings.Join(lines, "\n")
		if opts.Compact {
			snapshot = pruneRefless(snapshot)
		}
	}

	truncated := false
	if opts.MaxChars > 0 && len(snapshot) > opts.MaxChars {
		snapshot = snapshot[:opts.MaxChars] + "\n[...TRUNCATED]"
		truncated = true
	}

	return &SnapshotResult{
		Snapshot:  snapshot,
		Refs:      refs,
		Focused:   focused,
		Truncated: truncated,
		Stats: SnapshotStats{
			Lines:       len(lines),
			Chars:       len(snapshot),
			Refs:        len(refs),
			Interactive: interactive,
		},
	}
}

// pruneRefless drops lines that neither carry a ref or value nor have a
// descendant that does.
func pruneRefless(tree string) string {
	lines := strings.Split(tree, "\n")
	keep := make([]bool, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(line, "[ref=") || (strings.Contains(trimmed, ":") && !strings.HasSuffix(trimmed, ":")) {
			keep[i] = true
			continue
		}
		indent := indentOf(line)
		for j := i + 1; j < len(lines) && indentOf(lines[j]) > indent; j++ {
			if strings.Contains(lines[j], "[ref=") {
				keep[i] = true
				break
			}
		}
	}

	out := lines[:0]
	for i, line := range lines {
		if keep[i] {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return emptyPageSnapshot
	}
	return strings.Join(out, "\n")
}

// indentOf counts two-space indentation levels.
func indentOf(line string) int {
	return (len(line) - len(strings.TrimLeft(line, " "))) / 2
}
