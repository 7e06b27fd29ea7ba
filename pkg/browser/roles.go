package browser

// roleClass groups accessibility roles by how the snapshot treats them.
type roleClass int

const (
	roleOther roleClass = iota
	// roleInteractive elements always get a ref.
	roleInteractive
	// roleContent elements get a ref only when named.
	roleContent
	// roleStructural elements never get a ref; unnamed ones vanish in
	// compact mode.
	roleStructural
)

var roleClasses = map[string]roleClass{
	"button":           roleInteractive,
	"link":             roleInteractive,
	"textbox":          roleInteractive,
	"checkbox":         roleInteractive,
	"radio":            roleInteractive,
	"combobox":         roleInteractive,
	"listbox":          roleInteractive,
	"menuitem":         roleInteractive,
	"menuitemcheckbox": roleInteractive,
	"menuitemradio":    roleInteractive,
	"option":           roleInteractive,
	"searchbox":        roleInteractive,
	"slider":           roleInteractive,
	"spinbutton":       roleInteractive,
	"switch":           roleInteractive,
	"tab":              roleInteractive,
	"treeitem":         roleInteractive,

	"heading":      roleContent,
	"cell":         roleContent,
	"gridcell":     roleContent,
	"columnheader": roleContent,
	"rowheader":    roleContent,
	"listitem":     roleContent,
	"article":      roleContent,
	"region":       roleContent,
	"main":         roleContent,
	"navigation":   roleContent,
	"image":        roleContent,
	"img":          roleContent,

	"generic":      roleStructural,
	"group":        roleStructural,
	"list":         roleStructural,
	"table":        roleStructural,
	"row":          roleStructural,
	"rowgroup":     roleStructural,
	"grid":         roleStructural,
	"treegrid":     roleStructural,
	"menu":         roleStructural,
	"menubar":      roleStructural,
	"toolbar":      roleStructural,
	"tablist":      roleStructural,
	"tree":         roleStructural,
	"directory":    roleStructural,
	"document":     roleStructural,
	"rootwebarea":  roleStructural,
	"webarea":      roleStructural,
	"application":  roleStructural,
	"presentation": roleStructural,
	"none":         roleStructural,
}

// IsInteractive returns true if the role represents an interactive element.
func IsInteractive(role string) bool { return roleClasses[role] == roleInteractive }

// IsContent returns true if the role represents a content element.
func IsContent(role string) bool { return roleClasses[role] == roleContent }

// IsStructural returns true if the role represents a structural element.
func IsStructural(role string) bool { return roleClasses[role] == roleStructural }
